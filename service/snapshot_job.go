package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scalex/snapshot"
)

// Checkpoint writes a snapshot, then drops log segments and acked outbox
// entries it makes redundant. It returns the snapshot sequence.
func (e *Exchange) Checkpoint(w *snapshot.Writer) (uint64, error) {
	s := e.Snapshot()
	if err := w.Write(s); err != nil {
		return 0, err
	}
	if e.wal != nil {
		removed, err := e.wal.TruncateBefore(s.Seq)
		if err != nil {
			return s.Seq, err
		}
		e.log.Debug("log truncated", zap.Uint64("seq", s.Seq), zap.Int("segments", removed))
	}
	if e.outbox != nil {
		if _, err := e.outbox.DeleteAcked(); err != nil {
			return s.Seq, err
		}
	}
	return s.Seq, nil
}

// RunSnapshotJob checkpoints every interval until ctx is done, skipping
// rounds in which no command ran.
func (e *Exchange) RunSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: dir}
	t := time.NewTicker(interval)
	defer t.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if e.LastSeq() == last {
				continue
			}
			seq, err := e.Checkpoint(w)
			if err != nil {
				e.log.Warn("snapshot failed", zap.Error(err))
				continue
			}
			last = seq
			e.log.Info("snapshot written", zap.Uint64("seq", seq), zap.String("dir", dir))
		}
	}
}
