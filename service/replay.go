package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"scalex/domain/errs"
	"scalex/infra/wal"
	"scalex/snapshot"
)

type RecoveryStats struct {
	SnapshotSeq uint64
	Replayed    int
	Rejected    int
	LastSeq     uint64
}

// Recover rebuilds state from the snapshot in snapDir, if any, and the
// command log in walDir. It must run before the first command. Commands the
// outbox has not seen get their events stored again.
func (e *Exchange) Recover(snapDir, walDir string) (RecoveryStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var st RecoveryStats
	if e.running {
		return st, fmt.Errorf("recover: exchange already accepted commands")
	}

	if e.outbox != nil {
		last, err := e.outbox.LastSeq()
		if err != nil {
			return st, fmt.Errorf("recover: outbox: %w", err)
		}
		e.emitted = last
	}

	if snapDir != "" {
		s, ok, err := snapshot.Load(snapDir)
		if err != nil {
			return st, err
		}
		if ok {
			if err := e.restore(s); err != nil {
				return st, fmt.Errorf("recover: snapshot seq %d: %w", s.Seq, err)
			}
			st.SnapshotSeq = s.Seq
		}
	}
	e.seq.Reset(st.SnapshotSeq)

	start := time.Now()
	last, err := wal.Replay(walDir, st.SnapshotSeq, func(rec *wal.Record) error {
		cmd, err := DecodeCommand(rec.Type, rec.Data)
		if err != nil {
			return fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
		now := e.clock.advance(uint64(rec.Time))
		e.seq.Reset(rec.Seq)
		st.Replayed++
		_, events, err := e.execute(cmd, rec.Seq, now)
		if err != nil {
			// rejected when first run as well
			st.Rejected++
			e.log.Debug("replayed command rejected", zap.Uint64("seq", rec.Seq), zap.String("code", errs.CodeOf(err)))
			return nil
		}
		e.store(rec.Seq, events)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("recover: replay: %w", err)
	}
	if last > e.seq.Current() {
		e.seq.Reset(last)
	}
	st.LastSeq = e.seq.Current()
	e.metrics.WALSeq(st.LastSeq)

	e.log.Info("recovery complete",
		zap.Uint64("snapshotSeq", st.SnapshotSeq),
		zap.Int("replayed", st.Replayed),
		zap.Int("rejected", st.Rejected),
		zap.Uint64("lastSeq", st.LastSeq),
		zap.Duration("took", time.Since(start)))
	return st, nil
}

func (e *Exchange) restore(s *snapshot.State) error {
	if err := e.ledger.Import(s.Ledger); err != nil {
		return err
	}
	for _, p := range s.Pools {
		if err := e.registry.restore(p); err != nil {
			return err
		}
	}
	e.clock.advance(s.Clock)
	return nil
}

// Snapshot captures the current state. The copy shares nothing with the
// live engine.
func (e *Exchange) Snapshot() *snapshot.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &snapshot.State{
		Seq:     e.seq.Current(),
		Clock:   e.clock.Now(),
		Created: time.Now(),
		Ledger:  e.ledger.Export(),
	}
	for _, b := range e.registry.Books() {
		s.Pools = append(s.Pools, b.Export())
	}
	return s
}
