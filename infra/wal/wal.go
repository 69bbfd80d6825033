// Package wal is the command log: CRC-framed records in numbered segment
// files. Every state-changing command is appended here before it runs, so
// replaying the log over the last snapshot rebuilds the exact same state.
package wal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// NoSync skips the fsync after each append; a crash may lose the tail.
	NoSync bool
}

const defaultSegmentSize = 64 << 20

type WAL struct {
	mu         sync.Mutex
	dir        string
	segSize    int64
	segDur     time.Duration
	noSync     bool
	current    *segment
	lastSeq    uint64
	lastRotate time.Time
}

// Open resumes the newest segment, cutting off a torn frame left by a
// crash mid-append.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	idx, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		noSync:     cfg.NoSync,
		lastRotate: time.Now(),
	}

	last := 0
	if len(idx) > 0 {
		last = idx[len(idx)-1]
		good, torn, err := scanSegment(segmentPath(cfg.Dir, last), nil)
		if err != nil {
			return nil, err
		}
		if torn {
			if err := os.Truncate(segmentPath(cfg.Dir, last), good); err != nil {
				return nil, fmt.Errorf("wal: truncate torn tail: %w", err)
			}
		}
		for i := len(idx) - 1; i >= 0 && w.lastSeq == 0; i-- {
			if _, _, err := scanSegment(segmentPath(cfg.Dir, idx[i]), func(r *Record) error {
				w.lastSeq = r.Seq
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	seg, err := openSegment(cfg.Dir, last)
	if err != nil {
		return nil, err
	}
	w.current = seg
	return w, nil
}

// Append writes r durably. r.Seq must exceed every sequence already logged.
func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r.Seq <= w.lastSeq {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, r.Seq, w.lastSeq)
	}
	buf, err := r.encode()
	if err != nil {
		return err
	}
	if err := w.current.append(buf); err != nil {
		return fmt.Errorf("wal: append seq %d: %w", r.Seq, err)
	}
	if !w.noSync {
		if err := w.current.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync seq %d: %w", r.Seq, err)
		}
	}
	w.lastSeq = r.Seq

	if w.current.offset >= w.segSize || (w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur) {
		return w.rotate()
	}
	return nil
}

// LastSeq is the highest sequence in the log, zero when empty.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes closed segments whose records are all at or below
// seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (removed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := segments(w.dir)
	if err != nil {
		return 0, err
	}
	for _, i := range idx {
		if i >= w.current.index {
			break
		}
		path := segmentPath(w.dir, i)
		var max uint64
		if _, _, err := scanSegment(path, func(r *Record) error {
			max = r.Seq
			return nil
		}); err != nil {
			return removed, err
		}
		if max > seq {
			break
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.file.Sync(); err != nil {
		return err
	}
	return w.current.close()
}
