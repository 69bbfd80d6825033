package sequence

import "sync/atomic"

// Sequencer hands out the command sequence numbers the log is keyed by.
// Readers may call Current from any goroutine.
type Sequencer struct {
	next atomic.Uint64
}

// New starts after last: zero on a fresh log, the newest logged sequence
// otherwise.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset moves the sequencer, after recovery or a failed append.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
