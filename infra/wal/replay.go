package wal

import (
	"fmt"
)

type ReplayHandler func(*Record) error

// Replay feeds fn every record with a sequence above after, in log order.
// It returns the highest sequence seen, including skipped records. A torn
// frame is tolerated only at the end of the newest segment.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	idx, err := segments(dir)
	if err != nil {
		return 0, err
	}
	for n, i := range idx {
		_, torn, err := scanSegment(segmentPath(dir, i), func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
		if torn && n != len(idx)-1 {
			return lastSeq, fmt.Errorf("wal: segment %d is torn but not the newest", i)
		}
	}
	return lastSeq, nil
}
