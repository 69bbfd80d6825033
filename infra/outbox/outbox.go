// Package outbox is the durable queue between the engine and publishers.
// Events are written once per command, then walked by the broadcaster
// through NEW -> SENT -> ACKED (or FAILED after too many attempts).
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one event produced by the command with sequence Seq. Index
// orders events of the same command.
type Entry struct {
	Seq         uint64
	Index       uint16
	State       State
	Retries     uint32
	LastAttempt int64
	Key         string
	Payload     []byte
}

var ErrCorrupt = errors.New("outbox: corrupt entry")

// value encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 15+len(e.Key)+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(e.Key)))
	copy(buf[15:], e.Key)
	copy(buf[15+len(e.Key):], e.Payload)
	return buf
}

func decodeEntry(key, b []byte) (Entry, error) {
	seq, idx, err := parseKey(key)
	if err != nil {
		return Entry{}, err
	}
	if len(b) < 15 {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(b))
	}
	kl := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < 15+kl {
		return Entry{}, fmt.Errorf("%w: key length %d", ErrCorrupt, kl)
	}
	return Entry{
		Seq:         seq,
		Index:       idx,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         string(b[15 : 15+kl]),
		Payload:     bytes.Clone(b[15+kl:]),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutBatch stores new entries atomically.
func (o *Outbox) PutBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b := o.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		e.State = StateNew
		if err := b.Set(keyFor(e.Seq, e.Index), encodeEntry(e), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (o *Outbox) Get(seq uint64, idx uint16) (Entry, error) {
	key := keyFor(seq, idx)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(key, val)
}

// Mark moves an entry to state, recording the attempt.
func (o *Outbox) Mark(seq uint64, idx uint16, state State, retries uint32) error {
	e, err := o.Get(seq, idx)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq, idx), encodeEntry(e), pebble.Sync)
}

func (o *Outbox) MarkSent(e Entry) error {
	return o.Mark(e.Seq, e.Index, StateSent, e.Retries)
}

func (o *Outbox) MarkAcked(e Entry) error {
	return o.Mark(e.Seq, e.Index, StateAcked, e.Retries)
}

// MarkRetry returns a SENT entry to NEW with one more attempt counted.
func (o *Outbox) MarkRetry(e Entry) error {
	return o.Mark(e.Seq, e.Index, StateNew, e.Retries+1)
}

func (o *Outbox) MarkFailed(e Entry) error {
	return o.Mark(e.Seq, e.Index, StateFailed, e.Retries)
}

// ScanByState visits entries in state in log order. limit <= 0 means all.
func (o *Outbox) ScanByState(state State, limit int, fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || State(val[0]) != state {
			continue
		}
		e, err := decodeEntry(iter.Key(), val)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Count returns how many entries are in each state.
func (o *Outbox) Count() (map[State]int, error) {
	out := map[State]int{}
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if v := iter.Value(); len(v) > 0 {
			out[State(v[0])]++
		}
	}
	return out, iter.Error()
}

// LastSeq is the highest command sequence with stored events.
func (o *Outbox) LastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	seq, _, err := parseKey(iter.Key())
	return seq, err
}

// DeleteAcked drops acknowledged entries, keeping the newest one so that
// LastSeq survives cleanup.
func (o *Outbox) DeleteAcked() (int, error) {
	last, err := o.LastSeq()
	if err != nil {
		return 0, err
	}
	var keys [][]byte
	if err := o.ScanByState(StateAcked, 0, func(e Entry) error {
		if e.Seq != last {
			keys = append(keys, keyFor(e.Seq, e.Index))
		}
		return nil
	}); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	b := o.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	return len(keys), b.Commit(pebble.Sync)
}

const keyPrefix = "event/"

func keyFor(seq uint64, idx uint16) []byte {
	return []byte(fmt.Sprintf("%s%020d/%05d", keyPrefix, seq, idx))
}

func parseKey(b []byte) (uint64, uint16, error) {
	s, i, ok := strings.Cut(strings.TrimPrefix(string(b), keyPrefix), "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: key %q", ErrCorrupt, b)
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: key %q", ErrCorrupt, b)
	}
	idx, err := strconv.ParseUint(i, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: key %q", ErrCorrupt, b)
	}
	return seq, uint16(idx), nil
}
