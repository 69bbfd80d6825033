package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// RecordType tags the command carried by a record. Values are owned by
// the caller; the log never interprets them.
type RecordType uint8

// Record is one durable command.
//
// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

const (
	headerSize  = 1 + 8 + 8 + 4
	trailerSize = 4
	maxPayload  = 16 << 20
)

var (
	ErrChecksum     = errors.New("wal: checksum mismatch")
	ErrNonMonotonic = errors.New("wal: non-monotonic sequence")
	ErrTooLarge     = errors.New("wal: payload too large")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(parts ...[]byte) uint32 {
	var sum uint32
	for _, p := range parts {
		sum = crc32.Update(sum, castagnoli, p)
	}
	return sum
}

func (r *Record) encode() ([]byte, error) {
	n := len(r.Data)
	if n > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	buf := make([]byte, headerSize+n+trailerSize)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], uint32(n))
	copy(buf[headerSize:], r.Data)
	binary.BigEndian.PutUint32(buf[headerSize+n:], checksum(buf[:headerSize+n]))
	return buf, nil
}

// readRecord decodes one frame. A frame cut short returns
// io.ErrUnexpectedEOF; a clean end of input returns io.EOF.
func readRecord(r io.Reader) (*Record, int64, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}
	n := binary.BigEndian.Uint32(header[17:21])
	if n > maxPayload {
		return nil, 0, fmt.Errorf("%w: header claims %d bytes", ErrChecksum, n)
	}
	body := make([]byte, int(n)+trailerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}
	payload := body[:n]
	if checksum(header, payload) != binary.BigEndian.Uint32(body[n:]) {
		return nil, 0, ErrChecksum
	}
	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, int64(headerSize + len(body)), nil
}
