package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const segmentPattern = "segment-%06d.wal"

type segment struct {
	file   *os.File
	index  int
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf(segmentPattern, index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, index: index, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	s.offset += int64(n)
	return err
}

func (s *segment) close() error {
	return s.file.Close()
}

// segments lists the segment indexes present in dir in ascending order.
func segments(dir string) ([]int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(files))
	for _, path := range files {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(path), segmentPattern, &idx); err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

// scanSegment feeds every intact record of a segment to fn and returns the
// offset just past the last one. A torn frame ends the scan with torn set.
func scanSegment(path string, fn func(*Record) error) (good int64, torn bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, n, err := readRecord(r)
		switch {
		case err == io.EOF:
			return good, false, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return good, true, nil
		case err != nil:
			return good, false, fmt.Errorf("%s at offset %d: %w", filepath.Base(path), good, err)
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return good, false, err
			}
		}
		good += n
	}
}
