package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

const fileName = "snapshot.bin"

type Writer struct {
	Dir string
}

// Write replaces the snapshot atomically: a crash mid-write leaves the
// previous snapshot in place.
func (w *Writer) Write(s *State) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: encode seq %d: %w", s.Seq, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(w.Dir, fileName))
}
