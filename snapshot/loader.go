package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the snapshot in dir. A missing snapshot is not an error and
// returns ok false.
func Load(dir string) (s *State, ok bool, err error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	s = new(State)
	if err := gob.NewDecoder(f).Decode(s); err != nil {
		return nil, false, fmt.Errorf("snapshot: decode %s: %w", f.Name(), err)
	}
	return s, true, nil
}
