package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LoadLatest finds and decodes the newest snapshot in dir. A missing dir or
// an empty one is not an error; recovery then replays the log from zero.
func LoadLatest(dir string) (*Snapshot, bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "snapshot-*.gob"))
	if err != nil {
		return nil, false, err
	}
	if len(files) == 0 {
		return nil, false, nil
	}
	sort.Strings(files)
	path := files[len(files)-1]

	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return &s, true, nil
}
