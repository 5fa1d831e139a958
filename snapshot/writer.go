package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Writer persists snapshots as seq-named gob files. Write goes through a
// temp file and rename so a crash mid-write never leaves a half snapshot
// as the latest.
type Writer struct {
	Dir string
}

func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	final := filepath.Join(w.Dir, fmt.Sprintf("snapshot-%020d.gob", s.Seq))
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, final)
}
