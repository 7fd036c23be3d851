package submission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Handle owns one spooled temp file. Release deletes it exactly once no
// matter how many exit paths call it.
type Handle struct {
	path string
	once sync.Once
	err  error
}

// CreateTemp creates an exclusive temp file in dir named after the
// submission id, so concurrent requests never collide.
func CreateTemp(dir, submissionID string) (*os.File, *Handle, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "clip-"+submissionID+".part")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, &Handle{path: path}, nil
}

// Path is the on-disk location of the spooled bytes.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Release removes the file. Only the first call touches the filesystem;
// later calls return the first result.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		err := os.Remove(h.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = err
		}
	})
	return h.err
}
