package host

import (
	"os"
	"path/filepath"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/log"
	"github.com/pkg/errors"
)

// HostFS serves files from a directory of the host.
type HostFS struct {
	Root string
}

func NewHostFS(path string) (*HostFS, error) {
	log.L.Trace("creating host fs", "path", path)

	stat, err := os.Stat(path)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, errors.Errorf("hostfs root %s is not a directory", path)
	}

	return &HostFS{Root: path}, nil
}

func (h *HostFS) Open(name string) (fs.File, error) {
	f, err := os.Open(filepath.Join(h.Root, filepath.FromSlash(fs.Clean(name))))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(fs.ErrUnknownPath, "open %s", name)
		}

		return nil, err
	}

	return &hostFile{File: f}, nil
}

type hostFile struct {
	*os.File
}

func (h *hostFile) Length() int64 {
	stat, err := h.Stat()
	if err != nil {
		return 0
	}

	return stat.Size()
}
