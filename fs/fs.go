// Package fs defines the file access the kernel consumes: open a file by
// name, read it at an offset, close it.
package fs

import (
	"bytes"
	"io"
	"os"
	"path"
	"sort"

	"github.com/pkg/errors"
)

var ErrUnknownPath = errors.New("unknown path")

type File interface {
	io.ReaderAt
	io.Closer

	// Length is the file size in bytes.
	Length() int64
}

type FileSystem interface {
	Open(name string) (File, error)
}

// Clean normalizes a name the way every FileSystem here looks it up.
func Clean(name string) string {
	name = path.Clean("/" + name)
	return name[1:]
}

// MapFS is an in-memory file system keyed by cleaned path.
type MapFS map[string][]byte

func (m MapFS) Open(name string) (File, error) {
	body, ok := m[Clean(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPath, "open %s", name)
	}

	return NewBytesFile(body), nil
}

// Names returns the files of m in sorted order.
func (m MapFS) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

type bytesFile struct {
	*bytes.Reader
	closed bool
}

// NewBytesFile serves body as a File.
func NewBytesFile(body []byte) File {
	return &bytesFile{Reader: bytes.NewReader(body)}
}

func (b *bytesFile) Length() int64 {
	return b.Size()
}

func (b *bytesFile) ReadAt(p []byte, off int64) (int, error) {
	if b.closed {
		return 0, os.ErrClosed
	}

	return b.Reader.ReadAt(p, off)
}

func (b *bytesFile) Close() error {
	if b.closed {
		return os.ErrClosed
	}

	b.closed = true
	return nil
}
