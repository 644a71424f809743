package tarfs

import (
	"archive/tar"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/log"
)

// TarFS serves the regular files of a tar archive from memory.
type TarFS struct {
	files fs.MapFS
}

func NewTarFS(r io.Reader) (*TarFS, error) {
	tf := &TarFS{files: make(fs.MapFS)}

	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, err
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		name := fs.Clean(hdr.Name)

		log.L.Trace("tarfs-entry", "name", name, "size", len(body))
		tf.files[name] = body
	}

	return tf, nil
}

func (t *TarFS) Open(name string) (fs.File, error) {
	return t.files.Open(name)
}

func (t *TarFS) Names() []string {
	return t.files.Names()
}

func (t *TarFS) String() string {
	return spew.Sdump(t.Names())
}
