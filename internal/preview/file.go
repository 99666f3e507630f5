package preview

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// File is a user-selected file: a name, a byte size and its bytes.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type localFile struct {
	path string
	size int64
}

// OpenLocal returns a File backed by a path on disk.
func OpenLocal(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &localFile{path: path, size: info.Size()}, nil
}

func (f *localFile) Name() string { return filepath.Base(f.path) }
func (f *localFile) Size() int64  { return f.size }

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type bytesFile struct {
	name string
	data []byte
}

// FromBytes returns a File over an in-memory upload.
func FromBytes(name string, data []byte) File {
	return &bytesFile{name: name, data: data}
}

func (f *bytesFile) Name() string { return f.name }
func (f *bytesFile) Size() int64  { return int64(len(f.data)) }

func (f *bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
