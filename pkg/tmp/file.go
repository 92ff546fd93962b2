// Package tmp provides a temporary file that removes itself on Close.
package tmp

import (
	"os"
)

// File wraps an *os.File whose Close also unlinks it, so spill files
// never outlive the request that created them.
type File struct {
	*os.File
}

// NewFile creates a temporary file in dir (or the default temp
// directory if dir is empty), named after pattern per [os.CreateTemp].
func NewFile(dir, pattern string) (*File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &File{f}, nil
}

// Close closes the file handle and removes the file from the
// filesystem.
func (t *File) Close() error {
	if err := t.File.Close(); err != nil {
		return err
	}
	return os.Remove(t.File.Name())
}
