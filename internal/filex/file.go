// Package filex reads local files for uploads that start from disk.
package filex

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooLarge is returned when a file exceeds the caller's size limit.
var ErrTooLarge = errors.New("file too large")

// ReadLocal reads the regular file at path. Files larger than max bytes are
// rejected without being read in full.
func ReadLocal(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > max {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, info.Size(), ErrTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	return data, nil
}
