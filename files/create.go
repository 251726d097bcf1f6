package files

import (
	"fmt"
	"os"
	"path/filepath"
)

// Create creates or truncates the file at path, creating missing parent
// directories first. It refuses to replace anything that is not a regular file.
func Create(path string) (*os.File, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("creating %s: a directory already exists at the same path", path)
	case err == nil && !info.Mode().IsRegular():
		return nil, fmt.Errorf("creating %s: a non-regular file already exists at the same path", path)
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating parent directories of %s: %w", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

// Prepare creates the parent directories of path so that it can be written by
// a library that opens the file itself.
func Prepare(path string) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
