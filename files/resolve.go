// Package files provides path resolution against registered base directories,
// output file creation and output path templating.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrEmptySearchPath is returned when resolving an empty path.
var ErrEmptySearchPath = errors.New("empty search path")

// NotFoundError reports a path that exists neither on its own nor below any base.
type NotFoundError struct {
	Path  string
	Bases []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in any of %d search paths [%s]", e.Path, len(e.Bases), strings.Join(e.Bases, ", "))
}

// Is reports whether target is os.ErrNotExist so callers can test with errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == os.ErrNotExist
}

// Resolver finds files relative to an ordered list of base directories.
type Resolver struct {
	bases []string
}

// NewResolver creates a resolver with the given bases, registered in order.
func NewResolver(bases ...string) (*Resolver, error) {
	r := &Resolver{}
	for _, b := range bases {
		if err := r.AddBase(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddBase canonicalizes dir and appends it to the search path unless already present.
func (r *Resolver) AddBase(dir string) error {
	canon, err := Canonicalize(dir)
	if err != nil {
		return fmt.Errorf("adding base %s: %w", dir, err)
	}
	if !slices.Contains(r.bases, canon) {
		r.bases = append(r.bases, canon)
	}
	return nil
}

// Bases returns a copy of the registered bases in registration order.
func (r *Resolver) Bases() []string {
	return slices.Clone(r.bases)
}

// Clone returns an independent resolver with the same bases.
func (r *Resolver) Clone() *Resolver {
	return &Resolver{bases: slices.Clone(r.bases)}
}

// Resolve returns the canonical path of the first existing match for path.
//
// An absolute path that exists resolves to itself. An absolute path that does
// not exist has its root stripped and is tried below every base, so that
// "/textures/a.png" may refer to a file relative to a scene directory.
func (r *Resolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", ErrEmptySearchPath
	}

	search := path
	if filepath.IsAbs(path) {
		if canon, err := Canonicalize(path); err == nil {
			return canon, nil
		}
		search = strings.TrimPrefix(path, filepath.VolumeName(path))
		search = strings.TrimLeft(search, string(filepath.Separator))
	}

	for _, base := range r.bases {
		candidate := filepath.Join(base, search)
		if canon, err := Canonicalize(candidate); err == nil {
			return canon, nil
		}
	}

	return "", &NotFoundError{Path: path, Bases: slices.Clone(r.bases)}
}

// Canonicalize returns the absolute, symlink-free form of an existing path.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
