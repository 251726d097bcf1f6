// Package builder accumulates simulation spec fragments and turns the merged
// spec into a runnable simulation.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/runner"
	"github.com/pthm-cable/weathering/spec"
)

// Builder merges spec fragments in the order they are appended.
//
// Input paths in file fragments are resolved, in order of precedence,
// as absolute paths that exist, relative to the builder's base paths (the
// working directory first, then those added with AddBasePath), and finally
// relative to the directory containing the fragment.
type Builder struct {
	spec         spec.SimulationSpec
	resolver     *files.Resolver
	creationTime time.Time
}

// New creates a builder with an empty spec. A nil resolver resolves against
// the current working directory only.
func New(resolver *files.Resolver, creationTime time.Time) (*Builder, error) {
	if resolver == nil {
		var err error
		if resolver, err = LocalResolver(); err != nil {
			return nil, err
		}
	}
	return &Builder{resolver: resolver.Clone(), creationTime: creationTime}, nil
}

// LocalResolver returns a resolver for absolute paths and paths relative to
// the working directory.
func LocalResolver() (*files.Resolver, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, &ResolveError{Kind: ResolveBasePath, Path: ".", Err: err}
	}
	r, err := files.NewResolver(wd)
	if err != nil {
		return nil, &ResolveError{Kind: ResolveBasePath, Path: wd, Err: err}
	}
	return r, nil
}

// AddBasePath adds a directory to resolve inputs of fragments appended from
// now on.
func (b *Builder) AddBasePath(dir string) error {
	if err := b.resolver.AddBase(dir); err != nil {
		return &ResolveError{Kind: ResolveBasePath, Path: dir, Err: err}
	}
	return nil
}

// AppendFile parses the fragment at path, canonicalizes its input paths and
// merges it into the simulation spec.
func (b *Builder) AppendFile(path string) error {
	resolver := b.resolver.Clone()
	canon, err := resolver.Resolve(path)
	if err != nil {
		return &ResolveError{Kind: ResolveSimulation, Path: path, Err: err}
	}

	f, err := os.Open(canon)
	if err != nil {
		return &LoadError{Role: "simulation spec", Path: canon, Err: err}
	}
	defer f.Close()
	fragment, err := spec.Parse(f)
	if err != nil {
		return &LoadError{Role: "simulation spec", Path: canon, Err: err}
	}

	// Relative paths inside the fragment may refer to its own directory.
	if err := resolver.AddBase(filepath.Dir(canon)); err != nil {
		return &ResolveError{Kind: ResolveSimulation, Path: canon, Err: err}
	}
	fragment, err = Canonicalize(fragment, resolver)
	if err != nil {
		return fmt.Errorf("fragment %s: %w", canon, err)
	}
	b.Append(fragment)
	return nil
}

// AppendString parses an inline fragment and merges it into the simulation spec. Its
// paths are resolved when the simulation is built.
func (b *Builder) AppendString(doc string) error {
	fragment, err := spec.ParseString(doc)
	if err != nil {
		return &LoadError{Role: "inline simulation spec", Path: "-", Err: err}
	}
	b.Append(fragment)
	return nil
}

// Fragment is a simulation spec fragment as given on a command line, either
// the path of a file or an inline YAML document.
type Fragment struct {
	Inline  bool
	Content string
}

// AppendFragments appends fragments in the given order, mixing files and
// inline documents.
func (b *Builder) AppendFragments(fragments []Fragment) error {
	for _, f := range fragments {
		var err error
		if f.Inline {
			err = b.AppendString(f.Content)
		} else {
			err = b.AppendFile(f.Content)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Append merges an already decoded fragment into the simulation spec.
func (b *Builder) Append(fragment spec.SimulationSpec) {
	b.spec = spec.Append(b.spec, fragment)
}

// Spec returns the merged spec so far.
func (b *Builder) Spec() spec.SimulationSpec { return b.spec }

// ResolvedSpec returns the merged spec with the input paths of every
// fragment, inline ones included, canonicalized.
func (b *Builder) ResolvedSpec() (spec.SimulationSpec, error) {
	return Canonicalize(b.spec, b.resolver)
}

// CreationTime is the time the builder was created, used for {datetime}.
func (b *Builder) CreationTime() time.Time { return b.creationTime }

// Resolver returns the builder-wide resolver.
func (b *Builder) Resolver() *files.Resolver { return b.resolver }

// Build instantiates the merged spec.
func (b *Builder) Build(ctx context.Context, opts Options) (*runner.Runner, error) {
	return Instantiate(ctx, b.spec, b.resolver, b.creationTime, opts)
}
