package sim

import (
	"fmt"
	"slices"

	"github.com/pthm-cable/weathering/errcode"
)

// Substances is the ordered, duplicate-free table of substance names. A
// substance's index in the table is its index in every per-substance vector.
type Substances []string

// Index returns the index of name.
func (s Substances) Index(name string) (int, bool) {
	i := slices.Index(s, name)
	return i, i >= 0
}

// Lookup returns the index of name, or an *UnknownSubstanceError naming
// context as the referrer.
func (s Substances) Lookup(name, context string) (int, error) {
	if i, ok := s.Index(name); ok {
		return i, nil
	}
	return 0, &UnknownSubstanceError{Name: name, Context: context}
}

// UnknownSubstanceError reports a reference to a substance that no surfel or
// source spec mentions.
type UnknownSubstanceError struct {
	Name    string
	Context string
}

func (e *UnknownSubstanceError) Error() string {
	return fmt.Sprintf("%s references unknown substance %q", e.Context, e.Name)
}

func (e *UnknownSubstanceError) Code() errcode.Code { return errcode.CodeUnknownSubstance }
