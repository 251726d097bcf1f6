package runner

import (
	"fmt"

	"github.com/pthm-cable/weathering/errcode"
)

var (
	// ErrWithinLookupUnsupported is returned when a surfel table is requested
	// for the within-radius lookup policy.
	ErrWithinLookupUnsupported = errcode.New(errcode.CodeWithinLookupUnsupported,
		"surfel tables support only the nearest lookup policy, within is not implemented")
	// ErrOutputSizeUndetermined is returned for a blend without explicit size,
	// without an original texture and without stop samples.
	ErrOutputSizeUndetermined = errcode.New(errcode.CodeOutputSizeUndetermined,
		"cannot determine blend output size: no width or height, no original texture and no stop sample")
	// ErrExportPairIncomplete is returned when only one of obj_pattern and
	// mtl_pattern is given.
	ErrExportPairIncomplete = errcode.New(errcode.CodeExportPairIncomplete,
		"obj_pattern and mtl_pattern must be given together")
	// ErrBlendStopsMissing is returned when a blend stop has no texture to
	// use, either because the blend has no stops at all or because a stop
	// without sample falls back to a material without original texture.
	ErrBlendStopsMissing = errcode.New(errcode.CodeBlendStopsMissing,
		"blend stop has no sample and the material has no original texture")
)

// CacheMissError reports a surfel table lookup for a key that was never
// prepared.
type CacheMissError struct {
	Entity int
	Width  int
	Height int
	Count  int
	Bleed  int
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("surfel table for entity %d at %dx%d (nearest %d, bleed %d) was not prepared",
		e.Entity, e.Width, e.Height, e.Count, e.Bleed)
}

func (e *CacheMissError) Code() errcode.Code { return errcode.CodeCacheMiss }

func outputError(role, path string, err error) error {
	return errcode.Wrap(errcode.CodeOutput, fmt.Sprintf("writing %s %s", role, path), err)
}

func loadError(role, path string, err error) error {
	return errcode.Wrap(errcode.CodeLoad, fmt.Sprintf("loading %s %s", role, path), err)
}
