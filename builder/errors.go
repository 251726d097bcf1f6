package builder

import (
	"fmt"

	"github.com/pthm-cable/weathering/errcode"
	"github.com/pthm-cable/weathering/sim"
)

// Configuration incompleteness. These are reported before any simulation work
// begins and match with errors.Is.
var (
	ErrSurfelSpecsMissing = errcode.New(errcode.CodeSurfelSpecsMissing,
		"simulation spec maps no materials to surfel specs, surface properties unspecified")
	ErrSourcesMissing = errcode.New(errcode.CodeSourcesMissing,
		"simulation spec defines no ton sources, no emission possible")
	ErrSubstancesMissing = errcode.New(errcode.CodeSubstancesMissing,
		"no surfel or source spec mentions a substance, no substance transport possible")
	ErrEffectsMissing = errcode.New(errcode.CodeEffectsMissing,
		"simulation spec defines no effects, no way to obtain results")
)

// UnknownSubstanceError reports a rule, layer or source that names a
// substance absent from the substance table.
type UnknownSubstanceError = sim.UnknownSubstanceError

// InvalidSurfelDistanceError reports a missing or non-positive surfel
// distance. Value is nil when the distance was not set.
type InvalidSurfelDistanceError struct {
	Value *float64
}

func (e *InvalidSurfelDistanceError) Error() string {
	if e.Value == nil {
		return "surfel distance is not set"
	}
	return fmt.Sprintf("surfel distance must be positive, got %g", *e.Value)
}

func (e *InvalidSurfelDistanceError) Code() errcode.Code { return errcode.CodeInvalidSurfelDistance }

// ResolveKind names the role of a path that failed to resolve.
type ResolveKind int

const (
	ResolveBasePath ResolveKind = iota
	ResolveSimulation
	ResolveSourceSpec
	ResolveSourceMesh
	ResolveSurfelSpec
	ResolveScene
	ResolveLayerSample
	ResolveBenchmark
)

func (k ResolveKind) String() string {
	switch k {
	case ResolveBasePath:
		return "custom base path"
	case ResolveSimulation:
		return "simulation spec"
	case ResolveSourceSpec:
		return "ton source spec"
	case ResolveSourceMesh:
		return "ton source emission mesh"
	case ResolveSurfelSpec:
		return "surfel spec"
	case ResolveScene:
		return "scene to simulate"
	case ResolveLayerSample:
		return "texture sample referenced by layer effect"
	case ResolveBenchmark:
		return "benchmark csv"
	}
	return fmt.Sprintf("ResolveKind(%d)", int(k))
}

// ResolveError reports a path that could not be found on the search path.
type ResolveError struct {
	Kind ResolveKind
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s %q could not be resolved: %v", e.Kind, e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func (e *ResolveError) Code() errcode.Code { return errcode.CodeResolve }

// LoadError reports a file that was found but could not be read or parsed.
// Role describes what the file was expected to contain.
type LoadError struct {
	Role string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s %s: %v", e.Role, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Code() errcode.Code { return errcode.CodeLoad }

// SourceError reports a ton source spec that cannot be turned into a source,
// such as one with an empty emission mesh or unusable motion probabilities.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("ton source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Code() errcode.Code { return errcode.CodeInvalidSource }
