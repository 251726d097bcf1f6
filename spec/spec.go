// Package spec defines the declarative simulation description, the surfel and
// source descriptions it references, and how partial descriptions merge.
package spec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SimulationSpec describes one weathering simulation. All fields are optional
// in a single fragment; fragments are combined with Append.
type SimulationSpec struct {
	Name                string            `yaml:"name,omitempty"`
	Description         string            `yaml:"description,omitempty"`
	Scenes              []string          `yaml:"scenes,omitempty"`
	Iterations          *uint             `yaml:"iterations,omitempty"`
	EffectInterval      *uint             `yaml:"effect_interval,omitempty"`
	Log                 *string           `yaml:"log,omitempty"`
	SurfelDistance      *float64          `yaml:"surfel_distance,omitempty"`
	Sources             []string          `yaml:"sources,omitempty"`
	SurfelsByMaterial   map[string]string `yaml:"surfels_by_material,omitempty"`
	Effects             []EffectSpec      `yaml:"effects,omitempty"`
	Benchmark           *BenchSpec        `yaml:"benchmark,omitempty"`
	Transport           *Transport        `yaml:"transport,omitempty"`
	ConsistentTransport *bool             `yaml:"consistent_transport,omitempty"`
	Rules               []SurfelRuleSpec  `yaml:"rules,omitempty"`
}

// BenchSpec names optional CSV targets for duration samples.
type BenchSpec struct {
	Iterations *string `yaml:"iterations,omitempty"`
	Tracing    *string `yaml:"tracing,omitempty"`
	Synthesis  *string `yaml:"synthesis,omitempty"`
	Setup      *string `yaml:"setup,omitempty"`
}

// IterationCount returns the configured iteration count, defaulting to 1.
func (s *SimulationSpec) IterationCount() uint {
	if s.Iterations == nil {
		return 1
	}
	return *s.Iterations
}

// TransportMode returns the transport to simulate with. An explicit transport
// wins; otherwise the consistent flag selects consistent transport, and
// differential is the default.
func (s *SimulationSpec) TransportMode() Transport {
	if s.Transport != nil {
		return *s.Transport
	}
	if s.ConsistentTransport != nil && *s.ConsistentTransport {
		return TransportConsistent
	}
	return TransportDifferential
}

// Parse decodes a simulation fragment from YAML.
func Parse(r io.Reader) (SimulationSpec, error) {
	var s SimulationSpec
	if err := decode(r, &s); err != nil {
		return SimulationSpec{}, fmt.Errorf("parsing simulation spec: %w", err)
	}
	return s, nil
}

// ParseString decodes an inline simulation fragment.
func ParseString(doc string) (SimulationSpec, error) {
	var s SimulationSpec
	if err := yaml.Unmarshal([]byte(doc), &s); err != nil {
		return SimulationSpec{}, fmt.Errorf("parsing simulation spec: %w", err)
	}
	return s, nil
}

// WriteYAML encodes the spec as YAML.
func (s *SimulationSpec) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding simulation spec: %w", err)
	}
	return enc.Close()
}

// LoadSurfelSpec reads a surfel description from path.
func LoadSurfelSpec(path string) (SurfelSpec, error) {
	var s SurfelSpec
	if err := decodeFile(path, &s); err != nil {
		return SurfelSpec{}, err
	}
	return s, nil
}

// LoadSourceSpec reads a ton source description from path.
func LoadSourceSpec(path string) (SourceSpec, error) {
	var s SourceSpec
	if err := decodeFile(path, &s); err != nil {
		return SourceSpec{}, err
	}
	return s, nil
}

func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(f, out)
}

func decode(r io.Reader, out any) error {
	err := yaml.NewDecoder(r).Decode(out)
	if err == io.EOF {
		// Empty documents are valid, empty fragments.
		return nil
	}
	return err
}
