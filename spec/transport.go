package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Transport selects how substances move between tons and surfels on contact.
type Transport string

const (
	// TransportClassic moves a fixed fraction of the ton's load to the surfel
	// and lets the ton pick up from the surfel independently.
	TransportClassic Transport = "classic"
	// TransportConsistent applies deposition before pickup, each against the
	// concentrations at contact time.
	TransportConsistent Transport = "consistent"
	// TransportConserving moves mass without creating or destroying it.
	TransportConserving Transport = "conserving"
	// TransportDifferential moves mass along the concentration difference.
	TransportDifferential Transport = "differential"
)

// Valid reports whether t names a known transport.
func (t Transport) Valid() bool {
	switch t {
	case TransportClassic, TransportConsistent, TransportConserving, TransportDifferential:
		return true
	}
	return false
}

func (t *Transport) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	tr := Transport(s)
	if !tr.Valid() {
		return fmt.Errorf("line %d: unknown transport %q", value.Line, s)
	}
	*t = tr
	return nil
}
