package spec

import (
	"bytes"
	"strings"
	"testing"
)

const simulationYAML = `
name: Park Scene
scenes:
  - buddha.obj
iterations: 30
effect_interval: 10
surfel_distance: 0.1
sources:
  - rain.yml
surfels_by_material:
  bronze: iron.yml
  _: concrete.yml
transport: conserving
rules:
  - { from: water, to: rust, factor: 0.2 }
  - { from: water, factor: 0.1 }
  - { to: dust, amount: 0.01 }
benchmark:
  tracing: bench/tracing-{datetime}.csv
effects:
  - density:
      width: 64
      height: 32
      tex_pattern: "out/{iteration}/{id}-{entity}-{substance}.png"
  - layer:
      substance: rust
      materials: [bronze]
      surfel_lookup: { within: { radius: 0.5 } }
      albedo:
        tex_pattern: "out/{entity}-albedo.png"
        influence: 0.5
        stops:
          - { cenith: 0.5, sample: rust.png }
          - { cenith: 1.0 }
  - export:
      obj_pattern: out/scene.obj
      mtl_pattern: out/scene.mtl
  - dump_surfels:
      obj_pattern: out/surfels-{iteration}.obj
`

func TestParseSimulation(t *testing.T) {
	s, err := Parse(strings.NewReader(simulationYAML))
	if err != nil {
		t.Fatal(err)
	}

	if s.Name != "Park Scene" || s.IterationCount() != 30 || *s.EffectInterval != 10 {
		t.Errorf("unexpected header fields: %+v", s)
	}
	if s.SurfelsByMaterial["_"] != "concrete.yml" {
		t.Error("expected fallback material mapping")
	}
	if s.TransportMode() != TransportConserving {
		t.Errorf("expected conserving transport, got %s", s.TransportMode())
	}

	if len(s.Rules) != 3 || s.Rules[0].Transfer == nil || s.Rules[1].Deteriorate == nil || s.Rules[2].Deposit == nil {
		t.Errorf("rules decoded into wrong variants: %+v", s.Rules)
	}

	if len(s.Effects) != 4 {
		t.Fatalf("expected 4 effects, got %d", len(s.Effects))
	}
	d := s.Effects[0].Density
	if d == nil || d.IslandBleed != DefaultIslandBleed || d.SurfelLookup.Nearest.Count != DefaultNearestCount {
		t.Errorf("density defaults not applied: %+v", d)
	}
	l := s.Effects[1].Layer
	if l == nil || l.SurfelLookup.Within == nil || l.Albedo == nil || l.Normal != nil {
		t.Fatalf("unexpected layer %+v", l)
	}
	if l.Albedo.Influence != 0.5 || len(l.Albedo.Stops) != 2 || l.Albedo.Stops[1].Sample != nil {
		t.Errorf("unexpected albedo blend %+v", l.Albedo)
	}
	if !l.AppliesTo("bronze") || l.AppliesTo("wood") {
		t.Error("layer material filter wrong")
	}
	if s.Effects[3].Kind() != "dump_surfels" {
		t.Errorf("expected dump_surfels, got %s", s.Effects[3].Kind())
	}
}

func TestParseDefaults(t *testing.T) {
	s, err := ParseString("")
	if err != nil {
		t.Fatal(err)
	}
	if s.IterationCount() != 1 {
		t.Errorf("expected default of 1 iteration, got %d", s.IterationCount())
	}
	if s.TransportMode() != TransportDifferential {
		t.Errorf("expected differential default, got %s", s.TransportMode())
	}

	s, err = ParseString("consistent_transport: true")
	if err != nil {
		t.Fatal(err)
	}
	if s.TransportMode() != TransportConsistent {
		t.Errorf("expected consistent transport, got %s", s.TransportMode())
	}

	b, err := ParseString("effects: [{density: {width: 4, height: 4, tex_pattern: a.png}, layer: {substance: x}}]")
	if err == nil {
		t.Errorf("expected error for effect with two variants, got %+v", b)
	}
}

func TestParseRejects(t *testing.T) {
	docs := map[string]string{
		"unknown transport": "transport: teleport",
		"ambiguous rule":    "rules: [{from: a}]",
		"bad lookup":        "effects: [{density: {width: 4, height: 4, tex_pattern: a.png, surfel_lookup: {}}}]",
		"zero size":         "effects: [{density: {width: 0, height: 4, tex_pattern: a.png}}]",
		"influence":         "effects: [{layer: {substance: x, albedo: {tex_pattern: a.png, influence: 2}}}]",
		"negative count":    "iterations: -1",
	}
	for name, doc := range docs {
		if _, err := ParseString(doc); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	s, err := Parse(strings.NewReader(simulationYAML))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}

	again, err := Parse(&buf)
	if err != nil {
		t.Fatalf("re-parsing written spec: %v\n%s", err, buf.String())
	}
	if len(again.Effects) != len(s.Effects) || len(again.Rules) != len(s.Rules) || again.Name != s.Name {
		t.Errorf("written spec lost content:\n%s", buf.String())
	}
}
