package spec

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureWarnings redirects the default logger for the duration of the test
// and returns a function reporting the number of warnings logged so far.
func captureWarnings(t *testing.T) func() int {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return func() int { return strings.Count(buf.String(), "level=WARN") }
}

func ptr[T any](v T) *T { return &v }

func TestAppendSurfelDistanceWarns(t *testing.T) {
	warnings := captureWarnings(t)

	merged := Append(
		SimulationSpec{SurfelDistance: ptr(0.02)},
		SimulationSpec{SurfelDistance: ptr(0.05)},
	)

	if merged.SurfelDistance == nil || *merged.SurfelDistance != 0.05 {
		t.Errorf("expected surfel distance 0.05, got %v", merged.SurfelDistance)
	}
	if n := warnings(); n != 1 {
		t.Errorf("expected 1 warning, got %d", n)
	}
}

func TestAppendOverrideScalars(t *testing.T) {
	warnings := captureWarnings(t)

	classic := TransportClassic
	a := SimulationSpec{Iterations: ptr(uint(3)), EffectInterval: ptr(uint(2)), Transport: &classic}
	b := SimulationSpec{EffectInterval: ptr(uint(5))}

	m := Append(a, b)
	if *m.Iterations != 3 {
		t.Errorf("expected iterations from first, got %d", *m.Iterations)
	}
	if *m.EffectInterval != 5 {
		t.Errorf("expected effect interval from second, got %d", *m.EffectInterval)
	}
	if *m.Transport != TransportClassic {
		t.Errorf("expected classic transport, got %s", *m.Transport)
	}

	// Same value on both sides is no conflict.
	Append(SimulationSpec{Iterations: ptr(uint(3))}, SimulationSpec{Iterations: ptr(uint(3))})
	if n := warnings(); n != 0 {
		t.Errorf("expected no warnings, got %d", n)
	}

	Append(SimulationSpec{Iterations: ptr(uint(3))}, SimulationSpec{Iterations: ptr(uint(4))})
	if n := warnings(); n != 1 {
		t.Errorf("expected 1 warning for differing iterations, got %d", n)
	}
}

func TestAppendText(t *testing.T) {
	tests := []struct {
		first, second, name string
	}{
		{"", "", ""},
		{"a", "", "a"},
		{"  ", "b", "b"},
		{"a ", " b", "a-b"},
	}
	for _, tt := range tests {
		m := Append(SimulationSpec{Name: tt.first}, SimulationSpec{Name: tt.second})
		if m.Name != tt.name {
			t.Errorf("Append(%q, %q).Name = %q, want %q", tt.first, tt.second, m.Name, tt.name)
		}
	}

	m := Append(SimulationSpec{Description: "one"}, SimulationSpec{Description: "two"})
	if m.Description != "one\n\ntwo" {
		t.Errorf("unexpected description %q", m.Description)
	}
}

func TestAppendListsConcatenate(t *testing.T) {
	a := SimulationSpec{
		Scenes:  []string{"a.obj", "b.obj"},
		Sources: []string{"rain.yml"},
		Effects: []EffectSpec{{Export: &ExportSpec{ObjPattern: "a.obj", MtlPattern: "a.mtl"}}},
		Rules:   []SurfelRuleSpec{{Deteriorate: &DeteriorateRule{From: "water", Factor: 0.1}}},
	}
	b := SimulationSpec{
		Scenes:  []string{"b.obj"},
		Sources: []string{"rain.yml"},
		Effects: []EffectSpec{{DumpSurfels: &DumpSurfelsSpec{ObjPattern: "s.obj"}}},
	}

	m := Append(a, b)
	if got := strings.Join(m.Scenes, ","); got != "a.obj,b.obj,b.obj" {
		t.Errorf("scenes: got %s", got)
	}
	if len(m.Sources) != 2 {
		t.Errorf("duplicates must be preserved, got %v", m.Sources)
	}
	if len(m.Effects) != 2 || m.Effects[0].Kind() != "export" || m.Effects[1].Kind() != "dump_surfels" {
		t.Errorf("effects out of order: %+v", m.Effects)
	}
	if len(m.Rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(m.Rules))
	}

	// Inputs stay untouched.
	if len(a.Scenes) != 2 || len(b.Scenes) != 1 {
		t.Error("append modified its inputs")
	}
}

func TestAppendMaterialsUnion(t *testing.T) {
	warnings := captureWarnings(t)

	a := SimulationSpec{SurfelsByMaterial: map[string]string{"iron": "iron.yml", "_": "concrete.yml"}}
	b := SimulationSpec{SurfelsByMaterial: map[string]string{"iron": "rusty.yml", "wood": "wood.yml"}}

	m := Append(a, b)
	if len(m.SurfelsByMaterial) != 3 {
		t.Errorf("expected 3 materials, got %d", len(m.SurfelsByMaterial))
	}
	if m.SurfelsByMaterial["iron"] != "rusty.yml" {
		t.Errorf("expected second to override iron, got %s", m.SurfelsByMaterial["iron"])
	}
	if a.SurfelsByMaterial["iron"] != "iron.yml" {
		t.Error("append modified first mapping")
	}
	if n := warnings(); n != 0 {
		t.Errorf("material override must be silent, got %d warnings", n)
	}
}

func TestAppendLogWarns(t *testing.T) {
	warnings := captureWarnings(t)
	m := Append(SimulationSpec{Log: ptr("a.log")}, SimulationSpec{Log: ptr("b.log")})
	if *m.Log != "b.log" {
		t.Errorf("expected b.log, got %s", *m.Log)
	}
	if n := warnings(); n != 1 {
		t.Errorf("expected 1 warning, got %d", n)
	}
}

func TestAppendBenchmarkFieldwise(t *testing.T) {
	a := SimulationSpec{Benchmark: &BenchSpec{Iterations: ptr("it.csv"), Tracing: ptr("tr-a.csv")}}
	b := SimulationSpec{Benchmark: &BenchSpec{Tracing: ptr("tr-b.csv"), Setup: ptr("setup.csv")}}

	m := Append(a, b)
	bench := m.Benchmark
	if bench == nil {
		t.Fatal("expected benchmark")
	}
	if *bench.Iterations != "it.csv" || *bench.Tracing != "tr-b.csv" || *bench.Setup != "setup.csv" || bench.Synthesis != nil {
		t.Errorf("unexpected benchmark %+v", bench)
	}

	if Append(SimulationSpec{}, SimulationSpec{}).Benchmark != nil {
		t.Error("expected nil benchmark when neither side sets one")
	}
}

func TestAppendAllEqualsFold(t *testing.T) {
	a := SimulationSpec{Name: "a", Scenes: []string{"1"}}
	b := SimulationSpec{Name: "b", Scenes: []string{"2"}}
	c := SimulationSpec{Name: "c", Scenes: []string{"3"}}

	all := AppendAll(a, b, c)
	fold := Append(Append(a, b), c)
	if all.Name != fold.Name || strings.Join(all.Scenes, "") != strings.Join(fold.Scenes, "") {
		t.Errorf("AppendAll differs from fold: %+v vs %+v", all, fold)
	}
	if all.Name != "a-b-c" {
		t.Errorf("unexpected name %s", all.Name)
	}
}
