package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/pthm-cable/weathering/errcode"
	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/runner"
	"github.com/pthm-cable/weathering/tex"
)

const groundOBJ = `mtllib scene.mtl
v 0 0 0
v 0 0 1
v 1 0 1
v 1 0 0
vt 0 0
vt 0 1
vt 1 1
vt 1 0
vn 0 1 0
o ground
usemtl stone
f 1/1/1 2/2/1 3/3/1 4/4/1
o pane
usemtl glass
f 1/1/1 2/2/1 3/3/1
`

const groundMTL = `newmtl stone
Kd 0.5 0.5 0.5

newmtl glass
Kd 1 1 1
`

const cloudOBJ = `v 0 1 0
v 1 1 0
v 1 1 1
v 0 1 1
vn 0 -1 0
o cloud
f 1//1 2//1 3//1 4//1
`

const rainSource = `name: rain
mesh: cloud.obj
emission_count: 20
p_straight: 1
p_parabolic: 0
p_flow: 0
initial:
  humidity: 1
absorb:
  humidity: 0.1
interaction_radius: 0.1
parabola_height: 0.1
flow_distance: 0.1
`

const stoneSurfel = `name: stone
reflectance:
  delta_straight: 0.5
  delta_parabolic: 0.5
  delta_flow: 0.5
initial:
  rust: 0
  humidity: 0
deposit:
  humidity: 0.5
rules:
  - from: humidity
    to: rust
    factor: 0.1
`

const simulationSpec = `name: rain on stone
scenes: [scene.obj]
sources: [sources/rain.yml]
surfels_by_material:
  stone: surfels/stone.yml
surfel_distance: 0.1
iterations: 1
`

// writeTree creates files below dir from a map of slash separated relative
// paths to contents.
func writeTree(t *testing.T, dir string, tree map[string]string) {
	t.Helper()
	for rel, content := range tree {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"scene.obj":          groundOBJ,
		"scene.mtl":          groundMTL,
		"sources/rain.yml":   rainSource,
		"sources/cloud.obj":  cloudOBJ,
		"surfels/stone.yml":  stoneSurfel,
		"sims/rain.yml":      simulationSpec,
		"sims/empty.yml":     "",
		"sims/scene.obj":     groundOBJ,
		"sims/scene.mtl":     groundMTL,
		"sims/only-name.yml": "name: named\n",
	})
	return dir
}

func newBuilder(t *testing.T, dir string) *Builder {
	t.Helper()
	resolver, err := files.NewResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(resolver, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func testOptions() Options {
	opts := Options{Oversampling: 4}
	opts.Engine.Threads = 2
	opts.Engine.Seed = 1
	opts.Runner.Threads = 2
	return opts
}

func densityEffect(dir string) string {
	pattern := filepath.ToSlash(filepath.Join(dir, "out", "{iteration}", "{substance}-{entity}.png"))
	return fmt.Sprintf("effects:\n  - density:\n      width: 64\n      height: 64\n      tex_pattern: %q\n", pattern)
}

func TestDensityScenario(t *testing.T) {
	dir := fixture(t)
	writeTree(t, dir, map[string]string{"simulation.yml": simulationSpec})
	b := newBuilder(t, dir)
	if err := b.AppendFile("simulation.yml"); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendString(densityEffect(dir)); err != nil {
		t.Fatal(err)
	}

	r, err := b.Build(context.Background(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := r.Substances(); !slices.Equal(got, []string{"humidity", "rust"}) {
		t.Fatalf("substances = %v", got)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var found []string
	err = filepath.WalkDir(filepath.Join(dir, "out"), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			found = append(found, path)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 4 {
		t.Fatalf("expected 4 density textures, got %v", found)
	}
	for _, iteration := range []string{"0", "1"} {
		for _, substance := range []string{"humidity", "rust"} {
			path := filepath.Join(dir, "out", iteration, substance+"-ground.png")
			w, h, err := tex.Size(path)
			if err != nil {
				t.Fatal(err)
			}
			if w != 64 || h != 64 {
				t.Errorf("%s is %dx%d", path, w, h)
			}
		}
	}
}

func TestSubstanceOrderIsStable(t *testing.T) {
	dir := fixture(t)
	var tables [][]string
	for range 2 {
		b := newBuilder(t, dir)
		if err := b.AppendFile("sims/rain.yml"); err != nil {
			t.Fatal(err)
		}
		if err := b.AppendString(densityEffect(dir)); err != nil {
			t.Fatal(err)
		}
		r, err := b.Build(context.Background(), testOptions())
		if err != nil {
			t.Fatal(err)
		}
		tables = append(tables, r.Substances())
		r.Close()
	}
	if !slices.Equal(tables[0], tables[1]) {
		t.Fatalf("substance order differs: %v vs %v", tables[0], tables[1])
	}
}

func TestAppendFileResolvesRelativeToFragment(t *testing.T) {
	dir := fixture(t)
	b := newBuilder(t, dir)
	if err := b.AppendFile("sims/rain.yml"); err != nil {
		t.Fatal(err)
	}
	s := b.Spec()

	// scene.obj exists next to the fragment and at the root. The builder's
	// base path wins over the fragment's directory.
	if want := filepath.Join(dir, "scene.obj"); s.Scenes[0] != mustCanon(t, want) {
		t.Errorf("scene resolved to %s, want %s", s.Scenes[0], want)
	}
	if want := filepath.Join(dir, "surfels", "stone.yml"); s.SurfelsByMaterial["stone"] != mustCanon(t, want) {
		t.Errorf("surfel spec resolved to %s", s.SurfelsByMaterial["stone"])
	}
}

func mustCanon(t *testing.T, path string) string {
	t.Helper()
	canon, err := files.Canonicalize(path)
	if err != nil {
		t.Fatal(err)
	}
	return canon
}

func TestAppendFileMissing(t *testing.T) {
	b := newBuilder(t, t.TempDir())
	err := b.AppendFile("nope.yml")
	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) || resolveErr.Kind != ResolveSimulation {
		t.Fatalf("expected simulation ResolveError, got %v", err)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	dir := fixture(t)
	b := newBuilder(t, dir)
	if err := b.AppendString("name: first"); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendFile("sims/only-name.yml"); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendString("name: last"); err != nil {
		t.Fatal(err)
	}
	if got := b.Spec().Name; got != "first-named-last" {
		t.Errorf("name = %q", got)
	}
}

func TestAppendFragmentsKeepsCommandLineOrder(t *testing.T) {
	dir := fixture(t)
	b := newBuilder(t, dir)
	err := b.AppendFragments([]Fragment{
		{Inline: true, Content: "name: first"},
		{Content: "sims/only-name.yml"},
		{Inline: true, Content: "name: last"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Spec().Name; got != "first-named-last" {
		t.Errorf("name = %q", got)
	}

	err = b.AppendFragments([]Fragment{{Content: "missing.yml"}, {Inline: true, Content: "name: never"}})
	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if got := b.Spec().Name; got != "first-named-last" {
		t.Errorf("fragments after a failure were appended: %q", got)
	}
}

func TestResolvedSpecCanonicalizesInlineFragments(t *testing.T) {
	dir := fixture(t)
	b := newBuilder(t, dir)
	if err := b.AppendString("scenes: [scene.obj]\nsurfels_by_material: {stone: surfels/stone.yml}\n"); err != nil {
		t.Fatal(err)
	}
	if got := b.Spec().Scenes[0]; got != "scene.obj" {
		t.Fatalf("inline fragment was rewritten on append: %q", got)
	}

	s, err := b.ResolvedSpec()
	if err != nil {
		t.Fatal(err)
	}
	if want := mustCanon(t, filepath.Join(dir, "scene.obj")); s.Scenes[0] != want {
		t.Errorf("scene resolved to %s, want %s", s.Scenes[0], want)
	}
	if want := mustCanon(t, filepath.Join(dir, "surfels", "stone.yml")); s.SurfelsByMaterial["stone"] != want {
		t.Errorf("surfel spec resolved to %s, want %s", s.SurfelsByMaterial["stone"], want)
	}

	if err := b.AppendString("scenes: [nowhere.obj]"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ResolvedSpec(); !errors.As(err, new(*ResolveError)) {
		t.Errorf("expected ResolveError for an unknown scene, got %v", err)
	}
}

func TestInstantiateErrors(t *testing.T) {
	dir := fixture(t)
	writeTree(t, dir, map[string]string{
		"surfels/inert.yml": "reflectance: {delta_straight: 1, delta_parabolic: 1, delta_flow: 1}\n",
		"sources/dry.yml":   "mesh: cloud.obj\nemission_count: 1\np_straight: 1\np_parabolic: 0\np_flow: 0\n",
		"sources/hollow.yml": "mesh: ../scene.mtl\nemission_count: 1\np_straight: 1\np_parabolic: 0\np_flow: 0\n" +
			"initial: {humidity: 1}\n",
	})
	effects := densityEffect(dir)

	tests := []struct {
		name      string
		fragments []string
		check     func(error) bool
	}{
		{"no surfel specs", nil, func(err error) bool { return errors.Is(err, ErrSurfelSpecsMissing) }},
		{"no sources", []string{"surfels_by_material: {stone: surfels/stone.yml}"},
			func(err error) bool { return errors.Is(err, ErrSourcesMissing) }},
		{"no substances", []string{"surfels_by_material: {stone: surfels/inert.yml}\nsources: [sources/dry.yml]"},
			func(err error) bool { return errors.Is(err, ErrSubstancesMissing) }},
		{"no effects", []string{"surfels_by_material: {stone: surfels/stone.yml}\nsources: [sources/rain.yml]"},
			func(err error) bool { return errors.Is(err, ErrEffectsMissing) }},
		{"no surfel distance", []string{"surfels_by_material: {stone: surfels/stone.yml}\nsources: [sources/rain.yml]", effects},
			func(err error) bool {
				var e *InvalidSurfelDistanceError
				return errors.As(err, &e) && e.Value == nil
			}},
		{"negative surfel distance", []string{"surfels_by_material: {stone: surfels/stone.yml}\nsources: [sources/rain.yml]\nsurfel_distance: -1", effects},
			func(err error) bool {
				var e *InvalidSurfelDistanceError
				return errors.As(err, &e) && e.Value != nil && *e.Value == -1
			}},
		{"missing scene", []string{"scenes: [missing.obj]\nsurfels_by_material: {stone: surfels/stone.yml}"},
			func(err error) bool {
				var e *ResolveError
				return errors.As(err, &e) && e.Kind == ResolveScene
			}},
		{"empty emission mesh", []string{"surfels_by_material: {stone: surfels/stone.yml}\nsources: [sources/hollow.yml]\nsurfel_distance: 0.1", effects},
			func(err error) bool {
				var e *SourceError
				return errors.As(err, &e)
			}},
		{"unknown rule substance", []string{simulationSpec, effects, "rules: [{from: moss, factor: 0.5}]"},
			func(err error) bool {
				var e *UnknownSubstanceError
				return errors.As(err, &e) && e.Name == "moss" && errcode.Of(err) == errcode.CodeUnknownSubstance
			}},
		{"unknown layer substance", []string{simulationSpec,
			"effects:\n  - layer:\n      substance: moss\n      albedo: {tex_pattern: out.png, width: 4}"},
			func(err error) bool {
				var e *UnknownSubstanceError
				return errors.As(err, &e) && e.Name == "moss"
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, dir)
			for _, f := range tt.fragments {
				if err := b.AppendString(f); err != nil {
					t.Fatal(err)
				}
			}
			r, err := b.Build(context.Background(), testOptions())
			if err == nil {
				r.Close()
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestSetupBenchmark(t *testing.T) {
	dir := fixture(t)
	b := newBuilder(t, dir)
	if err := b.AppendFile("sims/rain.yml"); err != nil {
		t.Fatal(err)
	}
	pattern := filepath.ToSlash(filepath.Join(dir, "bench", "setup-{datetime}.csv"))
	if err := b.AppendString(densityEffect(dir) + fmt.Sprintf("benchmark:\n  setup: %q\n", pattern)); err != nil {
		t.Fatal(err)
	}
	r, err := b.Build(context.Background(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	path := files.Pattern(pattern).Expand(files.Vars{Datetime: files.Timestamp(b.CreationTime())})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); len(got) == 0 || got[:len("sample,seconds")] != "sample,seconds" {
		t.Errorf("unexpected setup benchmark %q", got)
	}
}

func TestExtractKeys(t *testing.T) {
	names := []string{"humidity", "rust", "moss"}
	got := ExtractKeys(map[string]float64{"rust": 0.25, "sand": 3}, names, -1)
	want := []float64{-1, 0.25, -1}
	if !slices.Equal(got, want) {
		t.Errorf("ExtractKeys = %v, want %v", got, want)
	}
	if got := ExtractKeys(nil, names, 0); !slices.Equal(got, []float64{0, 0, 0}) {
		t.Errorf("ExtractKeys(nil) = %v", got)
	}
}

func TestRunnerErrorsCarryCodes(t *testing.T) {
	if errcode.Of(runner.ErrWithinLookupUnsupported) != errcode.CodeWithinLookupUnsupported {
		t.Error("within lookup error lost its code")
	}
	if errcode.Of(fmt.Errorf("wrapped: %w", ErrEffectsMissing)) != errcode.CodeEffectsMissing {
		t.Error("wrapped error lost its code")
	}
}
