package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const cubeFaceOBJ = `# two quads with different materials
mtllib scene.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
o Wall
usemtl bronze
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl concrete
f 1/1 2/2 5/3
o Floor
f -5/1/1 -4/2/1 -3/3/1
`

const cubeFaceMTL = `newmtl bronze
Kd 0.8 0.5 0.2
map_Kd textures/bronze.png
bump -bm 0.5 textures/bronze_n.png

newmtl concrete
map_Pr rough.png
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scene.obj"), []byte(cubeFaceOBJ), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(cubeFaceMTL), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadOBJ(t *testing.T) {
	dir := writeFixture(t)
	entities, err := LoadOBJ(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}

	if len(entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(entities))
	}
	wall := entities[0]
	if wall.Name != "Wall" || wall.Material.Name() != "bronze" {
		t.Errorf("unexpected first entity %s/%s", wall.Name, wall.Material.Name())
	}
	if len(wall.Mesh.Triangles) != 2 {
		t.Errorf("quad should fan into 2 triangles, got %d", len(wall.Mesh.Triangles))
	}
	if got := wall.Material.DiffuseColorMap(); got != filepath.Join(dir, "textures", "bronze.png") {
		t.Errorf("unexpected albedo path %s", got)
	}
	if got := wall.Material.NormalMap(); got != filepath.Join(dir, "textures", "bronze_n.png") {
		t.Errorf("bump options should be skipped, got %s", got)
	}
	if kd, ok := wall.Material.DiffuseColor(); !ok || kd[0] != 0.8 {
		t.Errorf("unexpected Kd %v", kd)
	}

	// Missing normals are replaced by the face normal.
	second := entities[1].Mesh.Triangles[0]
	if n := second[0].Normal; n.Len() < 0.99 {
		t.Errorf("expected generated unit normal, got %v", n)
	}

	floor := entities[2]
	if floor.Name != "Floor" || floor.Material.Name() != "concrete" {
		t.Errorf("material must persist across objects, got %s/%s", floor.Name, floor.Material.Name())
	}
	if floor.Mesh.Triangles[0][0].Position != (mgl32.Vec3{0, 0, 0}) {
		t.Errorf("negative index resolved wrongly: %v", floor.Mesh.Triangles[0][0].Position)
	}
}

func TestSaveOBJRoundTrip(t *testing.T) {
	dir := writeFixture(t)
	entities, err := LoadOBJ(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "export")
	if err := os.MkdirAll(out, 0755); err != nil {
		t.Fatal(err)
	}
	if err := SaveOBJ(entities, filepath.Join(out, "a.obj"), filepath.Join(out, "a.mtl")); err != nil {
		t.Fatal(err)
	}

	again, err := LoadOBJ(filepath.Join(out, "a.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if TriangleCount(again) != TriangleCount(entities) {
		t.Errorf("triangle count changed: %d != %d", TriangleCount(again), TriangleCount(entities))
	}
	for i := range entities {
		for c := ChannelAlbedo; c < numChannels; c++ {
			if again[i].Material.Map(c) != entities[i].Material.Map(c) {
				t.Errorf("entity %d %s map changed: %q != %q", i, c, again[i].Material.Map(c), entities[i].Material.Map(c))
			}
		}
	}
}

func TestMaterialBuilderDoesNotMutate(t *testing.T) {
	base := NewMaterialBuilder(Material{}).Name("iron").DiffuseColorMap("a.png").Build()
	derived := NewMaterialBuilder(base).Map(ChannelNormal, "n.png").Build()

	if base.NormalMap() != "" {
		t.Error("deriving a material changed its base")
	}
	if derived.DiffuseColorMap() != "a.png" || derived.Name() != "iron" {
		t.Error("derived material lost base properties")
	}

	e := Entity{Name: "e", Mesh: &Mesh{}, Material: base}
	clone := CloneEntities([]Entity{e})
	clone[0] = clone[0].WithMaterial(derived)
	if e.Material.NormalMap() != "" {
		t.Error("entity copy shares material state")
	}
	if clone[0].Mesh != e.Mesh {
		t.Error("entity copies should share meshes")
	}
}

func TestMergeMeshes(t *testing.T) {
	dir := writeFixture(t)
	entities, err := LoadOBJ(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}
	merged := MergeMeshes(entities)
	if len(merged.Triangles) != 4 {
		t.Errorf("expected 4 triangles, got %d", len(merged.Triangles))
	}
}
