// Package scene holds the meshes and materials a simulation runs on and reads
// and writes them as Wavefront OBJ/MTL.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is a mesh vertex.
type Vertex struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	TexCoords mgl32.Vec2
}

// Triangle is three counter-clockwise vertices.
type Triangle [3]Vertex

// Centroid returns the mean of the three positions.
func (t *Triangle) Centroid() mgl32.Vec3 {
	return t[0].Position.Add(t[1].Position).Add(t[2].Position).Mul(1.0 / 3.0)
}

// Area returns the surface area in world units.
func (t *Triangle) Area() float32 {
	e1 := t[1].Position.Sub(t[0].Position)
	e2 := t[2].Position.Sub(t[0].Position)
	return 0.5 * e1.Cross(e2).Len()
}

// FaceNormal returns the normalized geometric normal.
func (t *Triangle) FaceNormal() mgl32.Vec3 {
	e1 := t[1].Position.Sub(t[0].Position)
	e2 := t[2].Position.Sub(t[0].Position)
	n := e1.Cross(e2)
	if n.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return n.Normalize()
}

// Interpolate returns the vertex at barycentric coordinates (u, v) where the
// weight of the first vertex is 1 - u - v.
func (t *Triangle) Interpolate(u, v float32) Vertex {
	w := 1 - u - v
	n := t[0].Normal.Mul(w).Add(t[1].Normal.Mul(u)).Add(t[2].Normal.Mul(v))
	if n.Len() > 0 {
		n = n.Normalize()
	}
	return Vertex{
		Position:  t[0].Position.Mul(w).Add(t[1].Position.Mul(u)).Add(t[2].Position.Mul(v)),
		Normal:    n,
		TexCoords: t[0].TexCoords.Mul(w).Add(t[1].TexCoords.Mul(u)).Add(t[2].TexCoords.Mul(v)),
	}
}

// Mesh is a triangle soup. Meshes are shared between entity copies and must
// not be modified after loading.
type Mesh struct {
	Triangles []Triangle
}

// Entity is a named mesh with a material.
type Entity struct {
	Name     string
	Mesh     *Mesh
	Material Material
}

// WithMaterial returns a copy of e that shares the mesh and uses m.
func (e Entity) WithMaterial(m Material) Entity {
	e.Material = m
	return e
}

// CloneEntities returns a new slice holding copies of entities. Meshes are
// shared; materials are values.
func CloneEntities(entities []Entity) []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	return out
}

// MergeMeshes concatenates the triangles of all entities into one mesh.
func MergeMeshes(entities []Entity) *Mesh {
	n := 0
	for _, e := range entities {
		n += len(e.Mesh.Triangles)
	}
	merged := &Mesh{Triangles: make([]Triangle, 0, n)}
	for _, e := range entities {
		merged.Triangles = append(merged.Triangles, e.Mesh.Triangles...)
	}
	return merged
}

// TriangleCount sums the triangles over all entities.
func TriangleCount(entities []Entity) int {
	n := 0
	for _, e := range entities {
		n += len(e.Mesh.Triangles)
	}
	return n
}
