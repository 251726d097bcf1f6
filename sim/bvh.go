package sim

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/weathering/scene"
)

// bvhMaxLeafSize is the triangle count below which nodes are not split.
const bvhMaxLeafSize = 4

// hitEpsilon rejects self-intersections right at the ray origin.
const hitEpsilon = 1e-5

type bvhNode struct {
	min, max    mgl32.Vec3
	left, right *bvhNode
	tris        []int32 // non-nil ⇒ leaf
}

type bvhTri struct {
	idx      int32
	min, max mgl32.Vec3
	centroid mgl32.Vec3
}

// bvh accelerates ray casts against the simulated triangles. It is read-only
// after construction and safe for concurrent queries.
type bvh struct {
	root *bvhNode
	tris []scene.Triangle
}

// hit describes the closest intersection of a ray. The normal faces the
// incoming ray.
type hit struct {
	t        float32
	point    mgl32.Vec3
	normal   mgl32.Vec3
	triangle int32
}

func newBVH(tris []scene.Triangle) *bvh {
	b := &bvh{tris: tris}
	if len(tris) == 0 {
		return b
	}
	items := make([]bvhTri, len(tris))
	for i := range tris {
		t := &tris[i]
		lo, hi := t[0].Position, t[0].Position
		for _, v := range t[1:] {
			lo, hi = vecMin(lo, v.Position), vecMax(hi, v.Position)
		}
		items[i] = bvhTri{idx: int32(i), min: lo, max: hi, centroid: t.Centroid()}
	}
	b.root = buildBVHRec(items)
	return b
}

func buildBVHRec(items []bvhTri) *bvhNode {
	lo, hi := items[0].min, items[0].max
	cmin, cmax := items[0].centroid, items[0].centroid
	for _, it := range items[1:] {
		lo, hi = vecMin(lo, it.min), vecMax(hi, it.max)
		cmin, cmax = vecMin(cmin, it.centroid), vecMax(cmax, it.centroid)
	}

	if len(items) <= bvhMaxLeafSize {
		leaf := make([]int32, len(items))
		for i, it := range items {
			leaf[i] = it.idx
		}
		return &bvhNode{min: lo, max: hi, tris: leaf}
	}

	// Split at the median centroid along the axis of largest centroid spread.
	spread := cmax.Sub(cmin)
	axis := 0
	if spread[1] > spread[axis] {
		axis = 1
	}
	if spread[2] > spread[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})
	mid := len(items) / 2

	return &bvhNode{
		min:   lo,
		max:   hi,
		left:  buildBVHRec(items[:mid]),
		right: buildBVHRec(items[mid:]),
	}
}

// cast returns the closest hit along origin + t*dir for t in (hitEpsilon, maxT].
func (b *bvh) cast(origin, dir mgl32.Vec3, maxT float32) (hit, bool) {
	if b.root == nil {
		return hit{}, false
	}
	inv := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	best := hit{t: maxT}
	found := false

	var stack [64]*bvhNode
	sp := 0
	stack[sp] = b.root
	sp++
	for sp > 0 {
		sp--
		n := stack[sp]
		if tNear, ok := rayAABB(origin, inv, n.min, n.max); !ok || tNear > best.t {
			continue
		}
		if n.tris != nil {
			for _, ti := range n.tris {
				if t, ok := intersectTriangle(origin, dir, &b.tris[ti]); ok && t < best.t {
					best = hit{t: t, triangle: ti}
					found = true
				}
			}
			continue
		}
		if sp+2 <= len(stack) {
			stack[sp] = n.left
			stack[sp+1] = n.right
			sp += 2
		}
	}

	if found {
		best.point = origin.Add(dir.Mul(best.t))
		best.normal = b.tris[best.triangle].FaceNormal()
		if best.normal.Dot(dir) > 0 {
			best.normal = best.normal.Mul(-1)
		}
	}
	return best, found
}

// rayAABB is a slab test returning the entry distance, clamped to zero when
// the origin is inside the box.
func rayAABB(o, inv, lo, hi mgl32.Vec3) (float32, bool) {
	tmin, tmax := float32(0), float32(math.MaxFloat32)
	for a := range 3 {
		t1 := (lo[a] - o[a]) * inv[a]
		t2 := (hi[a] - o[a]) * inv[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		// NaN from 0*Inf on a parallel axis compares false and is skipped.
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// intersectTriangle is the Möller-Trumbore test, two-sided.
func intersectTriangle(o, d mgl32.Vec3, tri *scene.Triangle) (float32, bool) {
	e1 := tri[1].Position.Sub(tri[0].Position)
	e2 := tri[2].Position.Sub(tri[0].Position)
	p := d.Cross(e2)
	det := e1.Dot(p)
	if det > -1e-9 && det < 1e-9 {
		return 0, false
	}
	invDet := 1 / det
	s := o.Sub(tri[0].Position)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := d.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * invDet
	if t <= hitEpsilon {
		return 0, false
	}
	return t, true
}

func vecMin(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func vecMax(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
