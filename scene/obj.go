package scene

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// LoadOBJ reads the entities of an OBJ file and the materials of its MTL
// libraries. One entity is created per run of faces sharing an object name
// and material. Texture paths are made absolute relative to their MTL file.
func LoadOBJ(path string) ([]Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := objParser{
		dir:       filepath.Dir(path),
		materials: make(map[string]Material),
	}
	if err := p.parse(f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p.entities, nil
}

type objParser struct {
	dir       string
	positions []mgl32.Vec3
	texcoords []mgl32.Vec2
	normals   []mgl32.Vec3
	materials map[string]Material

	object   string
	material string
	current  *Mesh
	entities []Entity
}

func (p *objParser) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "v":
			var v mgl32.Vec3
			v, err = parseVec3(fields[1:])
			p.positions = append(p.positions, v)
		case "vn":
			var v mgl32.Vec3
			v, err = parseVec3(fields[1:])
			p.normals = append(p.normals, v)
		case "vt":
			var v mgl32.Vec2
			v, err = parseVec2(fields[1:])
			p.texcoords = append(p.texcoords, v)
		case "f":
			err = p.face(fields[1:])
		case "o", "g":
			p.object = strings.Join(fields[1:], " ")
			p.current = nil
		case "usemtl":
			p.material = strings.Join(fields[1:], " ")
			p.current = nil
		case "mtllib":
			for _, lib := range fields[1:] {
				if err = p.loadMTL(filepath.Join(p.dir, lib)); err != nil {
					break
				}
			}
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func (p *objParser) face(refs []string) error {
	if len(refs) < 3 {
		return fmt.Errorf("face with %d vertices", len(refs))
	}
	verts := make([]Vertex, len(refs))
	hasNormals := true
	for i, ref := range refs {
		v, n, err := p.vertex(ref)
		if err != nil {
			return err
		}
		verts[i] = v
		hasNormals = hasNormals && n
	}

	if p.current == nil {
		p.current = &Mesh{}
		mat, ok := p.materials[p.material]
		if !ok {
			mat = NewMaterialBuilder(Material{}).Name(p.material).Build()
		}
		name := p.object
		if name == "" {
			name = "unnamed"
		}
		p.entities = append(p.entities, Entity{Name: name, Mesh: p.current, Material: mat})
	}

	// Fan triangulation.
	for i := 1; i+1 < len(verts); i++ {
		tri := Triangle{verts[0], verts[i], verts[i+1]}
		if !hasNormals {
			n := tri.FaceNormal()
			tri[0].Normal, tri[1].Normal, tri[2].Normal = n, n, n
		}
		p.current.Triangles = append(p.current.Triangles, tri)
	}
	return nil
}

func (p *objParser) vertex(ref string) (Vertex, bool, error) {
	parts := strings.Split(ref, "/")
	var v Vertex

	pi, err := index(parts[0], len(p.positions))
	if err != nil {
		return v, false, fmt.Errorf("position %q: %w", ref, err)
	}
	v.Position = p.positions[pi]

	if len(parts) > 1 && parts[1] != "" {
		ti, err := index(parts[1], len(p.texcoords))
		if err != nil {
			return v, false, fmt.Errorf("texcoord %q: %w", ref, err)
		}
		v.TexCoords = p.texcoords[ti]
	}

	hasNormal := false
	if len(parts) > 2 && parts[2] != "" {
		ni, err := index(parts[2], len(p.normals))
		if err != nil {
			return v, false, fmt.Errorf("normal %q: %w", ref, err)
		}
		v.Normal = p.normals[ni]
		hasNormal = true
	}
	return v, hasNormal, nil
}

// index converts a 1-based or negative OBJ index into a slice index.
func index(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		i = n + i
	} else {
		i--
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %s out of range (%d defined)", s, n)
	}
	return i, nil
}

func (p *objParser) loadMTL(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening material library: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var (
		b    *MaterialBuilder
		name string
	)
	flush := func() {
		if b != nil {
			p.materials[name] = b.Build()
		}
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "newmtl" {
			flush()
			name = strings.Join(fields[1:], " ")
			b = NewMaterialBuilder(Material{}).Name(name)
			continue
		}
		if b == nil || len(fields) < 2 {
			continue
		}
		// Map statements may carry options before the file name.
		tex := func() string {
			t := fields[len(fields)-1]
			if !filepath.IsAbs(t) {
				t = filepath.Join(dir, t)
			}
			return filepath.Clean(t)
		}
		switch strings.ToLower(fields[0]) {
		case "kd":
			rgb, err := parseVec3(fields[1:])
			if err != nil {
				return fmt.Errorf("material %s: %w", name, err)
			}
			b.DiffuseColor(rgb)
		case "map_kd":
			b.Map(ChannelAlbedo, tex())
		case "map_bump", "bump", "norm":
			b.Map(ChannelNormal, tex())
		case "disp":
			b.Map(ChannelDisplacement, tex())
		case "map_pm":
			b.Map(ChannelMetallic, tex())
		case "map_pr":
			b.Map(ChannelRoughness, tex())
		}
	}
	flush()
	return sc.Err()
}

// SaveOBJ writes entities to objPath and their materials to mtlPath. Both
// parent directories must exist. Texture paths are written relative to the
// MTL file where possible.
func SaveOBJ(entities []Entity, objPath, mtlPath string) error {
	objFile, err := os.Create(objPath)
	if err != nil {
		return err
	}
	defer objFile.Close()
	mtlFile, err := os.Create(mtlPath)
	if err != nil {
		return err
	}
	defer mtlFile.Close()

	lib, err := filepath.Rel(filepath.Dir(objPath), mtlPath)
	if err != nil {
		lib = mtlPath
	}

	if err := writeOBJ(objFile, entities, filepath.ToSlash(lib)); err != nil {
		return fmt.Errorf("writing %s: %w", objPath, err)
	}
	if err := writeMTL(mtlFile, entities, filepath.Dir(mtlPath)); err != nil {
		return fmt.Errorf("writing %s: %w", mtlPath, err)
	}
	if err := mtlFile.Close(); err != nil {
		return err
	}
	return objFile.Close()
}

func writeOBJ(w io.Writer, entities []Entity, mtllib string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "mtllib %s\n", mtllib)

	next := 1
	for _, e := range entities {
		fmt.Fprintf(bw, "o %s\n", e.Name)
		if name := e.Material.Name(); name != "" {
			fmt.Fprintf(bw, "usemtl %s\n", name)
		}
		for _, tri := range e.Mesh.Triangles {
			for _, v := range tri {
				fmt.Fprintf(bw, "v %g %g %g\n", v.Position[0], v.Position[1], v.Position[2])
				fmt.Fprintf(bw, "vt %g %g\n", v.TexCoords[0], v.TexCoords[1])
				fmt.Fprintf(bw, "vn %g %g %g\n", v.Normal[0], v.Normal[1], v.Normal[2])
			}
			fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n",
				next, next, next, next+1, next+1, next+1, next+2, next+2, next+2)
			next += 3
		}
	}
	return bw.Flush()
}

func writeMTL(w io.Writer, entities []Entity, dir string) error {
	bw := bufio.NewWriter(w)
	written := make(map[string]Material)

	rel := func(path string) string {
		if abs, err := filepath.Abs(path); err == nil {
			if absDir, err := filepath.Abs(dir); err == nil {
				if r, err := filepath.Rel(absDir, abs); err == nil {
					return filepath.ToSlash(r)
				}
			}
		}
		return filepath.ToSlash(path)
	}

	for _, e := range entities {
		m := e.Material
		if m.Name() == "" {
			continue
		}
		if prev, ok := written[m.Name()]; ok {
			if prev != m {
				slog.Warn("material name used with differing properties, keeping the first",
					"material", m.Name(), "entity", e.Name)
			}
			continue
		}
		written[m.Name()] = m

		fmt.Fprintf(bw, "newmtl %s\n", m.Name())
		if kd, ok := m.DiffuseColor(); ok {
			fmt.Fprintf(bw, "Kd %g %g %g\n", kd[0], kd[1], kd[2])
		}
		for _, ch := range []struct {
			key string
			c   Channel
		}{
			{"map_Kd", ChannelAlbedo},
			{"norm", ChannelNormal},
			{"disp", ChannelDisplacement},
			{"map_Pm", ChannelMetallic},
			{"map_Pr", ChannelRoughness},
		} {
			if path := m.Map(ch.c); path != "" {
				fmt.Fprintf(bw, "%s %s\n", ch.key, rel(path))
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

func parseVec3(fields []string) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	if len(fields) < 3 {
		return v, fmt.Errorf("expected 3 components, got %d", len(fields))
	}
	for i := range 3 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseVec2(fields []string) (mgl32.Vec2, error) {
	var v mgl32.Vec2
	if len(fields) < 2 {
		return v, fmt.Errorf("expected 2 components, got %d", len(fields))
	}
	for i := range 2 {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
