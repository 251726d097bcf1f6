package runner

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/tex"
)

// layerChannel is one configured material channel of a layer effect.
type layerChannel struct {
	channel scene.Channel
	blend   *spec.BlendSpec
	typ     tex.BlendType
}

// layerChannels lists the configured channels of l in the order they are
// applied.
func layerChannels(l *spec.LayerSpec) []layerChannel {
	var out []layerChannel
	for _, ch := range []layerChannel{
		{scene.ChannelNormal, l.Normal, tex.BlendNormal},
		{scene.ChannelDisplacement, l.Displacement, tex.BlendLinear},
		{scene.ChannelAlbedo, l.Albedo, tex.BlendLinear},
		{scene.ChannelMetallic, l.Metallicity, tex.BlendLinear},
		{scene.ChannelRoughness, l.Roughness, tex.BlendLinear},
	} {
		if ch.blend != nil {
			out = append(out, ch)
		}
	}
	return out
}

// BlendOutputSize determines the texture size of a blend. An explicit width
// and height win, one of them alone means a square. Otherwise the original
// texture decides, then the largest stop sample.
func BlendOutputSize(b *spec.BlendSpec, original string) (width, height int, err error) {
	switch {
	case b.Width != nil && b.Height != nil:
		return *b.Width, *b.Height, nil
	case b.Width != nil:
		return *b.Width, *b.Width, nil
	case b.Height != nil:
		return *b.Height, *b.Height, nil
	}

	if original != "" {
		w, h, err := tex.Size(original)
		if err != nil {
			return 0, 0, loadError("original texture", original, err)
		}
		return w, h, nil
	}

	found := false
	for _, stop := range b.Stops {
		if stop.Sample == nil {
			continue
		}
		w, h, err := tex.Size(*stop.Sample)
		if err != nil {
			return 0, 0, loadError("blend sample", *stop.Sample, err)
		}
		if !found || w > width || (w == width && h > height) {
			width, height = w, h
			found = true
		}
	}
	if !found {
		return 0, 0, ErrOutputSizeUndetermined
	}
	return width, height, nil
}

func (r *Runner) vars(entityIdx int, entity, substance string) files.Vars {
	iteration := int(r.iteration)
	return files.Vars{
		Iteration: &iteration,
		ID:        &entityIdx,
		Entity:    entity,
		Substance: substance,
		Datetime:  r.datetime,
	}
}

func (r *Runner) densityCollector(substance int) tex.Density {
	d := tex.NewDensity(substance)
	if c := r.opts.DensityColors; c != nil {
		d.Undefined = c.Undefined
		d.MinColor = c.Min
		d.MaxColor = c.Max
	}
	return d
}

// guideCollector renders blend guides: black where the substance is absent
// or undefined, white where it saturates.
func guideCollector(substance int) tex.Density {
	d := tex.NewDensity(substance)
	black := color.NRGBA{A: 255}
	d.Undefined = black
	d.MinColor = black
	d.MaxColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	return d
}

// density renders one texture per substance and entity from the baseline
// entities and optionally exports a scene per substance using them.
func (r *Runner) density(d *spec.DensitySpec) error {
	surface := r.sim.Surface()
	for substanceIdx, substance := range r.substances {
		collector := r.densityCollector(substanceIdx)
		densityScene := make([]scene.Entity, len(r.entities))
		for idx, ent := range r.entities {
			table := r.tables.MustLookup(idx, d.Width, d.Height, d.SurfelLookup, d.IslandBleed)
			img := collector.CollectWithTable(surface, table)

			path := files.Pattern(d.TexPattern).Expand(r.vars(idx, ent.Name, substance))
			if err := tex.SavePNG(path, img); err != nil {
				return outputError("density texture", path, err)
			}

			material := scene.NewMaterialBuilder(scene.Material{}).
				Name(fmt.Sprintf("%s-density-%d-%s", substance, idx, ent.Name)).
				DiffuseColorMap(path).
				Build()
			densityScene[idx] = ent.WithMaterial(material)
		}
		if err := r.exportScene(densityScene, d.ObjPattern, d.MtlPattern, substance); err != nil {
			return err
		}
	}
	return nil
}

// layer replaces the materials of applicable entities with materials whose
// configured channels reference freshly blended textures.
func (r *Runner) layer(effectIdx int, l *spec.LayerSpec, entities []scene.Entity) error {
	substance := r.layerSubstances[effectIdx]
	channels := layerChannels(l)
	for idx := range entities {
		ent := entities[idx]
		if !l.AppliesTo(ent.Material.Name()) {
			continue
		}
		material := scene.NewMaterialBuilder(ent.Material)
		for _, ch := range channels {
			size := r.blendSizes[blendKey{effect: effectIdx, entity: idx, channel: ch.channel}]
			path, err := r.blend(idx, ent, ch, size, substance, l)
			if err != nil {
				return fmt.Errorf("%s of entity %q: %w", ch.channel, ent.Name, err)
			}
			material.Map(ch.channel, path)
		}
		entities[idx] = ent.WithMaterial(material.Build())
	}
	return nil
}

// blend renders one channel of one entity and returns the written path.
// With an original texture the result is composited onto it; without one
// the blend keeps its transparency.
func (r *Runner) blend(entityIdx int, ent scene.Entity, ch layerChannel, size image.Point, substance int, l *spec.LayerSpec) (string, error) {
	table := r.tables.MustLookup(entityIdx, size.X, size.Y, l.SurfelLookup, l.IslandBleed)
	guide := guideCollector(substance).CollectWithTable(r.sim.Surface(), table)

	original := ent.Material.Map(ch.channel)
	guided, err := r.guidedBlend(ch, original)
	if err != nil {
		return "", err
	}
	out := guided.Perform(guide)

	if original != "" {
		base, err := r.image(original)
		if err != nil {
			return "", err
		}
		resized := tex.Resize(base, size.X, size.Y)
		switch ch.typ {
		case tex.BlendNormal:
			out = tex.CombineNormalMaps(resized, out, ch.blend.Influence)
		default:
			out = tex.Over(resized, out, ch.blend.Influence)
		}
	}

	path := files.Pattern(ch.blend.TexPattern).Expand(r.vars(entityIdx, ent.Name, r.substances[substance]))
	if err := tex.SavePNG(path, out); err != nil {
		return "", outputError("layer texture", path, err)
	}
	return path, nil
}

// guidedBlend collects the stops of a blend. The original texture is the
// implicit stop at 0 unless a stop sits there, and stands in for stops
// without a sample.
func (r *Runner) guidedBlend(ch layerChannel, original string) (*tex.GuidedBlend, error) {
	stops := make([]tex.Stop, 0, len(ch.blend.Stops)+1)

	hasZero := false
	for _, s := range ch.blend.Stops {
		if s.Cenith == 0 {
			hasZero = true
			break
		}
	}
	switch {
	case original != "" && !hasZero:
		img, err := r.image(original)
		if err != nil {
			return nil, err
		}
		stops = append(stops, tex.Stop{Cenith: 0, Sample: img})
	case original == "" && len(ch.blend.Stops) == 0:
		return nil, ErrBlendStopsMissing
	}

	for _, s := range ch.blend.Stops {
		path := original
		if s.Sample != nil {
			path = *s.Sample
		}
		if path == "" {
			return nil, fmt.Errorf("stop at %g: %w", s.Cenith, ErrBlendStopsMissing)
		}
		img, err := r.image(path)
		if err != nil {
			return nil, err
		}
		stops = append(stops, tex.Stop{Cenith: s.Cenith, Sample: img})
	}
	return tex.NewGuidedBlend(ch.typ, stops), nil
}

// image decodes a texture once per runner. Inputs do not change during a
// run.
func (r *Runner) image(path string) (image.Image, error) {
	if img, ok := r.images[path]; ok {
		return img, nil
	}
	img, err := tex.Open(path)
	if err != nil {
		return nil, loadError("texture", path, err)
	}
	r.images[path] = img
	return img, nil
}

// exportScene writes entities as an OBJ/MTL pair. Without patterns it does
// nothing.
func (r *Runner) exportScene(entities []scene.Entity, objPattern, mtlPattern, substance string) error {
	if objPattern == "" && mtlPattern == "" {
		return nil
	}
	if err := checkExportPair(objPattern, mtlPattern); err != nil {
		return err
	}

	iteration := int(r.iteration)
	vars := files.Vars{Iteration: &iteration, Substance: substance, Datetime: r.datetime}
	objPath := files.Pattern(objPattern).Expand(vars)
	mtlPath := files.Pattern(mtlPattern).Expand(vars)

	slog.Info("persisting scene", "obj", objPath, "mtl", mtlPath)
	for _, p := range []string{objPath, mtlPath} {
		if err := files.Prepare(p); err != nil {
			return outputError("scene", p, err)
		}
	}
	if err := scene.SaveOBJ(entities, objPath, mtlPath); err != nil {
		return outputError("scene", objPath, err)
	}
	return nil
}

// dumpSurfels writes the current surfel positions as a point cloud.
func (r *Runner) dumpSurfels(objPattern string) error {
	iteration := int(r.iteration)
	path := files.Pattern(objPattern).Expand(files.Vars{Iteration: &iteration, Datetime: r.datetime})

	f, err := files.Create(path)
	if err != nil {
		return outputError("surfel dump", path, err)
	}
	if err := r.sim.Surface().Dump(f); err != nil {
		f.Close()
		return outputError("surfel dump", path, err)
	}
	if err := f.Close(); err != nil {
		return outputError("surfel dump", path, err)
	}
	return nil
}
