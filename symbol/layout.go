// Package symbol turns features into label and icon candidates and decides which of them
// are shown, per tile on the worker and across all rendered tiles on the main goroutine.
package symbol

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"slices"

	"github.com/go-spatial/geom"

	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/geomhelp"
	"github.com/pdok/mosaic/glyph"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
)

const (
	// lineHeight in ems
	lineHeight = 1.2
	// keyPrecision is the number of bits world coordinates are rounded to in symbol keys
	keyPrecision = 20
)

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

type candidate struct {
	index  int
	text   string
	icon   string
	anchor [2]float64
}

// Layout holds the symbol candidates of one symbol layer in one tile.
type Layout struct {
	layer       *style.Layer
	sourceLayer string
	tileID      tileid.OverscaledTileID
	candidates  []candidate

	glyphDeps     glyph.Dependencies
	imageDeps     map[string]struct{}
	glyphsPending bool
	imagesPending bool

	instances []bucket.SymbolInstance
	prepared  bool
}

// NewLayout collects the candidates of layer from data. Features the layer filter rejects and
// features without text or icon are left out, as are anchors outside the tile: those are
// laid out by the neighbouring tile.
func NewLayout(layer *style.Layer, data tiledata.GeometryTileData, tileID tileid.OverscaledTileID) (*Layout, error) {
	if layer.Type != style.Symbol || layer.Symbol == nil {
		return nil, fmt.Errorf("layer %q is not a symbol layer", layer.ID)
	}
	l := &Layout{
		layer:       layer,
		sourceLayer: layer.SourceLayer,
		tileID:      tileID,
		glyphDeps:   make(glyph.Dependencies),
		imageDeps:   make(map[string]struct{}),
	}
	source, ok := data.Layer(layer.SourceLayer)
	if !ok {
		return l, nil
	}
	stack := glyph.StackName(layer.Symbol.TextFont)
	for i := 0; i < source.FeatureCount(); i++ {
		f := source.Feature(i)
		if !layer.Matches(f) {
			continue
		}
		text := Format(layer.Symbol.TextField, f)
		icon := Format(layer.Symbol.IconImage, f)
		if text == "" && icon == "" {
			continue
		}
		for _, anchor := range Anchors(f, layer.Symbol.SymbolPlacement) {
			if anchor[0] < 0 || anchor[1] < 0 || anchor[0] >= tiledata.Extent || anchor[1] >= tiledata.Extent {
				continue
			}
			l.candidates = append(l.candidates, candidate{index: i, text: text, icon: icon, anchor: anchor})
		}
		if text != "" {
			l.glyphDeps.Add(stack, text)
		}
		if icon != "" {
			l.imageDeps[icon] = struct{}{}
		}
	}
	l.glyphsPending = len(l.glyphDeps) > 0
	l.imagesPending = len(l.imageDeps) > 0
	return l, nil
}

func (l *Layout) LayerID() string {
	return l.layer.ID
}

func (l *Layout) Layer() *style.Layer {
	return l.layer
}

// Candidates is the number of anchors found.
func (l *Layout) Candidates() int {
	return len(l.candidates)
}

// GlyphDependencies are the glyphs the texts need.
func (l *Layout) GlyphDependencies() glyph.Dependencies {
	return l.glyphDeps
}

// ImageDependencies are the icons the candidates need.
func (l *Layout) ImageDependencies() map[string]struct{} {
	return l.imageDeps
}

// ResolveGlyphs marks the glyph dependencies as answered.
func (l *Layout) ResolveGlyphs() {
	l.glyphsPending = false
}

// ResolveImages marks the icon dependencies as answered.
func (l *Layout) ResolveImages() {
	l.imagesPending = false
}

// HasPendingDependencies reports whether glyphs or icons are still missing.
func (l *Layout) HasPendingDependencies() bool {
	return l.glyphsPending || l.imagesPending
}

// Prepared reports whether Prepare ran.
func (l *Layout) Prepared() bool {
	return l.prepared
}

// Prepare measures the texts and icons and builds the symbol instances. It only runs
// once, the layout is immutable afterwards.
func (l *Layout) Prepare(glyphs glyph.Positions, images map[string]glyph.Image) {
	if l.prepared {
		return
	}
	l.prepared = true
	sl := l.layer.Symbol
	stack := glyph.StackName(sl.TextFont)
	for _, c := range l.candidates {
		inst := bucket.SymbolInstance{
			Anchor:       c.anchor,
			Text:         c.text,
			Icon:         c.icon,
			Key:          Key(l.layer.ID, c.text, c.icon, l.tileID.Canonical, c.anchor),
			FeatureIndex: c.index,
			SortIndex:    c.index,
		}
		sub := collision.IndexedSubfeature{
			Index:           c.index,
			SourceLayerName: l.sourceLayer,
			BucketName:      l.layer.ID,
			SortIndex:       c.index,
		}
		anchor := geom.Point(c.anchor)
		if width := textWidth(c.text, glyphs[stack], sl.TextSize); width > 0 {
			h := sl.TextSize * lineHeight / 2
			w := width / 2
			p := sl.TextPadding
			inst.TextFeature = collision.CollisionFeature{
				Boxes:      []collision.CollisionBox{{Anchor: anchor, X1: -w - p, Y1: -h - p, X2: w + p, Y2: h + p}},
				Subfeature: sub,
				Key:        inst.Key,
			}
		}
		if img, ok := images[c.icon]; ok && c.icon != "" {
			w := img.Width / img.PixelRatio * sl.IconSize / 2
			h := img.Height / img.PixelRatio * sl.IconSize / 2
			inst.IconFeature = collision.CollisionFeature{
				Boxes:      []collision.CollisionBox{{Anchor: anchor, X1: -w, Y1: -h, X2: w, Y2: h}},
				Subfeature: sub,
				Key:        inst.Key,
			}
		}
		if inst.HasText() || inst.HasIcon() {
			l.instances = append(l.instances, inst)
		}
	}
}

// Instances returns a copy of the prepared instances, so that every placement hands out
// buckets of its own.
func (l *Layout) Instances() []bucket.SymbolInstance {
	return slices.Clone(l.instances)
}

// textWidth is the width of a single line of text in pixels at size. Runes without a glyph
// take no space.
func textWidth(text string, glyphs map[rune]glyph.Glyph, size float64) float64 {
	var advance float64
	for _, r := range text {
		if g, ok := glyphs[r]; ok {
			advance += g.Advance
		}
	}
	return advance * size / glyph.BaseSize
}

// Format replaces the {property} tokens in field with the feature's values. Tokens of
// missing properties become empty.
func Format(field string, f tiledata.GeometryTileFeature) string {
	if field == "" {
		return ""
	}
	return tokenPattern.ReplaceAllStringFunc(field, func(token string) string {
		v, ok := f.Value(token[1 : len(token)-1])
		if !ok || v == nil {
			return ""
		}
		if n, ok := v.(float64); ok && n == math.Trunc(n) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprint(v)
	})
}

// Anchors returns where the symbols of f go, in tile units. Points anchor at every point.
// Lines anchor halfway along each line. Polygons anchor at the vertex centroid of their
// largest ring, or halfway along it with line placement.
func Anchors(f tiledata.GeometryTileFeature, placement string) [][2]float64 {
	parts := f.Geometries()
	switch f.Type() {
	case tiledata.Point:
		var anchors [][2]float64
		for _, part := range parts {
			anchors = append(anchors, part...)
		}
		return anchors
	case tiledata.LineString:
		var anchors [][2]float64
		for _, line := range parts {
			if a, ok := midpoint(line); ok {
				anchors = append(anchors, a)
			}
		}
		return anchors
	case tiledata.Polygon:
		i := geomhelp.LargestRing(parts)
		if i < 0 || len(parts[i]) == 0 {
			return nil
		}
		if placement == "line" {
			if a, ok := midpoint(parts[i]); ok {
				return [][2]float64{a}
			}
			return nil
		}
		return [][2]float64{geomhelp.VertexCentroid(parts[i])}
	default:
		return nil
	}
}

// midpoint is the point halfway along line.
func midpoint(line [][2]float64) ([2]float64, bool) {
	if len(line) == 0 {
		return [2]float64{}, false
	}
	var total float64
	for i := 1; i < len(line); i++ {
		total += math.Hypot(line[i][0]-line[i-1][0], line[i][1]-line[i-1][1])
	}
	half := total / 2
	for i := 1; i < len(line); i++ {
		d := math.Hypot(line[i][0]-line[i-1][0], line[i][1]-line[i-1][1])
		if d > 0 && half <= d {
			t := half / d
			return [2]float64{
				line[i-1][0] + t*(line[i][0]-line[i-1][0]),
				line[i-1][1] + t*(line[i][1]-line[i-1][1]),
			}, true
		}
		half -= d
	}
	return line[0], true
}

// WorldAnchor converts an anchor in tile units to world coordinates in [0, 1).
func WorldAnchor(id tileid.CanonicalTileID, anchor [2]float64) [2]float64 {
	scale := math.Exp2(float64(id.Z))
	return [2]float64{
		(float64(id.X) + anchor[0]/tiledata.Extent) / scale,
		(float64(id.Y) + anchor[1]/tiledata.Extent) / scale,
	}
}

// Key hashes what a symbol shows and where, with the world anchor rounded, so that the same
// symbol in a parent and a child tile gets the same key.
func Key(layerID, text, icon string, id tileid.CanonicalTileID, anchor [2]float64) uint64 {
	world := WorldAnchor(id, anchor)
	h := fnv.New64a()
	_, _ = h.Write([]byte(layerID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(icon))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(math.Round(world[0]*(1<<keyPrecision))))
	binary.LittleEndian.PutUint64(buf[8:], uint64(math.Round(world[1]*(1<<keyPrecision))))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
