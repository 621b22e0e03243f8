// Package tiledata is the read-only view on the features of a parsed tile. Geometries are
// in tile units, where the tile spans [0, Extent) on both axes with y pointing down.
package tiledata

import (
	"errors"
	"sort"

	"github.com/go-spatial/geom"
	"golang.org/x/exp/maps"
)

// Extent is the number of tile units along a tile edge.
const Extent = 8192

var ErrMalformedTile = errors.New("malformed tile")

type FeatureType uint8

const (
	Unknown FeatureType = iota
	Point
	LineString
	Polygon
)

func (t FeatureType) String() string {
	switch t {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// GeometryCollection holds the parts of a feature geometry. A point feature has one part
// holding all its points, a line feature one part per line and a polygon feature one part
// per ring, exterior rings followed by their holes.
type GeometryCollection [][][2]float64

// Bounds is the extent of all parts, or nil for an empty collection.
func (g GeometryCollection) Bounds() *geom.Extent {
	var e *geom.Extent
	for _, part := range g {
		for _, p := range part {
			if e == nil {
				e = geom.NewExtent(p)
				continue
			}
			e.AddPoints(p)
		}
	}
	return e
}

type GeometryTileFeature interface {
	Type() FeatureType
	Value(key string) (any, bool)
	Properties() map[string]any
	ID() (uint64, bool)
	Geometries() GeometryCollection
}

type GeometryTileLayer interface {
	Name() string
	FeatureCount() int
	Feature(i int) GeometryTileFeature
}

// GeometryTileData is immutable once built. Clone is cheap and only exists so that owners
// can hand out independent references.
type GeometryTileData interface {
	Layer(name string) (GeometryTileLayer, bool)
	LayerNames() []string
	Clone() GeometryTileData
}

// Geometry converts a feature to go-spatial types: a MultiPoint, MultiLineString or Polygon
// (with possibly several exterior rings).
func Geometry(f GeometryTileFeature) geom.Geometry {
	parts := f.Geometries()
	switch f.Type() {
	case Point:
		var mp geom.MultiPoint
		for _, part := range parts {
			mp = append(mp, part...)
		}
		return mp
	case LineString:
		mls := make(geom.MultiLineString, len(parts))
		for i := range parts {
			mls[i] = parts[i]
		}
		return mls
	case Polygon:
		return geom.Polygon(parts)
	default:
		return nil
	}
}

type memoryFeature struct {
	featureType FeatureType
	properties  map[string]any
	id          uint64
	hasID       bool
	geometries  GeometryCollection
}

func (f *memoryFeature) Type() FeatureType { return f.featureType }

func (f *memoryFeature) Value(key string) (any, bool) {
	v, ok := f.properties[key]
	return v, ok
}

func (f *memoryFeature) Properties() map[string]any { return f.properties }

func (f *memoryFeature) ID() (uint64, bool) { return f.id, f.hasID }

func (f *memoryFeature) Geometries() GeometryCollection { return f.geometries }

type memoryLayer struct {
	name     string
	features []*memoryFeature
}

func (l *memoryLayer) Name() string { return l.name }

func (l *memoryLayer) FeatureCount() int { return len(l.features) }

func (l *memoryLayer) Feature(i int) GeometryTileFeature { return l.features[i] }

type memoryData struct {
	layers map[string]*memoryLayer
}

func (d *memoryData) Layer(name string) (GeometryTileLayer, bool) {
	l, ok := d.layers[name]
	if !ok {
		return nil, false
	}
	return l, true
}

func (d *memoryData) LayerNames() []string {
	names := maps.Keys(d.layers)
	sort.Strings(names)
	return names
}

func (d *memoryData) Clone() GeometryTileData {
	return &memoryData{layers: d.layers}
}

// Builder assembles GeometryTileData in memory, used for decoded tiles and in tests.
type Builder struct {
	data *memoryData
}

func NewBuilder() *Builder {
	return &Builder{data: &memoryData{layers: make(map[string]*memoryLayer)}}
}

// AddFeature appends a feature to layer, creating the layer on first use. id < 0 means no id.
func (b *Builder) AddFeature(layer string, featureType FeatureType, properties map[string]any, id int64, geometries GeometryCollection) *Builder {
	l, ok := b.data.layers[layer]
	if !ok {
		l = &memoryLayer{name: layer}
		b.data.layers[layer] = l
	}
	if properties == nil {
		properties = map[string]any{}
	}
	f := &memoryFeature{featureType: featureType, properties: properties, geometries: geometries}
	if id >= 0 {
		f.id, f.hasID = uint64(id), true
	}
	l.features = append(l.features, f)
	return b
}

// Build returns the data. The builder must not be used afterwards.
func (b *Builder) Build() GeometryTileData {
	d := b.data
	b.data = nil
	return d
}
