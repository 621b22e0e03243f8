package tiledata

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

const defaultMVTExtent = 4096

// ParseMVT decodes a Mapbox vector tile. Coordinates are rescaled from the layer extent to Extent.
func ParseMVT(data []byte, gzipped bool) (GeometryTileData, error) {
	var layers mvt.Layers
	var err error
	if gzipped {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTile, err)
	}

	b := NewBuilder()
	for _, layer := range layers {
		extent := float64(layer.Extent)
		if extent == 0 {
			extent = defaultMVTExtent
		}
		scale := Extent / extent
		if _, ok := b.data.layers[layer.Name]; !ok {
			b.data.layers[layer.Name] = &memoryLayer{name: layer.Name}
		}
		for _, f := range layer.Features {
			featureType, geometries := fromOrb(f.Geometry, func(p orb.Point) [2]float64 {
				return [2]float64{p[0] * scale, p[1] * scale}
			})
			if featureType == Unknown {
				continue
			}
			addOrbFeature(b, layer.Name, f, featureType, geometries)
		}
	}
	return b.Build(), nil
}

// EncodeMVT encodes feature collections per layer, with coordinates already in tile units
// of the given extent. It is the inverse of ParseMVT and used to produce fixtures.
func EncodeMVT(collections map[string]*geojson.FeatureCollection, extent uint32) ([]byte, error) {
	layers := mvt.NewLayers(collections)
	for _, l := range layers {
		l.Extent = extent
	}
	return mvt.Marshal(layers)
}

func addOrbFeature(b *Builder, layer string, f *geojson.Feature, featureType FeatureType, geometries GeometryCollection) {
	var id int64 = -1
	if v, ok := featureID(f.ID); ok {
		id = int64(v)
	}
	properties := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		properties[k] = v
	}
	b.AddFeature(layer, featureType, properties, id, geometries)
}

func featureID(id any) (uint64, bool) {
	switch v := id.(type) {
	case uint64:
		return v, true
	case int64:
		return uint64(v), v >= 0
	case int:
		return uint64(v), v >= 0
	case float64:
		return uint64(v), v >= 0
	default:
		return 0, false
	}
}

// fromOrb flattens an orb geometry into parts, transforming every point.
func fromOrb(g orb.Geometry, transform func(orb.Point) [2]float64) (FeatureType, GeometryCollection) {
	line := func(ls []orb.Point) [][2]float64 {
		part := make([][2]float64, len(ls))
		for i, p := range ls {
			part[i] = transform(p)
		}
		return part
	}
	switch g := g.(type) {
	case orb.Point:
		return Point, GeometryCollection{{transform(g)}}
	case orb.MultiPoint:
		return Point, GeometryCollection{line(g)}
	case orb.LineString:
		return LineString, GeometryCollection{line(g)}
	case orb.MultiLineString:
		parts := make(GeometryCollection, len(g))
		for i := range g {
			parts[i] = line(g[i])
		}
		return LineString, parts
	case orb.Polygon:
		parts := make(GeometryCollection, len(g))
		for i := range g {
			parts[i] = line(g[i])
		}
		return Polygon, parts
	case orb.MultiPolygon:
		var parts GeometryCollection
		for _, p := range g {
			for _, r := range p {
				parts = append(parts, line(r))
			}
		}
		return Polygon, parts
	default:
		return Unknown, nil
	}
}
