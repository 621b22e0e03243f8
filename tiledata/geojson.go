package tiledata

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/pdok/mosaic/tileid"
)

// GeoJSONLayerName is the single layer GeoJSON tile data exposes.
const GeoJSONLayerName = "_geojsonTileLayer"

// DefaultBuffer is the margin around a tile, in tile units, within which GeoJSON features are kept.
const DefaultBuffer = 128

// NewGeoJSONTileData projects the lon/lat features of fc into the tile units of id. Features
// whose bound does not reach the buffered tile are left out.
func NewGeoJSONTileData(fc *geojson.FeatureCollection, id tileid.CanonicalTileID, buffer float64) GeometryTileData {
	b := NewBuilder()
	b.data.layers[GeoJSONLayerName] = &memoryLayer{name: GeoJSONLayerName}
	if fc == nil {
		return b.Build()
	}

	z := maptile.Zoom(id.Z)
	bound := id.Maptile().Bound(buffer / Extent)
	toTile := func(p orb.Point) [2]float64 {
		f := maptile.Fraction(p, z)
		return [2]float64{(f[0] - float64(id.X)) * Extent, (f[1] - float64(id.Y)) * Extent}
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil || !f.Geometry.Bound().Intersects(bound) {
			continue
		}
		featureType, geometries := fromOrb(f.Geometry, toTile)
		if featureType == Unknown {
			continue
		}
		addOrbFeature(b, GeoJSONLayerName, f, featureType, geometries)
	}
	return b.Build()
}
