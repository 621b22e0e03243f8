package source

import (
	"github.com/creasty/defaults"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/pyramid"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
)

type GeoJSONOptions struct {
	MaxZoom  uint8   `default:"18"`
	TileSize float64 `default:"512"`
	// Buffer is the margin around a tile, in tile units, of features that are kept.
	Buffer float64 `default:"128"`
}

// GeoJSONSource tiles a feature collection in memory. Its layers have no source layer; they
// all read the single layer of the GeoJSON tile data.
type GeoJSONSource struct {
	base
	options GeoJSONOptions
	data    *geojson.FeatureCollection
}

var _ RenderSource = (*GeoJSONSource)(nil)

// NewGeoJSONSource fills options that are zero with their defaults.
func NewGeoJSONSource(id string, ctx Context, options GeoJSONOptions) (*GeoJSONSource, error) {
	if err := defaults.Set(&options); err != nil {
		return nil, err
	}
	return &GeoJSONSource{
		base:    newBase(id, pyramid.GeoJSON, ctx, options.TileSize, pyramid.ZoomRange{Max: options.MaxZoom}, nil),
		options: options,
	}, nil
}

// SetData replaces the features. Live tiles get the new data right away and keep drawing
// the old data until their layout finishes; cached tiles are dropped.
func (s *GeoJSONSource) SetData(fc *geojson.FeatureCollection) {
	s.data = fc
	s.pyramid.ReduceMemoryUse()
	for _, t := range s.pyramid.Tiles() {
		gt, ok := t.(*tile.GeometryTile)
		if !ok {
			continue
		}
		gt.SetData(s.tileData(t.ID()))
	}
	logging.L().Debug("geojson data set", zap.String("source", s.id), zap.Int("features", featureCount(fc)))
}

func (s *GeoJSONSource) Update(params UpdateParameters) {
	layers := s.ownLayers(params.Layers, func(l *style.Layer) {
		l.SourceLayer = tiledata.GeoJSONLayerName
	})
	s.update(params, layers, s.createTile)
}

func (s *GeoJSONSource) createTile(id tileid.OverscaledTileID) tile.Tile {
	t := tile.NewGeometryTile(id, s.tileOptions())
	if s.data != nil {
		t.SetData(s.tileData(id))
	}
	return t
}

func (s *GeoJSONSource) tileData(id tileid.OverscaledTileID) tiledata.GeometryTileData {
	return tiledata.NewGeoJSONTileData(s.data, id.Canonical, s.options.Buffer)
}

func featureCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}
