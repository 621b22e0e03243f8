package tiledata

import (
	"errors"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/tileid"
)

func TestParseMVT(t *testing.T) {
	point := geojson.NewFeature(orb.Point{1024, 2048})
	point.ID = 7
	point.Properties["name"] = "Utrecht"
	line := geojson.NewFeature(orb.LineString{{0, 0}, {4096, 4096}})
	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}})

	fc := geojson.NewFeatureCollection()
	fc.Append(point)
	fc.Append(line)
	fc.Append(poly)
	data, err := EncodeMVT(map[string]*geojson.FeatureCollection{"places": fc}, 4096)
	require.NoError(t, err)

	parsed, err := ParseMVT(data, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"places"}, parsed.LayerNames())
	layer, ok := parsed.Layer("places")
	require.True(t, ok)
	require.Equal(t, 3, layer.FeatureCount())

	f := layer.Feature(0)
	assert.Equal(t, Point, f.Type())
	assert.Equal(t, GeometryCollection{{{2048, 4096}}}, f.Geometries())
	name, ok := f.Value("name")
	assert.True(t, ok)
	assert.Equal(t, "Utrecht", name)
	id, ok := f.ID()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)

	assert.Equal(t, LineString, layer.Feature(1).Type())
	assert.Equal(t, [2]float64{8192, 8192}, layer.Feature(1).Geometries()[0][1])
	assert.Equal(t, Polygon, layer.Feature(2).Type())
	assert.IsType(t, geom.Polygon{}, Geometry(layer.Feature(2)))

	_, ok = parsed.Layer("roads")
	assert.False(t, ok)
}

func TestParseMVTMalformed(t *testing.T) {
	_, err := ParseMVT([]byte{0x1a, 0xff, 0xff, 0x01}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedTile))

	_, err = ParseMVT([]byte("not gzip"), true)
	assert.ErrorIs(t, err, ErrMalformedTile)
}

func TestNewGeoJSONTileData(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{0, 0}))
	fc.Append(geojson.NewFeature(orb.Point{-90, 0}))

	tests := []struct {
		name  string
		id    tileid.CanonicalTileID
		count int
		first [2]float64
	}{
		{name: "world", id: tileid.NewCanonical(0, 0, 0), count: 2, first: [2]float64{4096, 4096}},
		{name: "north east quadrant keeps the buffered edge point", id: tileid.NewCanonical(1, 1, 0), count: 1, first: [2]float64{0, 8192}},
		{name: "far away", id: tileid.NewCanonical(4, 15, 15), count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := NewGeoJSONTileData(fc, tt.id, DefaultBuffer)
			layer, ok := data.Layer(GeoJSONLayerName)
			require.True(t, ok)
			require.Equal(t, tt.count, layer.FeatureCount())
			if tt.count > 0 {
				got := layer.Feature(0).Geometries()[0][0]
				assert.InDelta(t, tt.first[0], got[0], 1e-6)
				assert.InDelta(t, tt.first[1], got[1], 1e-6)
			}
		})
	}
}

func TestGeometryCollectionBounds(t *testing.T) {
	assert.Nil(t, GeometryCollection{}.Bounds())
	e := GeometryCollection{{{1, 2}, {5, -1}}, {{3, 9}}}.Bounds()
	require.NotNil(t, e)
	assert.Equal(t, [4]float64{1, -1, 5, 9}, [4]float64{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()})
}

func TestCloneSharesLayers(t *testing.T) {
	data := NewBuilder().AddFeature("a", Point, nil, -1, GeometryCollection{{{1, 1}}}).Build()
	clone := data.Clone()
	l, ok := clone.Layer("a")
	require.True(t, ok)
	assert.Equal(t, 1, l.FeatureCount())
	_, hasID := l.Feature(0).ID()
	assert.False(t, hasID)
}
