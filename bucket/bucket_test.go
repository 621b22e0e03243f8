package bucket

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/gfx"
	"github.com/pdok/mosaic/tiledata"
)

func features(t *testing.T) tiledata.GeometryTileLayer {
	data := tiledata.NewBuilder().
		AddFeature("l", tiledata.Polygon, nil, -1, tiledata.GeometryCollection{{{0, 0}, {10, 0}, {10, 10}}}).
		AddFeature("l", tiledata.LineString, nil, -1, tiledata.GeometryCollection{{{0, 0}, {5, 5}}, {{1, 1}, {2, 2}}}).
		AddFeature("l", tiledata.Point, nil, -1, tiledata.GeometryCollection{{{3, 3}, {4, 4}}}).
		Build()
	layer, ok := data.Layer("l")
	require.True(t, ok)
	return layer
}

func TestVertexBuckets(t *testing.T) {
	layer := features(t)
	fill, line, circle := NewFillBucket("fill"), NewLineBucket("line"), NewCircleBucket("circle")
	for i := 0; i < layer.FeatureCount(); i++ {
		fill.AddFeature(layer.Feature(i))
		line.AddFeature(layer.Feature(i))
		circle.AddFeature(layer.Feature(i))
	}
	fillBuf, lineBuf, circleBuf := fill.Buffer(), line.Buffer(), circle.Buffer()
	assert.Equal(t, 1, fill.FeatureCount())
	assert.Equal(t, 3, fillBuf.Len())
	assert.Equal(t, 2, line.FeatureCount())
	assert.Equal(t, 4+4, lineBuf.Len(), "the polygon ring is closed for stroking")
	assert.Equal(t, 1, circle.FeatureCount())
	assert.Equal(t, 2, circleBuf.Len())

	rec := gfx.NewRecorder()
	for _, b := range []Bucket{fill, line, circle, NewFillBucket("empty")} {
		require.NoError(t, b.Upload(rec))
	}
	assert.Len(t, rec.Vertices, 3)
	assert.NotContains(t, rec.Vertices, "empty")
	assert.Equal(t, []string{"line"}, line.LayerIDs())
}

func TestSymbolBucket(t *testing.T) {
	box := collision.CollisionBox{Anchor: geom.Point{5, 5}, X1: -2, Y1: -1, X2: 2, Y2: 1}
	b := NewSymbolBucket("labels", "places", []SymbolInstance{
		{Anchor: [2]float64{5, 5}, TextFeature: collision.CollisionFeature{Boxes: []collision.CollisionBox{box}}},
		{Anchor: [2]float64{9, 9}, IconFeature: collision.CollisionFeature{Boxes: []collision.CollisionBox{box}}},
	})
	assert.True(t, b.HasData())
	assert.True(t, b.Instances[0].HasText())
	assert.False(t, b.Instances[0].HasIcon())

	b.SetPlaced(0, Placed{Text: true})
	b.SetPlaced(1, Placed{})
	rec := gfx.NewRecorder()
	require.NoError(t, b.Upload(rec))
	quads := rec.Symbols["labels"]
	require.Len(t, quads, 2)
	assert.Equal(t, float32(1), quads[0].Opacity)
	assert.Equal(t, float32(0), quads[1].Opacity)
	assert.True(t, quads[1].Icon)

	b.SetOpacity(1, Opacity{Icon: 0.5})
	rec = gfx.NewRecorder()
	require.NoError(t, b.Upload(rec))
	assert.Equal(t, float32(0.5), rec.Symbols["labels"][1].Opacity)
}

func TestRasterBucket(t *testing.T) {
	b := NewRasterBucket("satellite", []byte{1, 2, 3})
	rec := gfx.NewRecorder()
	require.NoError(t, b.Upload(rec))
	assert.Equal(t, []byte{1, 2, 3}, rec.Rasters["satellite"])
	assert.False(t, NewRasterBucket("x", nil).HasData())
}
