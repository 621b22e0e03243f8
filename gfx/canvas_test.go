package gfx

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/gogpu/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/style"
)

func TestVertexBuffer(t *testing.T) {
	var b VertexBuffer
	b.AddSegment([][2]float64{{0, 0}, {10, 0}, {10, 10}})
	b.AddSegment(nil)
	b.AddSegment([][2]float64{{5, 5}})
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []Segment{{0, 3}, {3, 1}}, b.Segments)
	x, y := b.Vertex(3)
	assert.Equal(t, [2]float32{5, 5}, [2]float32{x, y})
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(64, 64)
	defer func() { assert.NoError(t, c.Close()) }()
	c.SetMatrix(gg.Scale(64./8192, 64./8192))
	c.SetPaint("water", style.Paint{Color: gg.RGB(0, 0, 1), Opacity: 1, Width: 1})

	var square VertexBuffer
	square.AddSegment([][2]float64{{0, 0}, {8192, 0}, {8192, 4096}, {0, 4096}})
	require.NoError(t, c.UploadVertices("water", Polygons, square))

	var line VertexBuffer
	line.AddSegment([][2]float64{{0, 6000}, {8192, 6000}})
	require.NoError(t, c.UploadVertices("road", LineStrips, line))
	require.NoError(t, c.UploadSymbols("labels", []SymbolQuad{{Anchor: [2]float32{4096, 7000}, X1: -4, Y1: -2, X2: 4, Y2: 2, Opacity: 1}}))

	bad := VertexBuffer{Segments: []Segment{{0, 2}}}
	assert.Error(t, c.UploadVertices("water", Polygons, bad))

	var buf bytes.Buffer
	require.NoError(t, c.EncodePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	r, g, b, _ := img.At(32, 10).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b})
	r, g, b, _ = img.At(32, 60).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
}
