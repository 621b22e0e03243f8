package glyph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/actor"
)

type recorder struct {
	glyphs []Positions
	images []map[string]Image
}

func (r *recorder) OnGlyphsAvailable(p Positions)          { r.glyphs = append(r.glyphs, p) }
func (r *recorder) OnImagesAvailable(img map[string]Image) { r.images = append(r.images, img) }

func TestRangeOf(t *testing.T) {
	assert.Equal(t, Range{0, 255}, RangeOf('a'))
	assert.Equal(t, Range{256, 511}, RangeOf('ā'))
}

func TestManager_GetGlyphs(t *testing.T) {
	loop := actor.NewManual()
	m, err := NewManager(loop, loop)
	require.NoError(t, err)

	deps := Dependencies{}
	deps.Add("Go Regular", "Hi")
	r := &recorder{}
	m.GetGlyphs(r, deps)
	assert.Empty(t, r.glyphs, "glyphs arrive asynchronously")
	assert.Equal(t, 1, m.Pending())

	loop.RunAll()
	require.Len(t, r.glyphs, 1)
	h := r.glyphs[0]["Go Regular"]['H']
	assert.Equal(t, 'H', h.ID)
	assert.Greater(t, h.Advance, 0.)
	assert.Less(t, h.Bounds.MinY(), 0., "glyphs extend above the baseline")
	assert.Equal(t, 0, m.Pending())

	// a loaded range is answered right away
	m.GetGlyphs(r, deps)
	assert.Len(t, r.glyphs, 2)
	assert.Equal(t, 0, loop.Len())
}

func TestManager_RemoveRequestor(t *testing.T) {
	loop := actor.NewManual()
	m, err := NewManager(loop, loop)
	require.NoError(t, err)
	deps := Dependencies{}
	deps.Add("Go Regular", "x")
	r := &recorder{}
	m.GetGlyphs(r, deps)
	m.RemoveRequestor(r)
	loop.RunAll()
	assert.Empty(t, r.glyphs)
}

func TestPositionsCovers(t *testing.T) {
	deps := Dependencies{}
	deps.Add("a", "xy")
	p := Positions{"a": {'x': {ID: 'x'}}}
	assert.False(t, p.Covers(deps, nil))
	assert.True(t, p.Covers(deps, func(FontStack, Range) bool { return true }))
	p.Merge(Positions{"a": {'y': {ID: 'y'}}})
	assert.True(t, p.Covers(deps, nil))
}

func TestImageManager(t *testing.T) {
	m := NewImageManager()
	r := &recorder{}
	m.GetImages(r, map[string]struct{}{"bus": {}, "rail": {}})
	assert.Empty(t, r.images)

	m.AddImage("bus", Image{Width: 16, Height: 16})
	assert.Empty(t, r.images)
	m.AddImage("rail", Image{Width: 20, Height: 10})
	require.Len(t, r.images, 1)
	assert.Equal(t, 1., r.images[0]["bus"].PixelRatio)

	m.GetImages(r, map[string]struct{}{"ferry": {}})
	assert.Len(t, r.images, 1)
	m.SetLoaded(true)
	require.Len(t, r.images, 2)
	assert.Empty(t, r.images[1])
}
