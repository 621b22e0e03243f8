package pyramid

import (
	"fmt"
	"testing"

	"github.com/gogpu/gg"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/transform"
	"github.com/pdok/mosaic/worker"
)

type fakeTile struct {
	id         tileid.OverscaledTileID
	renderable bool
	complete   bool
	tried      bool
	necessity  tile.Necessity
	setLayers  int
	closed     bool
	queries    []featureindex.Query
}

func (f *fakeTile) ID() tileid.OverscaledTileID { return f.id }
func (f *fakeTile) State() tile.State {
	switch {
	case f.closed:
		return tile.Obsolete
	case f.complete:
		return tile.Parsed
	default:
		return tile.Loading
	}
}
func (f *fakeTile) IsRenderable() bool { return f.renderable }
func (f *fakeTile) IsLoaded() bool { return f.complete }
func (f *fakeTile) IsComplete() bool { return f.complete }
func (f *fakeTile) SetNecessity(n tile.Necessity) { f.necessity = n; f.tried = f.tried || n == tile.Required }
func (f *fakeTile) SetLayers([]style.Layer) { f.setLayers++ }
func (f *fakeTile) SetPlacementConfig(worker.PlacementConfig) {}
func (f *fakeTile) Buckets() map[string]bucket.Bucket { return nil }
func (f *fakeTile) Bucket(string) (bucket.Bucket, bool) { return nil, false }
func (f *fakeTile) FeatureIndex() *featureindex.FeatureIndex { return nil }
func (f *fakeTile) CollisionIndex() *collision.Index { return nil }
func (f *fakeTile) HasTriedCache() bool { return f.tried }
func (f *fakeTile) Close() { f.closed = true }
func (f *fakeTile) QueryRenderedFeatures(q featureindex.Query) []featureindex.QueriedFeature {
	f.queries = append(f.queries, q)
	p := q.Geometry[0]
	if p[0] < 0 || p[0] > tiledata.Extent || p[1] < 0 || p[1] > tiledata.Extent {
		return nil
	}
	return []featureindex.QueriedFeature{{LayerID: "water", Index: 7}}
}

// factory creates fake tiles and remembers them.
type factory struct {
	tiles   map[tileid.OverscaledTileID]*fakeTile
	created map[tileid.OverscaledTileID]int
}

func newFactory() *factory {
	return &factory{tiles: make(map[tileid.OverscaledTileID]*fakeTile), created: make(map[tileid.OverscaledTileID]int)}
}

func (f *factory) create(id tileid.OverscaledTileID) tile.Tile {
	t := &fakeTile{id: id}
	f.tiles[id] = t
	f.created[id]++
	return t
}

// ready makes every created tile renderable and complete.
func (f *factory) ready() {
	for _, t := range f.tiles {
		t.renderable, t.complete = true, true
	}
}

func overscaled(z, x, y uint32) tileid.OverscaledTileID {
	return tileid.NewOverscaled(uint8(z), 0, tileid.NewCanonical(uint8(z), x, y))
}

func renderIDs(p *TilePyramid) []string {
	var ids []string
	for _, rt := range p.GetRenderTiles() {
		ids = append(ids, rt.ID.String())
	}
	return ids
}

func runUpdate(p *TilePyramid, f *factory, s transform.State, delta uint8) {
	p.Update(nil, true, false, Parameters{Transform: s, PrefetchZoomDelta: delta}, Vector, 512, ZoomRange{Min: 0, Max: 14}, nil, f.create)
}

var wholeWorld = transform.State{Zoom: 1, Width: 1024, Height: 1024}

func TestUpdate_RequiresIdealTiles(t *testing.T) {
	p := New()
	f := newFactory()
	runUpdate(p, f, wholeWorld, 0)

	require.Len(t, f.tiles, 4)
	for _, ft := range f.tiles {
		assert.Equal(t, tile.Required, ft.necessity)
		assert.Equal(t, 1, ft.setLayers, "new tiles get the layers")
	}
	assert.Empty(t, p.GetRenderTiles())
	assert.False(t, p.IsLoaded())

	f.ready()
	runUpdate(p, f, wholeWorld, 0)
	assert.Equal(t, []string{"1/0/0", "1/0/1", "1/1/0", "1/1/1"}, renderIDs(p))
	assert.True(t, p.IsLoaded())
	for _, c := range f.created {
		assert.Equal(t, 1, c)
	}
	rt := p.GetRenderTiles()[0]
	assert.Equal(t, wholeWorld.TileMatrix(rt.ID), rt.Matrix)
}

func TestUpdate_PrefetchesLowerZoom(t *testing.T) {
	p := New()
	f := newFactory()
	s := transform.State{Center: orb.Point{5, 52}, Zoom: 6, Width: 256, Height: 256}
	runUpdate(p, f, s, 2)

	var zooms []uint8
	for id, ft := range f.tiles {
		assert.Equal(t, tile.Required, ft.necessity, id.String())
		zooms = append(zooms, id.OverscaledZ)
	}
	assert.Contains(t, zooms, uint8(6))
	assert.Contains(t, zooms, uint8(4))
	assert.NotContains(t, zooms, uint8(5))
}

func TestUpdate_ParentStandsIn(t *testing.T) {
	p := New()
	f := newFactory()
	s := transform.State{Center: orb.Point{-100, 70}, Zoom: 1, Width: 10, Height: 10}
	runUpdate(p, f, s, 0)
	require.Contains(t, f.tiles, overscaled(1, 0, 0))
	f.ready()

	s.Zoom = 2
	runUpdate(p, f, s, 0)
	ideal := f.tiles[overscaled(2, 0, 0)]
	require.NotNil(t, ideal)
	assert.Equal(t, []string{"1/0/0"}, renderIDs(p), "the parent renders while the ideal tile loads")
	assert.Equal(t, tile.Optional, f.tiles[overscaled(1, 0, 0)].necessity)
	assert.False(t, p.Cache().Has(overscaled(1, 0, 0)))

	ideal.renderable, ideal.complete = true, true
	runUpdate(p, f, s, 0)
	assert.Equal(t, []string{"2/0/0"}, renderIDs(p))
	assert.True(t, p.Cache().Has(overscaled(1, 0, 0)), "the parent is cached once it is no longer needed")
}

func TestUpdate_ParentRequiredWhenIdealHasNothing(t *testing.T) {
	p := New()
	f := newFactory()
	s := transform.State{Center: orb.Point{-100, 70}, Zoom: 2, Width: 10, Height: 10}
	runUpdate(p, f, s, 0)
	ideal := f.tiles[overscaled(2, 0, 0)]
	require.NotNil(t, ideal)
	assert.NotContains(t, f.tiles, overscaled(1, 0, 0), "no parent before the ideal tile tried")
	ideal.complete = true // loaded without anything to draw

	runUpdate(p, f, s, 0)
	parent := f.tiles[overscaled(1, 0, 0)]
	require.NotNil(t, parent)
	assert.Equal(t, tile.Required, parent.necessity)
}

func TestUpdate_ChildrenStandIn(t *testing.T) {
	p := New()
	f := newFactory()
	center := transform.State{Zoom: 0}.Unproject(orb.Point{128, 128})
	s := transform.State{Center: center, Zoom: 2, Width: 1024, Height: 1024}
	runUpdate(p, f, s, 0)
	require.Len(t, f.tiles, 4)
	f.ready()
	runUpdate(p, f, s, 0)
	require.Equal(t, []string{"2/0/0", "2/0/1", "2/1/0", "2/1/1"}, renderIDs(p))

	s.Zoom, s.Width, s.Height = 1, 512, 512
	runUpdate(p, f, s, 0)
	assert.Equal(t, []string{"2/0/0", "2/0/1", "2/1/0", "2/1/1"}, renderIDs(p), "children cover the ideal tile")
	assert.Equal(t, tile.Required, f.tiles[overscaled(1, 0, 0)].necessity)
	assert.Equal(t, tile.Optional, f.tiles[overscaled(2, 0, 0)].necessity)
}

func TestUpdate_OverscaledChildStandsIn(t *testing.T) {
	p := New()
	f := newFactory()
	s := transform.State{Center: orb.Point{-100, 70}, Zoom: 3, Width: 10, Height: 10}
	zooms := ZoomRange{Min: 0, Max: 2}
	p.Update(nil, true, false, Parameters{Transform: s}, Vector, 512, zooms, nil, f.create)
	deep := tileid.NewOverscaled(3, 0, tileid.NewCanonical(2, 0, 0))
	require.Contains(t, f.tiles, deep)
	f.ready()

	s.Zoom = 2
	p.Update(nil, true, false, Parameters{Transform: s}, Vector, 512, zooms, nil, f.create)
	assert.Equal(t, []string{"2/0/0"}, renderIDs(p))
	assert.Same(t, f.tiles[deep], p.GetRenderTiles()[0].Tile)
}

func TestUpdate_NotRendering(t *testing.T) {
	p := New()
	f := newFactory()
	runUpdate(p, f, wholeWorld, 0)
	f.ready()
	runUpdate(p, f, wholeWorld, 0)
	require.NotEmpty(t, p.GetRenderTiles())

	p.Update(nil, false, false, Parameters{Transform: wholeWorld}, Vector, 512, ZoomRange{Max: 14}, nil, f.create)
	assert.Empty(t, p.GetRenderTiles())
	for _, ft := range f.tiles {
		assert.Equal(t, tile.Optional, ft.necessity)
		assert.False(t, ft.closed)
	}
}

func TestUpdate_RelayoutDropsInsteadOfCaching(t *testing.T) {
	p := New()
	f := newFactory()
	runUpdate(p, f, wholeWorld, 0)
	f.ready()
	moved := transform.State{Center: orb.Point{-100, 70}, Zoom: 2, Width: 10, Height: 10}
	p.Update(nil, true, true, Parameters{Transform: moved}, Vector, 512, ZoomRange{Max: 14}, nil, f.create)

	assert.Zero(t, p.Cache().Len())
	assert.True(t, f.tiles[overscaled(1, 1, 1)].closed)
	kept := f.tiles[overscaled(1, 0, 0)]
	assert.False(t, kept.closed, "the parent stands in")
	assert.Equal(t, 2, kept.setLayers)
}

func TestUpdate_Bounds(t *testing.T) {
	p := New()
	f := newFactory()
	bounds := orb.Bound{Min: orb.Point{-170, 10}, Max: orb.Point{-100, 60}}
	p.Update(nil, true, false, Parameters{Transform: wholeWorld}, Vector, 512, ZoomRange{Max: 14}, &bounds, f.create)
	assert.Empty(t, cmp.Diff(map[tileid.OverscaledTileID]int{overscaled(1, 0, 0): 1}, f.created))
}

func TestClearAllAndReduceMemoryUse(t *testing.T) {
	p := New()
	f := newFactory()
	runUpdate(p, f, wholeWorld, 0)
	f.ready()
	runUpdate(p, f, transform.State{Center: orb.Point{-100, 70}, Zoom: 1, Width: 10, Height: 10}, 0)
	assert.Equal(t, 3, p.Cache().Len())

	p.ReduceMemoryUse()
	assert.Zero(t, p.Cache().Len())
	assert.True(t, f.tiles[overscaled(1, 1, 1)].closed)

	p.ClearAll()
	assert.True(t, f.tiles[overscaled(1, 0, 0)].closed)
	assert.Empty(t, p.Tiles())
	assert.Empty(t, p.GetRenderTiles())
}

func TestQueryRenderedFeatures(t *testing.T) {
	p := New()
	f := newFactory()
	runUpdate(p, f, wholeWorld, 0)
	f.ready()
	runUpdate(p, f, wholeWorld, 0)

	got := p.QueryRenderedFeatures([]gg.Point{gg.Pt(256, 256)}, 2, []string{"water"})
	require.Len(t, got["water"], 1)
	assert.Equal(t, 7, got["water"][0].Index)

	q := f.tiles[overscaled(1, 0, 0)].queries[0]
	assert.InDelta(t, 4096, q.Geometry[0][0], 1e-6)
	assert.InDelta(t, 4096, q.Geometry[0][1], 1e-6)
	assert.InDelta(t, 32, q.Tolerance, 1e-6)
	assert.Equal(t, []string{"water"}, q.LayerIDs)
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	tiles := make([]*fakeTile, 3)
	for i := range tiles {
		tiles[i] = &fakeTile{id: overscaled(2, uint32(i), 0)}
		c.Add(tiles[i])
	}
	assert.Equal(t, []tileid.OverscaledTileID{tiles[1].id, tiles[2].id}, c.IDs())
	assert.True(t, tiles[0].closed, "the oldest is evicted")

	got, ok := c.Pop(tiles[1].id)
	require.True(t, ok)
	assert.Same(t, tiles[1], got)
	assert.False(t, tiles[1].closed)

	c.SetSize(0)
	assert.True(t, tiles[2].closed)
	assert.Zero(t, c.Len())
}

// A cached tile comes back without a new request, an evicted one is fetched again.
func TestEvictionPromotionRoundTrip(t *testing.T) {
	main, workers := actor.NewManual(), actor.NewManual()
	stub := filesource.NewStub(main)
	layers, err := style.LoadLayers([]byte(`[{"id": "water", "type": "fill", "source-layer": "water"}]`))
	require.NoError(t, err)
	data := tiledata.NewBuilder().AddFeature("water", tiledata.Polygon, nil, 1, tiledata.GeometryCollection{
		{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}},
	}).Build()
	urlFor := func(id tileid.CanonicalTileID) string { return fmt.Sprintf("tiles/%v.pbf", id) }

	west := transform.State{Center: orb.Point{-100, 70}, Zoom: 1, Width: 10, Height: 10}
	east := transform.State{Center: orb.Point{100, 70}, Zoom: 1, Width: 10, Height: 10}
	westID := overscaled(1, 0, 0)
	stub.Set(urlFor(westID.Canonical), filesource.Response{Data: []byte("west")})
	stub.Set(urlFor(overscaled(1, 1, 0).Canonical), filesource.Response{Data: []byte("east")})

	create := func(id tileid.OverscaledTileID) tile.Tile {
		gt := tile.NewGeometryTile(id, tile.Options{MainLoop: main, Workers: workers, WorkerParams: worker.Params{TileSize: 512}})
		gt.LoadFrom(stub, filesource.Resource{Kind: filesource.Tile, URL: urlFor(id.Canonical), TileID: id.Canonical},
			func([]byte) (tiledata.GeometryTileData, error) { return data, nil })
		return gt
	}
	p := New()
	frame := func(s transform.State) {
		p.Update(layers, true, false, Parameters{Transform: s}, Vector, 512, ZoomRange{Max: 14}, nil, create)
		for main.Len() > 0 || workers.Len() > 0 {
			main.RunAll()
			workers.RunAll()
		}
		p.Update(layers, true, false, Parameters{Transform: s}, Vector, 512, ZoomRange{Max: 14}, nil, create)
	}

	frame(west)
	require.Equal(t, []string{"1/0/0"}, renderIDs(p))
	westTile, _ := p.Tile(westID)

	frame(east)
	require.True(t, p.Cache().Has(westID))

	frame(west)
	assert.Equal(t, 1, stub.Requests(urlFor(westID.Canonical)), "promoted from the cache")
	promoted, ok := p.Tile(westID)
	require.True(t, ok)
	assert.Same(t, westTile, promoted)
	assert.Equal(t, []string{"1/0/0"}, renderIDs(p))

	p.SetCacheSize(0)
	frame(east)
	assert.False(t, p.Cache().Has(westID))
	assert.Equal(t, tile.Obsolete, westTile.State())

	frame(west)
	assert.Equal(t, 2, stub.Requests(urlFor(westID.Canonical)), "fetched again after eviction")
	assert.Equal(t, []string{"1/0/0"}, renderIDs(p))
}
