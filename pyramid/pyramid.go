// Package pyramid decides which tiles of a source are needed for the current camera, keeps
// them while they load, falls back to parents and children that can stand in, and caches
// tiles that are no longer needed.
package pyramid

import (
	"math"
	"slices"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/umpc/go-sortedmap"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/mapslicehelp"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tilecover"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/transform"
	"github.com/pdok/mosaic/worker"
)

type SourceType uint8

const (
	Vector SourceType = iota
	GeoJSON
	Raster
)

func (t SourceType) String() string {
	switch t {
	case Vector:
		return "vector"
	case GeoJSON:
		return "geojson"
	case Raster:
		return "raster"
	default:
		return "unknown"
	}
}

// ZoomRange is the range of canonical zoom levels a source has data for.
type ZoomRange struct {
	Min, Max uint8
}

// Parameters describe the frame an update is for.
type Parameters struct {
	Transform transform.State
	// PrefetchZoomDelta is how many levels above the ideal zoom tiles are loaded as well, and
	// how far up an ancestor may be to stand in for a missing tile.
	PrefetchZoomDelta uint8
	PlacementConfig   worker.PlacementConfig
}

// CreateTile makes a new tile for id. It may return nil when the source cannot have it.
type CreateTile func(id tileid.OverscaledTileID) tile.Tile

// RenderTile is a tile that is drawn this frame at ID, which is the tile's own position.
type RenderTile struct {
	ID     tileid.UnwrappedTileID
	Tile   tile.Tile
	Matrix gg.Matrix
}

// DefaultCacheSize is the number of tiles the cache holds unless set otherwise.
const DefaultCacheSize = 64

// TilePyramid is used from the main goroutine only.
type TilePyramid struct {
	// tiles holds tile.Tile values keyed by tileid.OverscaledTileID, sorted by id
	tiles       *sortedmap.SortedMap
	necessity   map[tileid.OverscaledTileID]tile.Necessity
	cache       *Cache
	renderTiles *orderedmap.OrderedMap[tileid.UnwrappedTileID, RenderTile]
	placement   worker.PlacementConfig
}

func New() *TilePyramid {
	return &TilePyramid{
		tiles:       newTileMap(),
		necessity:   make(map[tileid.OverscaledTileID]tile.Necessity),
		cache:       NewCache(DefaultCacheSize),
		renderTiles: orderedmap.New[tileid.UnwrappedTileID, RenderTile](),
	}
}

func newTileMap() *sortedmap.SortedMap {
	return sortedmap.New(64, func(x, y interface{}) bool {
		return x.(tile.Tile).ID().Less(y.(tile.Tile).ID())
	})
}

// Tile returns the retained tile with id.
func (p *TilePyramid) Tile(id tileid.OverscaledTileID) (tile.Tile, bool) {
	v, ok := p.tiles.Get(id)
	if !ok {
		return nil, false
	}
	return v.(tile.Tile), true
}

// Tiles returns the retained tiles ordered by id.
func (p *TilePyramid) Tiles() []tile.Tile {
	return mapslicehelp.SortedMapValues[tile.Tile](p.tiles)
}

func (p *TilePyramid) Cache() *Cache {
	return p.cache
}

// Update recomputes the tiles for the camera in params. Ideal tiles are required; tiles that
// stand in for them while they load are kept without loading them. createTile is only
// called for tiles that are neither retained nor cached.
func (p *TilePyramid) Update(layers []style.Layer, needsRendering, needsRelayout bool, params Parameters,
	sourceType SourceType, tileSize float64, zoomRange ZoomRange, bounds *orb.Bound, createTile CreateTile) {
	if needsRelayout {
		p.cache.Clear()
	}
	if !needsRendering {
		if !needsRelayout {
			for _, t := range p.Tiles() {
				t.SetNecessity(tile.Optional)
			}
		}
		p.renderTiles = orderedmap.New[tileid.UnwrappedTileID, RenderTile]()
		return
	}

	u := &update{
		pyramid:    p,
		layers:     layers,
		params:     params,
		zoomRange:  zoomRange,
		createTile: createTile,
		retain:     make(map[tileid.OverscaledTileID]tile.Necessity),
		checked:    make(map[tileid.UnwrappedTileID]struct{}),
		render:     make(map[tileid.UnwrappedTileID]tile.Tile),
	}

	mode := transform.Floor
	if sourceType == Raster {
		mode = transform.Round
	}
	overscaledZoom := int(params.Transform.CoveringZoom(tileSize, mode))
	if overscaledZoom >= int(zoomRange.Min) {
		idealZoom := uint8(min(overscaledZoom, int(zoomRange.Max)))
		tileZoom := uint8(overscaledZoom)
		if sourceType == Raster {
			tileZoom = idealZoom
		}
		if sourceType != GeoJSON && params.PrefetchZoomDelta > 0 {
			panZoom := uint8(max(int(tileZoom)-int(params.PrefetchZoomDelta), int(zoomRange.Min)))
			if panZoom < idealZoom {
				u.updateRenderables(cover(params.Transform, panZoom, panZoom, bounds), false)
			}
		}
		u.updateRenderables(cover(params.Transform, idealZoom, tileZoom, bounds), true)
	}
	u.finish(needsRelayout)
}

// cover lists the tiles at canonical zoom z that the viewport needs, overscaled to tileZoom.
func cover(s transform.State, z, tileZoom uint8, bounds *orb.Bound) []tileid.OverscaledTileID {
	var ids []tileid.OverscaledTileID
	for _, u := range tilecover.Viewport(s, z) {
		if bounds != nil && !bounds.Intersects(u.Canonical.Bound()) {
			continue
		}
		ids = append(ids, u.OverscaleTo(tileZoom))
	}
	return ids
}

type update struct {
	pyramid    *TilePyramid
	layers     []style.Layer
	params     Parameters
	zoomRange  ZoomRange
	createTile CreateTile
	retain     map[tileid.OverscaledTileID]tile.Necessity
	checked    map[tileid.UnwrappedTileID]struct{}
	render     map[tileid.UnwrappedTileID]tile.Tile
}

func (u *update) get(id tileid.OverscaledTileID) tile.Tile {
	t, _ := u.pyramid.Tile(id)
	return t
}

// create promotes id from the cache or makes a new tile, and adds it to the pyramid.
func (u *update) create(id tileid.OverscaledTileID) tile.Tile {
	t, ok := u.pyramid.cache.Pop(id)
	if !ok {
		t = u.createTile(id)
		if t == nil {
			return nil
		}
		t.SetLayers(u.layers)
		t.SetPlacementConfig(u.params.PlacementConfig)
	}
	u.pyramid.tiles.Insert(id, t)
	return t
}

func (u *update) keep(t tile.Tile, n tile.Necessity) {
	mapslicehelp.MaxValue(u.retain, t.ID(), n)
}

// updateRenderables retains the ideal tiles and, for those that cannot render yet, children
// that cover them completely or else the nearest ancestor that can render.
func (u *update) updateRenderables(ideal []tileid.OverscaledTileID, render bool) {
	for _, id := range ideal {
		t := u.get(id)
		if t == nil {
			t = u.create(id)
		}
		if t == nil {
			continue
		}
		u.keep(t, tile.Required)
		renderID := id.ToUnwrapped()
		if t.IsRenderable() {
			if render {
				u.render[renderID] = t
			}
			continue
		}
		if !render {
			continue
		}
		u.checked[renderID] = struct{}{}
		if !u.useChildren(id) {
			u.useAncestor(id, t)
		}
	}
}

// useChildren renders the children of id that can render, and reports whether they cover it.
func (u *update) useChildren(id tileid.OverscaledTileID) bool {
	if id.OverscaledZ >= tileid.MaxZoom {
		return false
	}
	covered := true
	for _, childID := range id.Children(u.zoomRange.Max) {
		child := u.get(childID)
		if child == nil || !child.IsRenderable() {
			covered = false
			continue
		}
		u.keep(child, tile.Optional)
		renderID := childID.ToUnwrapped()
		if childID.Canonical == id.Canonical {
			// an overscaled child draws at the position of the ideal tile
			renderID = id.ToUnwrapped()
		}
		u.render[renderID] = child
	}
	return covered
}

// useAncestor walks up at most PrefetchZoomDelta levels. Ancestors are only created once the
// ideal tile tried to load, and only required once it is known the ideal tile has nothing.
func (u *update) useAncestor(id tileid.OverscaledTileID, t tile.Tile) {
	triedBelow, loadedBelow := t.HasTriedCache(), t.IsLoaded()
	lowest := max(int(id.OverscaledZ)-int(max(u.params.PrefetchZoomDelta, 1)), int(u.zoomRange.Min))
	for z := int(id.OverscaledZ) - 1; z >= lowest; z-- {
		parentID := id.ScaledTo(uint8(z))
		renderID := parentID.ToUnwrapped()
		if _, ok := u.checked[renderID]; ok {
			return
		}
		u.checked[renderID] = struct{}{}

		parent := u.get(parentID)
		if parent == nil && (triedBelow || loadedBelow) {
			parent = u.create(parentID)
		}
		if parent == nil {
			continue
		}
		if loadedBelow {
			u.keep(parent, tile.Required)
		} else {
			u.keep(parent, tile.Optional)
		}
		triedBelow, loadedBelow = parent.HasTriedCache(), parent.IsLoaded()
		if parent.IsRenderable() {
			u.render[renderID] = parent
			return
		}
	}
}

// finish applies the necessities, moves tiles that are not retained to the cache and
// rebuilds the render tiles.
func (u *update) finish(needsRelayout bool) {
	p := u.pyramid
	for _, t := range p.Tiles() {
		id := t.ID()
		n, ok := u.retain[id]
		if ok {
			t.SetNecessity(n)
			if needsRelayout {
				t.SetLayers(u.layers)
			}
			if p.placement != u.params.PlacementConfig {
				t.SetPlacementConfig(u.params.PlacementConfig)
			}
			continue
		}
		p.tiles.Delete(id)
		if !needsRelayout && t.IsRenderable() {
			t.SetNecessity(tile.Optional)
			p.cache.Add(t)
			continue
		}
		logging.L().Debug("dropping tile", zap.Stringer("tile", id))
		t.Close()
	}
	p.necessity = u.retain
	p.placement = u.params.PlacementConfig

	ids := maps.Keys(u.render)
	slices.SortFunc(ids, func(a, b tileid.UnwrappedTileID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	p.renderTiles = orderedmap.New[tileid.UnwrappedTileID, RenderTile]()
	for _, id := range ids {
		p.renderTiles.Set(id, RenderTile{
			ID:     id,
			Tile:   u.render[id],
			Matrix: u.params.Transform.TileMatrix(id),
		})
	}
}

// GetRenderTiles returns the tiles to draw this frame, ordered by id.
func (p *TilePyramid) GetRenderTiles() []RenderTile {
	return mapslicehelp.OrderedMapValues(p.renderTiles)
}

// IsLoaded reports whether every required tile is complete.
func (p *TilePyramid) IsLoaded() bool {
	for _, t := range p.Tiles() {
		if p.necessity[t.ID()] == tile.Required && !t.IsComplete() {
			return false
		}
	}
	return true
}

func (p *TilePyramid) SetCacheSize(size int) {
	p.cache.SetSize(size)
}

// ReduceMemoryUse drops the cache.
func (p *TilePyramid) ReduceMemoryUse() {
	p.cache.Clear()
}

// ClearAll closes every tile, retained or cached.
func (p *TilePyramid) ClearAll() {
	for _, t := range p.Tiles() {
		t.Close()
	}
	p.tiles = newTileMap()
	p.necessity = make(map[tileid.OverscaledTileID]tile.Necessity)
	p.cache.Clear()
	p.renderTiles = orderedmap.New[tileid.UnwrappedTileID, RenderTile]()
}

// QueryRenderedFeatures looks up the features under a point or inside a ring of screen
// pixels, per style layer. Tolerance is in screen pixels.
func (p *TilePyramid) QueryRenderedFeatures(geometry []gg.Point, tolerance float64, layerIDs []string) map[string][]featureindex.QueriedFeature {
	result := make(map[string][]featureindex.QueriedFeature)
	for _, rt := range p.GetRenderTiles() {
		inverse := rt.Matrix.Invert()
		q := featureindex.Query{LayerIDs: layerIDs, Geometry: make([][2]float64, len(geometry))}
		for i, pt := range geometry {
			tp := inverse.TransformPoint(pt)
			q.Geometry[i] = [2]float64{tp.X, tp.Y}
		}
		unit := inverse.TransformVector(gg.Pt(1, 0))
		q.Tolerance = tolerance * math.Hypot(unit.X, unit.Y)
		for _, f := range rt.Tile.QueryRenderedFeatures(q) {
			result[f.LayerID] = append(result[f.LayerID], f)
		}
	}
	return result
}
