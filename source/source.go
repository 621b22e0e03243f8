// Package source binds a tile pyramid to where its tiles come from. A source keeps the
// pyramid of one style source up to date for every frame and hands out the tiles to draw.
package source

import (
	"time"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/glyph"
	"github.com/pdok/mosaic/pyramid"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/transform"
	"github.com/pdok/mosaic/worker"
)

// Observer hears about the tiles of every source.
type Observer interface {
	OnTileChanged(sourceID string, id tileid.OverscaledTileID)
	OnTileError(sourceID string, id tileid.OverscaledTileID, err error)
}

// UpdateParameters describe one frame.
type UpdateParameters struct {
	Transform transform.State
	// Layers are all style layers, each source picks its own.
	Layers []style.Layer
	// NeedsRelayout is set when the layers changed since the previous frame.
	NeedsRelayout      bool
	Now                time.Time
	PrefetchZoomDelta  uint8
	ShowCollisionBoxes bool
}

// RenderSource is a style source with the tiles of the current frame.
type RenderSource interface {
	ID() string
	Update(params UpdateParameters)
	RenderTiles() []pyramid.RenderTile
	IsLoaded() bool
	Pyramid() *pyramid.TilePyramid
	// QueryRenderedFeatures looks up the features under screen pixels, see
	// pyramid.TilePyramid.QueryRenderedFeatures.
	QueryRenderedFeatures(geometry []gg.Point, tolerance float64, layerIDs []string) map[string][]featureindex.QueriedFeature
	// Close drops every tile.
	Close()
}

// Context is what the tiles of a source share.
type Context struct {
	// MainLoop is the scheduler of the goroutine sources are used from.
	MainLoop actor.Scheduler
	Workers  actor.Scheduler
	// FileSource is not used by GeoJSON sources.
	FileSource filesource.FileSource
	Glyphs     *glyph.Manager
	Images     *glyph.ImageManager
	Observer   Observer
	// CacheSize is the size of the tile cache, pyramid.DefaultCacheSize when zero.
	CacheSize int
	// CellSize of the collision grids, the collision default when zero.
	CellSize float64
}

// tileObserver passes tile events on with the source id.
type tileObserver struct {
	sourceID string
	observer Observer
}

func (o tileObserver) OnTileChanged(id tileid.OverscaledTileID) {
	o.observer.OnTileChanged(o.sourceID, id)
}

func (o tileObserver) OnTileError(id tileid.OverscaledTileID, err error) {
	o.observer.OnTileError(o.sourceID, id, err)
}

// base is the part every source kind shares.
type base struct {
	id        string
	kind      pyramid.SourceType
	ctx       Context
	pyramid   *pyramid.TilePyramid
	tileSize  float64
	zoomRange pyramid.ZoomRange
	bounds    *orb.Bound
	layers    []style.Layer
}

func newBase(id string, kind pyramid.SourceType, ctx Context, tileSize float64, zoomRange pyramid.ZoomRange, bounds *orb.Bound) base {
	p := pyramid.New()
	if ctx.CacheSize > 0 {
		p.SetCacheSize(ctx.CacheSize)
	}
	return base{id: id, kind: kind, ctx: ctx, pyramid: p, tileSize: tileSize, zoomRange: zoomRange, bounds: bounds}
}

func (b *base) ID() string {
	return b.id
}

func (b *base) Pyramid() *pyramid.TilePyramid {
	return b.pyramid
}

func (b *base) RenderTiles() []pyramid.RenderTile {
	return b.pyramid.GetRenderTiles()
}

func (b *base) IsLoaded() bool {
	return b.pyramid.IsLoaded()
}

func (b *base) QueryRenderedFeatures(geometry []gg.Point, tolerance float64, layerIDs []string) map[string][]featureindex.QueriedFeature {
	return b.pyramid.QueryRenderedFeatures(geometry, tolerance, layerIDs)
}

func (b *base) Close() {
	b.pyramid.ClearAll()
}

func (b *base) tileObserver() tile.Observer {
	if b.ctx.Observer == nil {
		return nil
	}
	return tileObserver{sourceID: b.id, observer: b.ctx.Observer}
}

func (b *base) tileOptions() tile.Options {
	return tile.Options{
		MainLoop:     b.ctx.MainLoop,
		Workers:      b.ctx.Workers,
		Observer:     b.tileObserver(),
		Glyphs:       b.ctx.Glyphs,
		Images:       b.ctx.Images,
		WorkerParams: worker.Params{TileSize: b.tileSize, CellSize: b.ctx.CellSize},
	}
}

// ownLayers picks the layers of this source, rewritten by adapt when it is not nil.
func (b *base) ownLayers(layers []style.Layer, adapt func(*style.Layer)) []style.Layer {
	var own []style.Layer
	for _, l := range layers {
		if l.Source != b.id {
			continue
		}
		if adapt != nil {
			adapt(&l)
		}
		own = append(own, l)
	}
	return own
}

// update runs the pyramid for a frame. Tiles are only rendered when a layer of this source
// is visible at the current zoom.
func (b *base) update(params UpdateParameters, layers []style.Layer, createTile pyramid.CreateTile) {
	b.layers = layers
	needsRendering := false
	for i := range layers {
		if layers[i].IsVisible(params.Transform.Zoom) {
			needsRendering = true
			break
		}
	}
	b.pyramid.Update(layers, needsRendering, params.NeedsRelayout, pyramid.Parameters{
		Transform:         params.Transform,
		PrefetchZoomDelta: params.PrefetchZoomDelta,
		PlacementConfig: worker.PlacementConfig{
			Collision:          params.Transform.CollisionConfig(),
			ShowCollisionBoxes: params.ShowCollisionBoxes,
		},
	}, b.kind, b.tileSize, b.zoomRange, b.bounds, createTile)
}
