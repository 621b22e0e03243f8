package tile

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/glyph"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/worker"
)

// Parser decodes the bytes of a tile. It runs on the goroutine of the file source.
type Parser func([]byte) (tiledata.GeometryTileData, error)

// Options are what a tile needs from its source.
type Options struct {
	// MainLoop runs the tile's messages, it must be the goroutine the tile is used from.
	MainLoop actor.Scheduler
	// Workers runs layout and placement.
	Workers  actor.Scheduler
	Observer Observer
	// Glyphs and Images may be nil, requests are then answered with nothing.
	Glyphs       *glyph.Manager
	Images       *glyph.ImageManager
	WorkerParams worker.Params
}

var (
	_ Tile                 = (*GeometryTile)(nil)
	_ glyph.Requestor      = (*GeometryTile)(nil)
	_ glyph.ImageRequestor = (*GeometryTile)(nil)
	_ worker.Parent        = parent{}
)

// GeometryTile is a vector or GeoJSON tile. Layout and placement run on its worker; results
// come back through the tile's mailbox on the main loop.
type GeometryTile struct {
	base

	actor    *actor.Actor[GeometryTile]
	worker   *worker.Handle
	obsolete atomic.Bool
	glyphs   *glyph.Manager
	images   *glyph.ImageManager

	hasData        bool
	correlationID  uint64
	glyphRequestID uint64
	imageRequestID uint64

	complete     bool
	buckets      map[string]bucket.Bucket
	featureIndex *featureindex.FeatureIndex
	collision    *collision.Index
	projection   collision.Projection
}

func NewGeometryTile(id tileid.OverscaledTileID, opts Options) *GeometryTile {
	var t *GeometryTile
	a := actor.New(opts.MainLoop, func(actor.Ref[GeometryTile]) *GeometryTile {
		t = &GeometryTile{
			glyphs: opts.Glyphs,
			images: opts.Images,
		}
		t.init(id, opts.Observer)
		return t
	})
	t.actor = a
	t.worker = worker.New(opts.Workers, id, parent{self: a.Self()}, opts.WorkerParams, &t.obsolete)
	return t
}

// LoadFrom makes the tile fetch its data from source, decoded with parse.
func (t *GeometryTile) LoadFrom(source filesource.FileSource, resource filesource.Resource, parse Parser) {
	self := t.actor.Self()
	t.loader = NewLoader(t.id, source, resource, func(resp filesource.Response) {
		var data tiledata.GeometryTileData
		var err error
		if resp.Error == nil && !resp.NoContent {
			data, err = parse(resp.Data)
		}
		self.Invoke(func(t *GeometryTile) { t.onResponse(resp, data, err) })
	})
	t.SetNecessity(t.necessity)
}

func (t *GeometryTile) onResponse(resp filesource.Response, data tiledata.GeometryTileData, err error) {
	if !t.response(resp, err) {
		return
	}
	if err != nil {
		t.setError(fmt.Errorf("could not parse tile %v: %w", t.id, err))
		return
	}
	t.SetData(data)
}

// SetData hands new data to the worker. nil data makes the tile empty.
func (t *GeometryTile) SetData(data tiledata.GeometryTileData) {
	if t.State() == Obsolete {
		return
	}
	t.hasData = true
	t.correlationID++
	t.state.Store(Loaded)
	t.worker.SetData(data, t.correlationID)
}

func (t *GeometryTile) SetLayers(layers []style.Layer) {
	if t.State() == Obsolete {
		return
	}
	t.invalidate()
	t.worker.SetLayers(layers, t.correlationID)
}

func (t *GeometryTile) SetPlacementConfig(config worker.PlacementConfig) {
	if t.State() == Obsolete {
		return
	}
	t.invalidate()
	t.worker.SetPlacementConfig(config, t.correlationID)
}

// invalidate starts a new input generation. A parsed tile with data waits for the result of it.
func (t *GeometryTile) invalidate() {
	t.correlationID++
	if t.State() == Parsed && t.hasData {
		t.state.Store(Loaded)
	}
}

func (t *GeometryTile) onLayout(result worker.Result) {
	if t.State() == Obsolete {
		return
	}
	if result.CorrelationID != t.correlationID {
		logging.L().Debug("discarding stale tile result", zap.Stringer("tile", t.id),
			zap.Uint64("result", result.CorrelationID), zap.Uint64("current", t.correlationID))
		return
	}
	t.buckets = result.Buckets
	t.featureIndex = result.FeatureIndex
	t.collision = result.Collision
	t.projection = result.Projection
	t.complete = result.Complete
	t.renderable = true
	t.state.Store(Parsed)
	t.changed(nil)
}

func (t *GeometryTile) onError(err error, correlationID uint64) {
	if t.State() == Obsolete {
		return
	}
	if correlationID != t.correlationID {
		logging.L().Debug("discarding stale tile error", zap.Stringer("tile", t.id), zap.Error(err))
		return
	}
	logging.L().Warn("tile layout failed", zap.Stringer("tile", t.id), zap.Error(err))
	t.setError(err)
}

// setError leaves the tile parsed without data, so that parents or children fill in.
func (t *GeometryTile) setError(err error) {
	t.buckets = nil
	t.featureIndex = nil
	t.collision = nil
	t.complete = true
	t.renderable = false
	t.state.Store(Parsed)
	t.changed(err)
}

func (t *GeometryTile) getGlyphs(deps glyph.Dependencies, requestID uint64) {
	t.glyphRequestID = requestID
	if t.glyphs == nil {
		t.worker.OnGlyphsAvailable(glyph.Positions{}, requestID)
		return
	}
	t.glyphs.GetGlyphs(t, deps)
}

func (t *GeometryTile) getImages(deps map[string]struct{}, requestID uint64) {
	t.imageRequestID = requestID
	if t.images == nil {
		t.worker.OnImagesAvailable(map[string]glyph.Image{}, requestID)
		return
	}
	t.images.GetImages(t, deps)
}

// OnGlyphsAvailable passes the glyphs of the latest request on to the worker.
func (t *GeometryTile) OnGlyphsAvailable(positions glyph.Positions) {
	if t.State() != Obsolete {
		t.worker.OnGlyphsAvailable(positions, t.glyphRequestID)
	}
}

func (t *GeometryTile) OnImagesAvailable(images map[string]glyph.Image) {
	if t.State() != Obsolete {
		t.worker.OnImagesAvailable(images, t.imageRequestID)
	}
}

func (t *GeometryTile) IsComplete() bool {
	return t.IsLoaded() && t.complete
}

// Buckets must not be modified.
func (t *GeometryTile) Buckets() map[string]bucket.Bucket {
	return t.buckets
}

func (t *GeometryTile) Bucket(layerID string) (bucket.Bucket, bool) {
	b, ok := t.buckets[layerID]
	return b, ok
}

// SymbolBuckets are the buckets the global placement works on.
func (t *GeometryTile) SymbolBuckets() map[string]*bucket.SymbolBucket {
	result := make(map[string]*bucket.SymbolBucket)
	for id, b := range t.buckets {
		if sb, ok := b.(*bucket.SymbolBucket); ok {
			result[id] = sb
		}
	}
	return result
}

func (t *GeometryTile) FeatureIndex() *featureindex.FeatureIndex {
	return t.featureIndex
}

func (t *GeometryTile) CollisionIndex() *collision.Index {
	return t.collision
}

// QueryRenderedFeatures looks up features in tile units. Symbols are looked up in the tile's
// own collision index unless the query brings one.
func (t *GeometryTile) QueryRenderedFeatures(q featureindex.Query) []featureindex.QueriedFeature {
	if t.featureIndex == nil {
		return nil
	}
	if q.Collision == nil {
		q.Collision, q.Projection = t.collision, t.projection
	}
	return t.featureIndex.Query(q)
}

// Close stops the tile for good. A running worker step finishes but its result is dropped.
func (t *GeometryTile) Close() {
	if !t.close() {
		return
	}
	t.obsolete.Store(true)
	t.actor.Abandon()
	t.worker.Close()
	if t.glyphs != nil {
		t.glyphs.RemoveRequestor(t)
	}
	if t.images != nil {
		t.images.RemoveRequestor(t)
	}
}

// parent forwards the worker's calls into the tile's mailbox.
type parent struct {
	self actor.Ref[GeometryTile]
}

func (p parent) OnLayout(result worker.Result) {
	p.self.Invoke(func(t *GeometryTile) { t.onLayout(result) })
}

func (p parent) OnError(err error, correlationID uint64) {
	p.self.Invoke(func(t *GeometryTile) { t.onError(err, correlationID) })
}

func (p parent) GetGlyphs(deps glyph.Dependencies, requestID uint64) {
	p.self.Invoke(func(t *GeometryTile) { t.getGlyphs(deps, requestID) })
}

func (p parent) GetImages(deps map[string]struct{}, requestID uint64) {
	p.self.Invoke(func(t *GeometryTile) { t.getImages(deps, requestID) })
}
