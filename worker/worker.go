// Package worker lays out one tile off the main goroutine. A GeometryTileWorker runs as an
// actor on the worker pool, coalesces its inputs and sends complete results back to its tile.
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/glyph"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/symbol"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
)

type State uint8

const (
	// Idle waits for input.
	Idle State = iota
	// Coalescing ran a step and collects the input that arrives until the step is acknowledged.
	Coalescing
	// NeedLayout collected new data or layers.
	NeedLayout
	// NeedPlacement collected a new placement config or resolved symbol dependencies.
	NeedPlacement
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Coalescing:
		return "coalescing"
	case NeedLayout:
		return "need layout"
	case NeedPlacement:
		return "need placement"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Result is everything a layout or placement step produced. The tile takes ownership.
type Result struct {
	Buckets       map[string]bucket.Bucket
	FeatureIndex  *featureindex.FeatureIndex
	Collision     *collision.Index
	Projection    collision.Projection
	Complete      bool
	CorrelationID uint64
}

// Parent is the tile side of a worker. Its methods are called from the worker's goroutine and
// must hand the call over to the tile's own mailbox.
type Parent interface {
	OnLayout(Result)
	OnError(err error, correlationID uint64)
	GetGlyphs(deps glyph.Dependencies, requestID uint64)
	GetImages(deps map[string]struct{}, requestID uint64)
}

// PlacementConfig is the camera state and debug flag tile placement runs with.
type PlacementConfig struct {
	Collision          collision.Config
	ShowCollisionBoxes bool
}

// Params are fixed for the life of a worker.
type Params struct {
	TileSize float64
	CellSize float64
}

type dataSlot struct {
	data          tiledata.GeometryTileData
	correlationID uint64
}

type layersSlot struct {
	layers        []style.Layer
	correlationID uint64
}

type configSlot struct {
	config        PlacementConfig
	correlationID uint64
}

// inbox holds the most recent unconsumed input of every kind. A single wake message is
// queued while anything is unconsumed.
type inbox struct {
	mu     sync.Mutex
	data   *dataSlot
	layers *layersSlot
	config *configSlot
	woken  bool
}

// put stores an input and reports whether a wake message has to be sent.
func (in *inbox) put(store func()) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	store()
	if in.woken {
		return false
	}
	in.woken = true
	return true
}

func (in *inbox) take() (*dataSlot, *layersSlot, *configSlot) {
	in.mu.Lock()
	defer in.mu.Unlock()
	data, layers, config := in.data, in.layers, in.config
	in.data, in.layers, in.config = nil, nil, nil
	in.woken = false
	return data, layers, config
}

// Handle is how a tile talks to its worker. It is safe for concurrent use.
type Handle struct {
	actor  *actor.Actor[GeometryTileWorker]
	inbox  *inbox
	worker *GeometryTileWorker
}

// New starts a worker for tile id on scheduler. obsolete is shared with the tile, which sets
// it when the worker's results are no longer wanted.
func New(scheduler actor.Scheduler, id tileid.OverscaledTileID, parent Parent, params Params, obsolete *atomic.Bool) *Handle {
	in := &inbox{}
	h := &Handle{inbox: in}
	h.actor = actor.New(scheduler, func(self actor.Ref[GeometryTileWorker]) *GeometryTileWorker {
		h.worker = &GeometryTileWorker{
			self:     self,
			inbox:    in,
			id:       id,
			parent:   parent,
			params:   params,
			obsolete: obsolete,
		}
		return h.worker
	})
	return h
}

func (h *Handle) wake() {
	h.actor.Invoke((*GeometryTileWorker).wake)
}

// SetData replaces the tile data. nil data lays out an empty tile.
func (h *Handle) SetData(data tiledata.GeometryTileData, correlationID uint64) {
	if h.inbox.put(func() { h.inbox.data = &dataSlot{data: data, correlationID: correlationID} }) {
		h.wake()
	}
}

func (h *Handle) SetLayers(layers []style.Layer, correlationID uint64) {
	if h.inbox.put(func() { h.inbox.layers = &layersSlot{layers: layers, correlationID: correlationID} }) {
		h.wake()
	}
}

func (h *Handle) SetPlacementConfig(config PlacementConfig, correlationID uint64) {
	if h.inbox.put(func() { h.inbox.config = &configSlot{config: config, correlationID: correlationID} }) {
		h.wake()
	}
}

// OnGlyphsAvailable answers the glyph request with requestID.
func (h *Handle) OnGlyphsAvailable(positions glyph.Positions, requestID uint64) {
	h.actor.Invoke(func(w *GeometryTileWorker) { w.onGlyphsAvailable(positions, requestID) })
}

// OnImagesAvailable answers the icon request with requestID.
func (h *Handle) OnImagesAvailable(images map[string]glyph.Image, requestID uint64) {
	h.actor.Invoke(func(w *GeometryTileWorker) { w.onImagesAvailable(images, requestID) })
}

// Close drops the queued messages without waiting for a running step.
func (h *Handle) Close() {
	h.actor.Abandon()
}

// GeometryTileWorker turns tile data and style layers into buckets, a feature index and
// placed symbols. Only its own mailbox touches it.
type GeometryTileWorker struct {
	self     actor.Ref[GeometryTileWorker]
	inbox    *inbox
	id       tileid.OverscaledTileID
	parent   Parent
	params   Params
	obsolete *atomic.Bool

	state         State
	correlationID uint64

	data      tiledata.GeometryTileData
	hasData   bool
	layers    []style.Layer
	hasLayers bool
	config    PlacementConfig

	buckets      map[string]bucket.Bucket
	featureIndex *featureindex.FeatureIndex
	layouts      []*symbol.Layout

	glyphs         glyph.Positions
	images         map[string]glyph.Image
	glyphRequestID uint64
	imageRequestID uint64
	// requested and answered, so known even when the font or sprite lacks them
	answeredGlyphs glyph.Dependencies
	answeredImages map[string]struct{}
	pendingGlyphs  glyph.Dependencies
	pendingImages  map[string]struct{}

	layoutPasses    int
	placementPasses int
}

func (w *GeometryTileWorker) wake() {
	data, layers, config := w.inbox.take()
	relayout, replace := false, false
	if data != nil {
		w.data, w.hasData = data.data, true
		w.correlationID = max(w.correlationID, data.correlationID)
		relayout = true
	}
	if layers != nil {
		w.layers, w.hasLayers = layers.layers, true
		w.correlationID = max(w.correlationID, layers.correlationID)
		relayout = true
	}
	if config != nil {
		w.config = config.config
		w.correlationID = max(w.correlationID, config.correlationID)
		replace = true
	}

	switch {
	case relayout:
		w.needLayout()
	case replace:
		w.needPlacement()
	}
}

func (w *GeometryTileWorker) needLayout() {
	switch w.state {
	case Idle:
		w.redoLayout()
		w.coalesce()
	case Coalescing, NeedPlacement:
		w.state = NeedLayout
	case NeedLayout:
	}
}

func (w *GeometryTileWorker) needPlacement() {
	switch w.state {
	case Idle:
		w.attemptPlacement()
		w.coalesce()
	case Coalescing:
		w.state = NeedPlacement
	case NeedLayout, NeedPlacement:
	}
}

func (w *GeometryTileWorker) coalesce() {
	w.state = Coalescing
	w.self.Invoke((*GeometryTileWorker).coalesced)
}

// coalesced runs once the messages that arrived during a step are processed.
func (w *GeometryTileWorker) coalesced() {
	switch w.state {
	case Coalescing:
		w.state = Idle
	case NeedLayout:
		w.redoLayout()
		w.coalesce()
	case NeedPlacement:
		w.attemptPlacement()
		w.coalesce()
	case Idle:
		logging.L().Error("coalesced while idle", zap.Stringer("tile", w.id))
	}
}

func (w *GeometryTileWorker) symbolDependenciesChanged() {
	if len(w.layouts) == 0 {
		return
	}
	w.needPlacement()
}

func (w *GeometryTileWorker) onGlyphsAvailable(positions glyph.Positions, requestID uint64) {
	if requestID != w.glyphRequestID {
		return
	}
	if w.glyphs == nil {
		w.glyphs = make(glyph.Positions)
	}
	w.glyphs.Merge(positions)
	if w.answeredGlyphs == nil {
		w.answeredGlyphs = make(glyph.Dependencies)
	}
	for stack, runes := range w.pendingGlyphs {
		for r := range runes {
			w.answeredGlyphs.Add(stack, string(r))
		}
	}
	w.pendingGlyphs = nil
	w.resolveDependencies()
	w.symbolDependenciesChanged()
}

func (w *GeometryTileWorker) onImagesAvailable(images map[string]glyph.Image, requestID uint64) {
	if requestID != w.imageRequestID {
		return
	}
	if w.images == nil {
		w.images = make(map[string]glyph.Image)
	}
	for name, img := range images {
		w.images[name] = img
	}
	if w.answeredImages == nil {
		w.answeredImages = make(map[string]struct{})
	}
	for name := range w.pendingImages {
		w.answeredImages[name] = struct{}{}
	}
	w.pendingImages = nil
	w.resolveDependencies()
	w.symbolDependenciesChanged()
}

// HasPendingSymbolDependencies reports whether a symbol layout still waits for glyphs or icons.
func (w *GeometryTileWorker) HasPendingSymbolDependencies() bool {
	for _, l := range w.layouts {
		if l.HasPendingDependencies() {
			return true
		}
	}
	return false
}

// guard turns a panic of step into an error for the tile.
func (w *GeometryTileWorker) guard(step string, fn func() error) bool {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s of tile %v panicked: %v", step, w.id, r)
			}
		}()
		return fn()
	}()
	if err != nil {
		if !w.obsolete.Load() {
			w.parent.OnError(err, w.correlationID)
		}
		return false
	}
	return true
}

// redoLayout builds the non-symbol buckets, the feature index and the symbol layouts, asks
// for missing glyphs and icons and places what it can.
func (w *GeometryTileWorker) redoLayout() {
	if w.obsolete.Load() || !w.hasData || !w.hasLayers {
		return
	}
	w.layoutPasses++
	ok := w.guard("layout", func() error {
		w.buckets = make(map[string]bucket.Bucket)
		w.featureIndex = featureindex.New(w.data)
		w.layouts = nil
		if w.data == nil {
			return nil
		}
		zoom := float64(w.id.OverscaledZ)
		for i := range w.layers {
			layer := &w.layers[i]
			if !layer.IsVisible(zoom) {
				continue
			}
			if layer.Type == style.Symbol {
				l, err := symbol.NewLayout(layer, w.data, w.id)
				if err != nil {
					return err
				}
				w.layouts = append(w.layouts, l)
				continue
			}
			w.layoutGeometry(layer)
		}
		return nil
	})
	if !ok {
		return
	}
	w.requestSymbolDependencies()
	w.attemptPlacement()
}

type featureBucket interface {
	bucket.Bucket
	AddFeature(tiledata.GeometryTileFeature)
}

func (w *GeometryTileWorker) layoutGeometry(layer *style.Layer) {
	var b featureBucket
	switch layer.Type {
	case style.Fill:
		b = bucket.NewFillBucket(layer.ID)
	case style.Line:
		b = bucket.NewLineBucket(layer.ID)
	case style.Circle:
		b = bucket.NewCircleBucket(layer.ID)
	default:
		return
	}
	source, ok := w.data.Layer(layer.SourceLayer)
	if !ok {
		return
	}
	for i := 0; i < source.FeatureCount(); i++ {
		f := source.Feature(i)
		if !layer.Matches(f) {
			continue
		}
		b.AddFeature(f)
		w.featureIndex.Insert(f.Geometries(), i, layer.SourceLayer, layer.ID)
	}
	if b.HasData() {
		w.buckets[layer.ID] = b
	}
}

// requestSymbolDependencies asks only for the glyphs and icons no earlier request answered,
// so that a relayout of known symbols places them right away.
func (w *GeometryTileWorker) requestSymbolDependencies() {
	glyphs, images := w.resolveDependencies()
	if len(glyphs) > 0 {
		w.glyphRequestID++
		w.pendingGlyphs = glyphs
		w.parent.GetGlyphs(glyphs, w.glyphRequestID)
	}
	if len(images) > 0 {
		w.imageRequestID++
		w.pendingImages = images
		w.parent.GetImages(images, w.imageRequestID)
	}
}

// resolveDependencies resolves the layouts whose glyphs and icons are all known and returns
// the ones still missing.
func (w *GeometryTileWorker) resolveDependencies() (glyph.Dependencies, map[string]struct{}) {
	glyphs := make(glyph.Dependencies)
	images := make(map[string]struct{})
	for _, l := range w.layouts {
		glyphsKnown := true
		for stack, runes := range l.GlyphDependencies() {
			for r := range runes {
				if !w.glyphKnown(stack, r) {
					glyphs.Add(stack, string(r))
					glyphsKnown = false
				}
			}
		}
		if glyphsKnown {
			l.ResolveGlyphs()
		}
		imagesKnown := true
		for name := range l.ImageDependencies() {
			if !w.imageKnown(name) {
				images[name] = struct{}{}
				imagesKnown = false
			}
		}
		if imagesKnown {
			l.ResolveImages()
		}
	}
	return glyphs, images
}

func (w *GeometryTileWorker) glyphKnown(stack glyph.FontStack, r rune) bool {
	if _, ok := w.glyphs[stack][r]; ok {
		return true
	}
	_, ok := w.answeredGlyphs[stack][r]
	return ok
}

func (w *GeometryTileWorker) imageKnown(name string) bool {
	if _, ok := w.images[name]; ok {
		return true
	}
	_, ok := w.answeredImages[name]
	return ok
}

// attemptPlacement prepares the layouts whose dependencies are in and places them. It sends
// a result even when some layouts still wait, marked as not complete.
func (w *GeometryTileWorker) attemptPlacement() {
	if w.obsolete.Load() || !w.hasData || !w.hasLayers || w.featureIndex == nil {
		return
	}
	w.placementPasses++
	var result Result
	ok := w.guard("placement", func() error {
		complete := true
		for _, l := range w.layouts {
			if l.HasPendingDependencies() {
				complete = false
				continue
			}
			l.Prepare(w.glyphs, w.images)
		}
		placed := symbol.PlaceTile(w.layouts, symbol.TileParams{
			Config:             w.config.Collision,
			TileSize:           w.params.TileSize,
			CellSize:           w.params.CellSize,
			ShowCollisionBoxes: w.config.ShowCollisionBoxes,
		})
		buckets := make(map[string]bucket.Bucket, len(w.buckets)+len(placed.Buckets)+1)
		for id, b := range w.buckets {
			buckets[id] = b
		}
		for id, b := range placed.Buckets {
			if b.HasData() {
				buckets[id] = b
			}
		}
		if placed.CollisionBoxes != nil && placed.CollisionBoxes.HasData() {
			buckets[symbol.CollisionBoxesLayer] = placed.CollisionBoxes
		}
		result = Result{
			Buckets:       buckets,
			FeatureIndex:  w.featureIndex,
			Collision:     placed.Collision,
			Projection:    placed.Projection,
			Complete:      complete,
			CorrelationID: w.correlationID,
		}
		return nil
	})
	if !ok || w.obsolete.Load() {
		return
	}
	w.parent.OnLayout(result)
}
