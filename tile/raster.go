package tile

import (
	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/worker"
)

var _ Tile = (*RasterTile)(nil)

// RasterTile keeps the image bytes of a tile as they are, one bucket per raster layer.
type RasterTile struct {
	base

	actor    *actor.Actor[RasterTile]
	data     []byte
	layerIDs []string
	buckets  map[string]bucket.Bucket
}

func NewRasterTile(id tileid.OverscaledTileID, mainLoop actor.Scheduler, observer Observer) *RasterTile {
	t := &RasterTile{}
	t.init(id, observer)
	t.actor = actor.New(mainLoop, func(actor.Ref[RasterTile]) *RasterTile { return t })
	return t
}

func (t *RasterTile) LoadFrom(source filesource.FileSource, resource filesource.Resource) {
	self := t.actor.Self()
	t.loader = NewLoader(t.id, source, resource, func(resp filesource.Response) {
		self.Invoke(func(t *RasterTile) { t.onResponse(resp) })
	})
	t.SetNecessity(t.necessity)
}

func (t *RasterTile) onResponse(resp filesource.Response) {
	if !t.response(resp, nil) {
		return
	}
	t.SetData(resp.Data)
}

// SetData replaces the image. Empty data makes the tile empty.
func (t *RasterTile) SetData(data []byte) {
	if t.State() == Obsolete {
		return
	}
	t.data = data
	t.rebuild()
	t.renderable = true
	t.state.Store(Parsed)
	t.changed(nil)
}

// SetLayers keeps the ids of the raster layers, the tile needs no layout.
func (t *RasterTile) SetLayers(layers []style.Layer) {
	t.layerIDs = t.layerIDs[:0]
	for _, l := range layers {
		if l.Type == style.Raster {
			t.layerIDs = append(t.layerIDs, l.ID)
		}
	}
	if t.State() == Parsed {
		t.rebuild()
	}
}

func (t *RasterTile) rebuild() {
	t.buckets = make(map[string]bucket.Bucket, len(t.layerIDs))
	if len(t.data) == 0 {
		return
	}
	for _, id := range t.layerIDs {
		t.buckets[id] = bucket.NewRasterBucket(id, t.data)
	}
}

func (*RasterTile) SetPlacementConfig(worker.PlacementConfig) {}

func (t *RasterTile) IsComplete() bool {
	return t.IsLoaded()
}

func (t *RasterTile) Buckets() map[string]bucket.Bucket {
	return t.buckets
}

func (t *RasterTile) Bucket(layerID string) (bucket.Bucket, bool) {
	b, ok := t.buckets[layerID]
	return b, ok
}

func (*RasterTile) FeatureIndex() *featureindex.FeatureIndex {
	return nil
}

func (*RasterTile) CollisionIndex() *collision.Index {
	return nil
}

func (*RasterTile) QueryRenderedFeatures(featureindex.Query) []featureindex.QueriedFeature {
	return nil
}

func (t *RasterTile) Close() {
	if t.close() {
		t.actor.Abandon()
	}
}
