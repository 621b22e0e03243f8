package symbol

import (
	"math"
	"sort"

	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/tileid"
)

// matchTolerance is how far apart, in tiles of the shallower zoom, two anchors may be
// and still be the same symbol.
const matchTolerance = 1. / 128

// Tile is a rendered tile as the global placement sees it.
type Tile struct {
	ID tileid.OverscaledTileID
	// Projection maps tile units of this tile into the shared collision space.
	Projection collision.Projection
	Buckets    map[string]*bucket.SymbolBucket
}

type indexedSymbol struct {
	world       [2]float64
	crossTileID uint32
}

type tileIndex struct {
	id      tileid.OverscaledTileID
	bucket  *bucket.SymbolBucket
	symbols map[uint64][]indexedSymbol
}

type layerIndex struct {
	tiles map[tileid.OverscaledTileID]*tileIndex
	// used holds the cross tile ids in use per overscaled zoom, an id appears at most
	// once per zoom level
	used map[uint8]map[uint32]struct{}
}

// CrossTileIndex gives the same symbol the same id in every tile it appears in, across zoom
// levels and re-layouts, so placement state survives tile changes. It is used from the main
// goroutine only.
type CrossTileIndex struct {
	maxID  uint32
	layers map[string]*layerIndex
}

func NewCrossTileIndex() *CrossTileIndex {
	return &CrossTileIndex{layers: make(map[string]*layerIndex)}
}

// AddLayer indexes the buckets of layerID in tiles and drops tiles that are gone. It reports
// whether anything changed. Instances of new buckets take over the id of a matching symbol
// in the previous bucket of the same tile or in an indexed parent or child tile.
func (c *CrossTileIndex) AddLayer(layerID string, tiles []Tile) bool {
	li, ok := c.layers[layerID]
	if !ok {
		li = &layerIndex{
			tiles: make(map[tileid.OverscaledTileID]*tileIndex),
			used:  make(map[uint8]map[uint32]struct{}),
		}
		c.layers[layerID] = li
	}

	current := make(map[tileid.OverscaledTileID]*bucket.SymbolBucket, len(tiles))
	var added []Tile
	for _, t := range tiles {
		b, ok := t.Buckets[layerID]
		if !ok {
			continue
		}
		current[t.ID] = b
		if existing, ok := li.tiles[t.ID]; ok && existing.bucket == b {
			continue
		}
		added = append(added, t)
	}
	sort.Slice(added, func(i, j int) bool {
		if added[i].ID.OverscaledZ != added[j].ID.OverscaledZ {
			return added[i].ID.OverscaledZ < added[j].ID.OverscaledZ
		}
		return added[i].ID.Less(added[j].ID)
	})

	for _, t := range added {
		c.addBucket(li, t.ID, current[t.ID])
	}

	changed := len(added) > 0
	for id, ti := range li.tiles {
		if b, ok := current[id]; !ok || b != ti.bucket {
			li.release(ti)
			delete(li.tiles, id)
			changed = true
		}
	}
	return changed
}

// PruneLayers forgets every layer not in keep.
func (c *CrossTileIndex) PruneLayers(keep map[string]struct{}) {
	for id := range c.layers {
		if _, ok := keep[id]; !ok {
			delete(c.layers, id)
		}
	}
}

func (c *CrossTileIndex) addBucket(li *layerIndex, id tileid.OverscaledTileID, b *bucket.SymbolBucket) {
	used := li.usedAt(id.OverscaledZ)
	previous, hasPrevious := li.tiles[id]
	if hasPrevious {
		li.release(previous)
	}
	for i := range b.Instances {
		b.Instances[i].CrossTileID = 0
	}

	var related []*tileIndex
	if hasPrevious {
		related = append(related, previous)
	}
	others := make([]*tileIndex, 0, len(li.tiles))
	for otherID, other := range li.tiles {
		if otherID == id {
			continue
		}
		if otherID.IsChildOf(id) || id.IsChildOf(otherID) {
			others = append(others, other)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].id.Less(others[j].id) })
	related = append(related, others...)

	for _, other := range related {
		tolerance := matchTolerance / math.Exp2(float64(min(id.Canonical.Z, other.id.Canonical.Z)))
		for i := range b.Instances {
			inst := &b.Instances[i]
			if inst.CrossTileID != 0 {
				continue
			}
			world := WorldAnchor(id.Canonical, inst.Anchor)
			for _, s := range other.symbols[inst.Key] {
				if _, taken := used[s.crossTileID]; taken {
					continue
				}
				if math.Abs(s.world[0]-world[0]) > tolerance || math.Abs(s.world[1]-world[1]) > tolerance {
					continue
				}
				inst.CrossTileID = s.crossTileID
				used[s.crossTileID] = struct{}{}
				break
			}
		}
	}
	for i := range b.Instances {
		if b.Instances[i].CrossTileID == 0 {
			c.maxID++
			b.Instances[i].CrossTileID = c.maxID
			used[c.maxID] = struct{}{}
		}
	}
	li.tiles[id] = newTileIndex(id, b)
}

func newTileIndex(id tileid.OverscaledTileID, b *bucket.SymbolBucket) *tileIndex {
	ti := &tileIndex{id: id, bucket: b, symbols: make(map[uint64][]indexedSymbol)}
	for _, inst := range b.Instances {
		ti.symbols[inst.Key] = append(ti.symbols[inst.Key], indexedSymbol{
			world:       WorldAnchor(id.Canonical, inst.Anchor),
			crossTileID: inst.CrossTileID,
		})
	}
	return ti
}

func (li *layerIndex) usedAt(z uint8) map[uint32]struct{} {
	used, ok := li.used[z]
	if !ok {
		used = make(map[uint32]struct{})
		li.used[z] = used
	}
	return used
}

func (li *layerIndex) release(ti *tileIndex) {
	used := li.usedAt(ti.id.OverscaledZ)
	for _, symbols := range ti.symbols {
		for _, s := range symbols {
			delete(used, s.crossTileID)
		}
	}
}
