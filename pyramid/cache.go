package pyramid

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/mapslicehelp"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tileid"
)

// Cache keeps tiles that left the pyramid but still hold data, least recently added first.
// Tiles that fall out of it are closed.
type Cache struct {
	size    int
	entries *orderedmap.OrderedMap[tileid.OverscaledTileID, tile.Tile]
}

func NewCache(size int) *Cache {
	return &Cache{size: size, entries: orderedmap.New[tileid.OverscaledTileID, tile.Tile]()}
}

// Add stores t as the most recent entry. A tile with the same id is closed.
func (c *Cache) Add(t tile.Tile) {
	if old, ok := c.entries.Delete(t.ID()); ok && old != t {
		old.Close()
	}
	c.entries.Set(t.ID(), t)
	c.evict()
}

// Pop removes and returns the tile with id.
func (c *Cache) Pop(id tileid.OverscaledTileID) (tile.Tile, bool) {
	t, ok := c.entries.Delete(id)
	if ok {
		logging.L().Debug("promoting tile from cache", zap.Stringer("tile", id))
	}
	return t, ok
}

func (c *Cache) Has(id tileid.OverscaledTileID) bool {
	_, ok := c.entries.Get(id)
	return ok
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

// IDs lists the cached tiles, oldest first.
func (c *Cache) IDs() []tileid.OverscaledTileID {
	return mapslicehelp.OrderedMapKeys(c.entries)
}

func (c *Cache) SetSize(size int) {
	c.size = max(size, 0)
	c.evict()
}

// Clear closes every cached tile.
func (c *Cache) Clear() {
	for _, t := range mapslicehelp.OrderedMapValues(c.entries) {
		t.Close()
	}
	c.entries = orderedmap.New[tileid.OverscaledTileID, tile.Tile]()
}

func (c *Cache) evict() {
	for c.entries.Len() > c.size {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
		logging.L().Debug("evicting tile from cache", zap.Stringer("tile", oldest.Key))
		oldest.Value.Close()
	}
}
