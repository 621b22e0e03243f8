package source

import (
	"time"

	"github.com/pdok/mosaic/symbol"
	"github.com/pdok/mosaic/tile"
)

// Placer runs the symbol placement over the render tiles of all sources, so that labels of
// different tiles and sources do not overlap. Fades carry over from one pass to the next.
type Placer struct {
	index     *symbol.CrossTileIndex
	placement *symbol.Placement
	params    symbol.PlacementParams
	tiles     []symbol.Tile
}

func NewPlacer(cellSize float64, fadeDuration time.Duration) *Placer {
	return &Placer{
		index:  symbol.NewCrossTileIndex(),
		params: symbol.PlacementParams{CellSize: cellSize, FadeDuration: fadeDuration},
	}
}

// Place runs a new pass for the frame in params and writes the opacities into the buckets.
func (p *Placer) Place(sources []RenderSource, params UpdateParameters) *symbol.Placement {
	p.tiles = p.tiles[:0]
	for _, src := range sources {
		for _, rt := range src.RenderTiles() {
			gt, ok := rt.Tile.(*tile.GeometryTile)
			if !ok {
				continue
			}
			buckets := gt.SymbolBuckets()
			if len(buckets) == 0 {
				continue
			}
			p.tiles = append(p.tiles, symbol.Tile{
				ID:         gt.ID(),
				Projection: params.Transform.CollisionProjection(rt.ID),
				Buckets:    buckets,
			})
		}
	}
	pp := p.params
	pp.Config = params.Transform.CollisionConfig()
	p.placement = symbol.Place(p.placement, p.index, params.Layers, p.tiles, pp, params.Now)
	p.placement.Apply(p.tiles, params.Now)
	return p.placement
}

// Fade updates the opacities at now without placing again. It reports whether anything is
// still fading.
func (p *Placer) Fade(now time.Time) bool {
	if p.placement == nil {
		return false
	}
	p.placement.Apply(p.tiles, now)
	return p.placement.StillFading(now)
}

func (p *Placer) Placement() *symbol.Placement {
	return p.placement
}
