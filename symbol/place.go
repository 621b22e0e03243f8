package symbol

import (
	"sort"

	"github.com/go-spatial/geom"
	"golang.org/x/exp/maps"

	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tiledata"
)

// CollisionBoxesLayer is the layer id of the debug bucket with the outlines of all collision boxes.
const CollisionBoxesLayer = "collision-boxes"

// TileParams are the inputs of a placement within one tile.
type TileParams struct {
	Config   collision.Config
	TileSize float64
	CellSize float64
	// ShowCollisionBoxes adds a line bucket with the outline of every box.
	ShowCollisionBoxes bool
}

// TileResult is the outcome of PlaceTile.
type TileResult struct {
	Buckets map[string]*bucket.SymbolBucket
	// Collision holds the boxes placed in this tile, in tile pixels.
	Collision  *collision.Index
	Projection collision.Projection
	// CollisionBoxes is nil unless ShowCollisionBoxes was set.
	CollisionBoxes *bucket.LineBucket
}

// TileProjection maps tile units to pixels of a tile of tileSize.
func TileProjection(tileSize float64) collision.Projection {
	return collision.Projection{Scale: tileSize / tiledata.Extent}
}

// PlaceTile places the prepared layouts of one tile in layer order and feature order. Layouts
// that are not prepared yet get an empty bucket.
func PlaceTile(layouts []*Layout, params TileParams) TileResult {
	cellSize := params.CellSize
	if cellSize <= 0 {
		cellSize = collision.DefaultCellSize
	}
	result := TileResult{
		Buckets:    make(map[string]*bucket.SymbolBucket, len(layouts)),
		Collision:  collision.NewIndex(params.Config, cellSize),
		Projection: TileProjection(params.TileSize),
	}
	edges := tileEdges(result.Collision, result.Projection)
	for _, l := range layouts {
		b := bucket.NewSymbolBucket(l.LayerID(), l.sourceLayer, l.Instances())
		for i := range b.Instances {
			b.SetPlaced(i, placeInstance(result.Collision, &b.Instances[i], l.layer.Symbol, result.Projection, edges))
		}
		result.Buckets[l.LayerID()] = b
	}
	if params.ShowCollisionBoxes {
		result.CollisionBoxes = collisionBoxes(result.Buckets, result.Projection)
	}
	return result
}

// placeInstance places the text and icon of inst, honouring the overlap and optional flags,
// and records the placed boxes.
func placeInstance(ix *collision.Index, inst *bucket.SymbolInstance, sl *style.SymbolLayout, proj collision.Projection, edges collision.Box) bucket.Placed {
	hasText, hasIcon := inst.HasText(), inst.HasIcon()
	placeText := hasText && ix.PlaceFeature(inst.TextFeature, proj, sl.TextAllowOverlap, sl.SymbolAvoidEdges, edges)
	placeIcon := hasIcon && ix.PlaceFeature(inst.IconFeature, proj, sl.IconAllowOverlap, sl.SymbolAvoidEdges, edges)

	iconWithoutText := !hasText || sl.TextOptional
	textWithoutIcon := !hasIcon || sl.IconOptional
	switch {
	case !iconWithoutText && !textWithoutIcon:
		placeText = placeText && placeIcon
		placeIcon = placeText
	case !textWithoutIcon:
		placeText = placeText && placeIcon
	case !iconWithoutText:
		placeIcon = placeIcon && placeText
	}

	if placeText {
		ix.InsertFeature(inst.TextFeature, proj, sl.TextIgnorePlacement)
	}
	if placeIcon {
		ix.InsertFeature(inst.IconFeature, proj, sl.IconIgnorePlacement)
	}
	return bucket.Placed{Text: placeText, Icon: placeIcon}
}

// tileEdges is the bounding box of the tile in collision space.
func tileEdges(ix *collision.Index, proj collision.Projection) collision.Box {
	corners := [4]geom.Point{{0, 0}, {tiledata.Extent, 0}, {tiledata.Extent, tiledata.Extent}, {0, tiledata.Extent}}
	e := geom.NewExtent(ix.ProjectPoint(corners[0], proj))
	for _, c := range corners[1:] {
		e.AddPoints(ix.ProjectPoint(c, proj))
	}
	return collision.BoxFromExtent(*e)
}

// collisionBoxes outlines every box in tile units.
func collisionBoxes(buckets map[string]*bucket.SymbolBucket, proj collision.Projection) *bucket.LineBucket {
	builder := tiledata.NewBuilder()
	outline := func(f collision.CollisionFeature) {
		for _, b := range f.Boxes {
			ax, ay := b.Anchor[0], b.Anchor[1]
			x1, y1 := ax+b.X1/proj.Scale, ay+b.Y1/proj.Scale
			x2, y2 := ax+b.X2/proj.Scale, ay+b.Y2/proj.Scale
			builder.AddFeature(CollisionBoxesLayer, tiledata.Polygon, nil, -1, tiledata.GeometryCollection{
				{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}},
			})
		}
	}
	ids := maps.Keys(buckets)
	sort.Strings(ids)
	for _, id := range ids {
		b := buckets[id]
		for i := range b.Instances {
			outline(b.Instances[i].TextFeature)
			outline(b.Instances[i].IconFeature)
		}
	}
	lines := bucket.NewLineBucket(CollisionBoxesLayer)
	data := builder.Build()
	if layer, ok := data.Layer(CollisionBoxesLayer); ok {
		for i := 0; i < layer.FeatureCount(); i++ {
			lines.AddFeature(layer.Feature(i))
		}
	}
	return lines
}
