package bucket

import (
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/gfx"
)

// SymbolInstance is one label and/or icon candidate.
type SymbolInstance struct {
	// Anchor in tile units.
	Anchor [2]float64
	Text   string
	Icon   string
	// TextFeature and IconFeature carry the collision boxes, empty when the part is absent.
	TextFeature collision.CollisionFeature
	IconFeature collision.CollisionFeature
	// Key identifies the symbol across tiles and zoom levels.
	Key uint64
	// CrossTileID is assigned by the global placement, 0 until then.
	CrossTileID  uint32
	FeatureIndex int
	SortIndex    int
}

func (s *SymbolInstance) HasText() bool {
	return len(s.TextFeature.Boxes) > 0
}

func (s *SymbolInstance) HasIcon() bool {
	return len(s.IconFeature.Boxes) > 0
}

// Placed is the outcome of placement for one instance.
type Placed struct {
	Text, Icon bool
}

// Opacity is the faded visibility of one instance.
type Opacity struct {
	Text, Icon float32
}

// SymbolBucket holds the symbols of one layer in a tile.
type SymbolBucket struct {
	layerID   string
	Instances []SymbolInstance
	Placed    []Placed
	Opacities []Opacity
	// SourceLayer the instances were made from.
	SourceLayer string
}

func NewSymbolBucket(layerID, sourceLayer string, instances []SymbolInstance) *SymbolBucket {
	return &SymbolBucket{
		layerID:     layerID,
		SourceLayer: sourceLayer,
		Instances:   instances,
		Placed:      make([]Placed, len(instances)),
		Opacities:   make([]Opacity, len(instances)),
	}
}

// SetPlaced records the placement outcome and shows placed symbols right away. Global
// placement overrides the opacities later through SetOpacity.
func (b *SymbolBucket) SetPlaced(i int, placed Placed) {
	b.Placed[i] = placed
	b.Opacities[i] = Opacity{Text: boolOpacity(placed.Text), Icon: boolOpacity(placed.Icon)}
}

func (b *SymbolBucket) SetOpacity(i int, o Opacity) {
	b.Opacities[i] = o
}

func boolOpacity(visible bool) float32 {
	if visible {
		return 1
	}
	return 0
}

func (b *SymbolBucket) Upload(ctx gfx.Context) error {
	quads := make([]gfx.SymbolQuad, 0, len(b.Instances))
	for i := range b.Instances {
		inst := &b.Instances[i]
		anchor := [2]float32{float32(inst.Anchor[0]), float32(inst.Anchor[1])}
		add := func(f collision.CollisionFeature, opacity float32, icon bool) {
			for _, box := range f.Boxes {
				quads = append(quads, gfx.SymbolQuad{
					Anchor: anchor,
					X1:     float32(box.X1), Y1: float32(box.Y1), X2: float32(box.X2), Y2: float32(box.Y2),
					Opacity: opacity,
					Icon:    icon,
				})
			}
		}
		add(inst.IconFeature, b.Opacities[i].Icon, true)
		add(inst.TextFeature, b.Opacities[i].Text, false)
	}
	if len(quads) == 0 {
		return nil
	}
	return ctx.UploadSymbols(b.layerID, quads)
}

func (b *SymbolBucket) HasData() bool {
	return len(b.Instances) > 0
}

func (b *SymbolBucket) LayerIDs() []string {
	return []string{b.layerID}
}
