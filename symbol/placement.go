package symbol

import (
	"sort"
	"time"

	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/style"
)

// PlacementParams configure a placement pass.
type PlacementParams struct {
	Config       collision.Config
	CellSize     float64
	FadeDuration time.Duration
}

type fade struct {
	// start is the opacity at commit time
	start  float64
	placed bool
}

func (f fade) at(elapsed, duration time.Duration) float64 {
	target := 0.
	if f.placed {
		target = 1
	}
	if duration <= 0 {
		return target
	}
	step := elapsed.Seconds() / duration.Seconds()
	if f.placed {
		return min(1, f.start+step)
	}
	return max(0, f.start-step)
}

type jointFade struct {
	text, icon fade
}

// Placement is one placement pass over all rendered tiles, in one shared collision space.
// Its opacities fade from those of the previous pass, keyed by cross tile id.
type Placement struct {
	params     PlacementParams
	collision  *collision.Index
	placements map[uint32]bucket.Placed
	fades      map[uint32]jointFade
	prev       *Placement
	commitTime time.Time
	committed  bool
}

// NewPlacement starts a pass. prev may be nil for the first pass, whose symbols show
// without fading in.
func NewPlacement(params PlacementParams, prev *Placement) *Placement {
	cellSize := params.CellSize
	if cellSize <= 0 {
		cellSize = collision.DefaultCellSize
	}
	return &Placement{
		params:     params,
		collision:  collision.NewIndex(params.Config, cellSize),
		placements: make(map[uint32]bucket.Placed),
		fades:      make(map[uint32]jointFade),
		prev:       prev,
	}
}

func (p *Placement) Collision() *collision.Index {
	return p.collision
}

// PlaceLayer places the symbols of layer in tile order and feature order. A symbol shown
// by several tiles is placed once, by the first.
func (p *Placement) PlaceLayer(layer *style.Layer, tiles []Tile) {
	if layer.Symbol == nil {
		return
	}
	sorted := make([]Tile, 0, len(tiles))
	for _, t := range tiles {
		if _, ok := t.Buckets[layer.ID]; ok {
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	for _, t := range sorted {
		b := t.Buckets[layer.ID]
		edges := tileEdges(p.collision, t.Projection)
		for i := range b.Instances {
			inst := &b.Instances[i]
			if inst.CrossTileID != 0 {
				if _, seen := p.placements[inst.CrossTileID]; seen {
					continue
				}
			}
			placed := placeInstance(p.collision, inst, layer.Symbol, t.Projection, edges)
			if inst.CrossTileID != 0 {
				p.placements[inst.CrossTileID] = placed
			}
		}
	}
}

// Commit fixes the fades at now. Symbols of the previous pass keep their current opacity as
// starting point; symbols that are gone fade out until invisible.
func (p *Placement) Commit(now time.Time) {
	p.commitTime = now
	p.committed = true
	prev := p.prev
	p.prev = nil
	for id, placed := range p.placements {
		f := jointFade{
			text: fade{start: boolFloat(placed.Text), placed: placed.Text},
			icon: fade{start: boolFloat(placed.Icon), placed: placed.Icon},
		}
		if prev != nil {
			text, icon := 0., 0.
			if _, ok := prev.fades[id]; ok {
				text, icon = prev.opacity(id, now)
			}
			f.text.start, f.icon.start = text, icon
		}
		p.fades[id] = f
	}
	if prev == nil {
		return
	}
	for id := range prev.fades {
		if _, ok := p.placements[id]; ok {
			continue
		}
		text, icon := prev.opacity(id, now)
		if text > 0 || icon > 0 {
			p.fades[id] = jointFade{text: fade{start: text}, icon: fade{start: icon}}
		}
	}
}

func (p *Placement) opacity(id uint32, now time.Time) (text, icon float64) {
	f, ok := p.fades[id]
	if !ok {
		return 0, 0
	}
	elapsed := now.Sub(p.commitTime)
	return f.text.at(elapsed, p.params.FadeDuration), f.icon.at(elapsed, p.params.FadeDuration)
}

// Apply writes the opacities at now into the symbol buckets of tiles. Instances without a
// cross tile id keep what the tile placement gave them.
func (p *Placement) Apply(tiles []Tile, now time.Time) {
	if !p.committed {
		return
	}
	for _, t := range tiles {
		for _, b := range t.Buckets {
			for i := range b.Instances {
				id := b.Instances[i].CrossTileID
				f, ok := p.fades[id]
				if id == 0 || !ok {
					continue
				}
				text, icon := p.opacity(id, now)
				b.Placed[i] = bucket.Placed{Text: f.text.placed, Icon: f.icon.placed}
				b.SetOpacity(i, bucket.Opacity{Text: float32(text), Icon: float32(icon)})
			}
		}
	}
}

// StillFading reports whether any opacity is still changing at now.
func (p *Placement) StillFading(now time.Time) bool {
	for id, f := range p.fades {
		text, icon := p.opacity(id, now)
		if text != boolFloat(f.text.placed) || icon != boolFloat(f.icon.placed) {
			return true
		}
	}
	return false
}

// Placed returns the outcome for a cross tile id.
func (p *Placement) Placed(crossTileID uint32) (bucket.Placed, bool) {
	placed, ok := p.placements[crossTileID]
	return placed, ok
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Place runs a full pass: it indexes the symbol buckets of every symbol layer, places the
// layers in order and commits at now.
func Place(prev *Placement, index *CrossTileIndex, layers []style.Layer, tiles []Tile, params PlacementParams, now time.Time) *Placement {
	p := NewPlacement(params, prev)
	keep := make(map[string]struct{})
	for i := range layers {
		layer := &layers[i]
		if layer.Type != style.Symbol {
			continue
		}
		keep[layer.ID] = struct{}{}
		index.AddLayer(layer.ID, tiles)
		p.PlaceLayer(layer, tiles)
	}
	index.PruneLayers(keep)
	p.Commit(now)
	return p
}
