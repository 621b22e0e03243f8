package collision

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-spatial/geom"

	"github.com/pdok/mosaic/mathhelp"
	"github.com/pdok/mosaic/morton"
)

const (
	// cells are shifted so that negative collision space coordinates get a valid morton code
	cellOffset = 1 << 31
	// entries spanning more cells than this are kept in a separate list that every query scans
	maxCellsPerEntry = 256
)

// Box is an axis aligned box. Boxes are closed: touching boxes intersect.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Degenerate boxes have no area or contain NaN. They never collide.
func (b Box) Degenerate() bool {
	if math.IsNaN(b.X1) || math.IsNaN(b.Y1) || math.IsNaN(b.X2) || math.IsNaN(b.Y2) {
		return true
	}
	return !(b.X2 > b.X1) || !(b.Y2 > b.Y1)
}

func (b Box) Intersects(o Box) bool {
	return b.X1 <= o.X2 && o.X1 <= b.X2 && b.Y1 <= o.Y2 && o.Y1 <= b.Y2
}

// Within reports whether b lies inside o, edges included.
func (b Box) Within(o Box) bool {
	return b.X1 >= o.X1 && b.Y1 >= o.Y1 && b.X2 <= o.X2 && b.Y2 <= o.Y2
}

func (b Box) Extent() geom.Extent {
	return geom.Extent{b.X1, b.Y1, b.X2, b.Y2}
}

func (b Box) Polygon() geom.Polygon {
	return geom.Polygon{{{b.X1, b.Y1}, {b.X2, b.Y1}, {b.X2, b.Y2}, {b.X1, b.Y2}}}
}

// BoxFromExtent converts a go-spatial extent.
func BoxFromExtent(e geom.Extent) Box {
	return Box{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()}
}

type gridEntry[T any] struct {
	box   Box
	value T
}

// GridIndex is a uniform grid over boxes. Cells are addressed by the morton code of their
// column and row. Inserts are append only and queries never mutate the index.
type GridIndex[T any] struct {
	cellSize float64
	cells    map[morton.Z][]int
	large    []int
	entries  []gridEntry[T]
}

func NewGridIndex[T any](cellSize float64) *GridIndex[T] {
	if !(cellSize > 0) {
		panic(fmt.Errorf("grid cell size should be positive, got %v", cellSize))
	}
	return &GridIndex[T]{
		cellSize: cellSize,
		cells:    make(map[morton.Z][]int),
	}
}

func (g *GridIndex[T]) Len() int {
	return len(g.entries)
}

// Insert adds value under box. Degenerate boxes are rejected.
func (g *GridIndex[T]) Insert(box Box, value T) bool {
	if box.Degenerate() {
		return false
	}
	i := len(g.entries)
	g.entries = append(g.entries, gridEntry[T]{box: box, value: value})
	cells := g.cellRange(box)
	if cells.Count() > maxCellsPerEntry {
		g.large = append(g.large, i)
		return true
	}
	cells.Each(func(z morton.Z) bool {
		g.cells[z] = append(g.cells[z], i)
		return true
	})
	return true
}

// Query returns the values whose box intersects box, in insertion order.
func (g *GridIndex[T]) Query(box Box) []T {
	var result []T
	g.visit(box, func(e gridEntry[T]) bool {
		result = append(result, e.value)
		return true
	})
	return result
}

// HitTest reports whether an entry intersecting box satisfies predicate. It stops at the first hit.
func (g *GridIndex[T]) HitTest(box Box, predicate func(T) bool) bool {
	hit := false
	g.visit(box, func(e gridEntry[T]) bool {
		if predicate == nil || predicate(e.value) {
			hit = true
			return false
		}
		return true
	})
	return hit
}

// All iterates over every entry in insertion order.
func (g *GridIndex[T]) All(fn func(Box, T) bool) {
	for _, e := range g.entries {
		if !fn(e.box, e.value) {
			return
		}
	}
}

func (g *GridIndex[T]) visit(box Box, fn func(gridEntry[T]) bool) {
	if len(g.entries) == 0 || math.IsNaN(box.X1) || math.IsNaN(box.Y1) || math.IsNaN(box.X2) || math.IsNaN(box.Y2) {
		return
	}
	var candidates []int
	cells := g.cellRange(box)
	if cells.Count() > float64(len(g.cells)) {
		// cheaper to scan all entries than all cells
		candidates = make([]int, len(g.entries))
		for i := range candidates {
			candidates[i] = i
		}
	} else {
		seen := make(map[int]struct{})
		cells.Each(func(z morton.Z) bool {
			for _, i := range g.cells[z] {
				if _, ok := seen[i]; !ok {
					seen[i] = struct{}{}
					candidates = append(candidates, i)
				}
			}
			return true
		})
		candidates = append(candidates, g.large...)
		slices.Sort(candidates)
	}
	for _, i := range candidates {
		e := g.entries[i]
		if e.box.Intersects(box) && !fn(e) {
			return
		}
	}
}

func (g *GridIndex[T]) cellRange(box Box) morton.Range {
	return morton.Range{X1: g.cell(box.X1), Y1: g.cell(box.Y1), X2: g.cell(box.X2), Y2: g.cell(box.Y2)}
}

func (g *GridIndex[T]) cell(v float64) uint32 {
	c := math.Floor(v/g.cellSize) + cellOffset
	return uint32(mathhelp.Clamp(c, 0, math.MaxUint32))
}
