// Package collision decides which symbol boxes can be shown without overlapping the ones
// placed before them.
package collision

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-spatial/geom"

	"github.com/pdok/mosaic/geomhelp"
)

// DefaultCellSize is the grid cell size in collision space pixels.
const DefaultCellSize = 64

// IndexedSubfeature points back at the feature a box was made for.
type IndexedSubfeature struct {
	Index           int
	SourceLayerName string
	BucketName      string
	SortIndex       int
}

// CollisionBox is a box in pixels relative to its anchor, which is in tile units.
type CollisionBox struct {
	Anchor         geom.Point
	X1, Y1, X2, Y2 float64
}

// CollisionFeature is the set of boxes of one symbol. Key identifies the symbol across
// tiles: boxes with the same key never block each other.
type CollisionFeature struct {
	Boxes      []CollisionBox
	Subfeature IndexedSubfeature
	Key        uint64
}

// Config is the camera state placement is done for.
type Config struct {
	// Angle is the map bearing in radians.
	Angle float64
	// Pitch in radians.
	Pitch                  float64
	CameraToCenterDistance float64
	CameraToTileDistance   float64
}

// Projection maps tile units into collision space: anchor*Scale + Offset.
type Projection struct {
	Scale  float64
	Offset geom.Point
}

// IdentityProjection leaves tile units as they are.
var IdentityProjection = Projection{Scale: 1}

// Entry is what the trees store.
type Entry struct {
	Subfeature IndexedSubfeature
	Key        uint64
}

// Index is the occupancy of one placement pass. Boxes that block others go in tree, boxes of
// symbols that ignore placement go in ignoredTree.
type Index struct {
	config           Config
	rotation         [4]float64
	reverseRotation  [4]float64
	yStretch         float64
	perspectiveRatio float64
	tree             *GridIndex[Entry]
	ignoredTree      *GridIndex[Entry]
}

func NewIndex(config Config, cellSize float64) *Index {
	sin, cos := math.Sincos(config.Angle)
	perspectiveRatio := 1.
	if config.CameraToCenterDistance > 0 && config.CameraToTileDistance > 0 {
		perspectiveRatio = 1 + 0.5*(config.CameraToTileDistance/config.CameraToCenterDistance-1)
	}
	return &Index{
		config:           config,
		rotation:         [4]float64{cos, -sin, sin, cos},
		reverseRotation:  [4]float64{cos, sin, -sin, cos},
		yStretch:         math.Pow(1/math.Cos(config.Pitch), 1.3),
		perspectiveRatio: perspectiveRatio,
		tree:             NewGridIndex[Entry](cellSize),
		ignoredTree:      NewGridIndex[Entry](cellSize),
	}
}

func (ix *Index) Config() Config {
	return ix.config
}

func (ix *Index) YStretch() float64 {
	return ix.yStretch
}

// Len is the number of boxes in both trees.
func (ix *Index) Len() int {
	return ix.tree.Len() + ix.ignoredTree.Len()
}

func rotate(m [4]float64, p geom.Point) geom.Point {
	return geom.Point{m[0]*p[0] + m[2]*p[1], m[1]*p[0] + m[3]*p[1]}
}

// ProjectPoint maps a point in tile units into collision space.
func (ix *Index) ProjectPoint(p geom.Point, proj Projection) geom.Point {
	return rotate(ix.rotation, geom.Point{p[0]*proj.Scale + proj.Offset[0], p[1]*proj.Scale + proj.Offset[1]})
}

// ToTile maps a point in collision space back to tile units.
func (ix *Index) ToTile(p geom.Point, proj Projection) geom.Point {
	r := rotate(ix.reverseRotation, p)
	if proj.Scale == 0 {
		return r
	}
	return geom.Point{(r[0] - proj.Offset[0]) / proj.Scale, (r[1] - proj.Offset[1]) / proj.Scale}
}

// Project computes the box a collision box occupies in collision space.
func (ix *Index) Project(b CollisionBox, proj Projection) Box {
	p := ix.ProjectPoint(b.Anchor, proj)
	r := ix.perspectiveRatio
	return Box{
		X1: p[0] + b.X1*r,
		Y1: p[1] + b.Y1*r*ix.yStretch,
		X2: p[0] + b.X2*r,
		Y2: p[1] + b.Y2*r*ix.yStretch,
	}
}

// PlaceFeature reports whether all boxes of feature fit. A box is blocked by a box of
// another symbol in tree, unless allowOverlap. With avoidEdges every box has to stay
// within edges. Degenerate boxes always fit.
func (ix *Index) PlaceFeature(feature CollisionFeature, proj Projection, allowOverlap, avoidEdges bool, edges Box) bool {
	for _, b := range feature.Boxes {
		box := ix.Project(b, proj)
		if box.Degenerate() {
			continue
		}
		if avoidEdges && !box.Within(edges) {
			return false
		}
		if allowOverlap {
			continue
		}
		blocked := ix.tree.HitTest(box, func(e Entry) bool {
			return e.Key != feature.Key
		})
		if blocked {
			return false
		}
	}
	return true
}

// InsertFeature records the boxes of a placed feature. Degenerate boxes are skipped.
func (ix *Index) InsertFeature(feature CollisionFeature, proj Projection, ignorePlacement bool) {
	tree := ix.tree
	if ignorePlacement {
		tree = ix.ignoredTree
	}
	entry := Entry{Subfeature: feature.Subfeature, Key: feature.Key}
	for _, b := range feature.Boxes {
		tree.Insert(ix.Project(b, proj), entry)
	}
}

// QueryRenderedSymbols returns the symbols with a box intersecting box (in collision space),
// one per feature, ordered by sort index.
func (ix *Index) QueryRenderedSymbols(box Box) []IndexedSubfeature {
	seen := make(map[IndexedSubfeature]struct{})
	var result []IndexedSubfeature
	collect := func(e Entry) bool {
		if _, ok := seen[e.Subfeature]; !ok {
			seen[e.Subfeature] = struct{}{}
			result = append(result, e.Subfeature)
		}
		return false
	}
	ix.tree.HitTest(box, collect)
	ix.ignoredTree.HitTest(box, collect)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SortIndex < result[j].SortIndex
	})
	return result
}

// Placed returns the boxes in tree with their entries, in insertion order.
func (ix *Index) Placed() ([]Box, []Entry) {
	var boxes []Box
	var entries []Entry
	ix.tree.All(func(b Box, e Entry) bool {
		boxes = append(boxes, b)
		entries = append(entries, e)
		return true
	})
	return boxes, entries
}

// DebugWKT writes every box as a WKT polygon, one per line. Ignored boxes are prefixed with '#'.
// Lines are truncated at maxLen characters, 0 means no limit.
func (ix *Index) DebugWKT(w io.Writer, maxLen uint) error {
	var err error
	dump := func(prefix string) func(Box, Entry) bool {
		return func(b Box, e Entry) bool {
			_, err = fmt.Fprintf(w, "%s%s %s/%d\n", prefix, geomhelp.WktMustEncode(b.Polygon(), maxLen), e.Subfeature.BucketName, e.Subfeature.Index)
			return err == nil
		}
	}
	ix.tree.All(dump(""))
	if err != nil {
		return err
	}
	ix.ignoredTree.All(dump("#"))
	return err
}
