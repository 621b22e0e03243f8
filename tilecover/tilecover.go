// Package tilecover computes which tiles cover a viewport, a geometry or a bounding box.
package tilecover

import (
	"math"
	"slices"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/planar"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	orbcover "github.com/paulmach/orb/maptile/tilecover"

	"github.com/pdok/mosaic/geomhelp"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/transform"
)

// Viewport returns the tiles at zoom z that intersect the (rotated, pitched) viewport of s,
// nearest to the center first. Tiles in world copies east or west of the primary world get
// a wrap.
func Viewport(s transform.State, z uint8) []tileid.UnwrappedTileID {
	size := s.TileWorldSize(0)
	var quad [4][2]float64
	for i, c := range s.ViewportCorners() {
		quad[i] = [2]float64{c[0] / size, c[1] / size}
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, c := range quad {
		minX, maxX = math.Min(minX, c[0]), math.Max(maxX, c[0])
	}

	var result []tileid.UnwrappedTileID
	for wrap := int64(math.Floor(minX)); wrap <= int64(math.Floor(maxX)); wrap++ {
		result = descend(result, quad, tileid.UnwrappedTileID{Wrap: int16(wrap)}, z)
	}

	center := s.CenterPoint()
	cx, cy := center[0]/size, center[1]/size
	distance := func(id tileid.UnwrappedTileID) float64 {
		dim := float64(uint64(1) << id.Canonical.Z)
		dx := (float64(id.WorldX())+0.5)/dim - cx
		dy := (float64(id.Canonical.Y)+0.5)/dim - cy
		return dx*dx + dy*dy
	}
	slices.SortStableFunc(result, func(a, b tileid.UnwrappedTileID) int {
		da, db := distance(a), distance(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return result
}

// descend collects the descendants of id at zoom z that intersect quad, which is in units
// of world widths.
func descend(result []tileid.UnwrappedTileID, quad [4][2]float64, id tileid.UnwrappedTileID, z uint8) []tileid.UnwrappedTileID {
	if !intersects(quad, box(id)) {
		return result
	}
	if id.Canonical.Z == z {
		return append(result, id)
	}
	for _, child := range id.Children() {
		result = descend(result, quad, child, z)
	}
	return result
}

// inset keeps tiles that only touch the viewport out of the cover.
const inset = 1e-9

// box is the extent of id in units of world widths, shrunk by inset.
func box(id tileid.UnwrappedTileID) geom.Extent {
	dim := float64(uint64(1) << id.Canonical.Z)
	x := float64(id.WorldX()) / dim
	y := float64(id.Canonical.Y) / dim
	return geom.Extent{x + inset, y + inset, x + 1/dim - inset, y + 1/dim - inset}
}

// intersects reports whether the convex quad and the box overlap: a corner of one lies in
// the other or two edges cross.
func intersects(quad [4][2]float64, b geom.Extent) bool {
	ring := quad[:]
	for _, c := range ring {
		if b.ContainsPoint(c) {
			return true
		}
	}
	corners := [4][2]float64{{b.MinX(), b.MinY()}, {b.MaxX(), b.MinY()}, {b.MaxX(), b.MaxY()}, {b.MinX(), b.MaxY()}}
	for _, c := range corners {
		if geomhelp.RingContains(ring, c) {
			return true
		}
	}
	for i := range quad {
		q := geom.Line{quad[i], quad[(i+1)%4]}
		for j := range corners {
			e := geom.Line{corners[j], corners[(j+1)%4]}
			if _, ok := planar.SegmentIntersect(q, e); ok {
				return true
			}
		}
	}
	return false
}

// Geometry returns the tiles at zoom z that cover g, ordered by Less.
func Geometry(g orb.Geometry, z uint8) ([]tileid.CanonicalTileID, error) {
	set, err := orbcover.Geometry(g, maptile.Zoom(z))
	if err != nil {
		return nil, err
	}
	return sorted(set), nil
}

// Bounds returns the tiles at zoom z that cover a lon/lat rectangle, ordered by Less.
func Bounds(b orb.Bound, z uint8) []tileid.CanonicalTileID {
	return sorted(orbcover.Bound(b, maptile.Zoom(z)))
}

// sorted converts orb's tiles, which reach x or y = 2^z for edges on the antimeridian or
// the poles. Those are folded back into the last column or row.
func sorted(set maptile.Set) []tileid.CanonicalTileID {
	seen := make(map[tileid.CanonicalTileID]struct{}, len(set))
	result := make([]tileid.CanonicalTileID, 0, len(set))
	for t, ok := range set {
		if !ok {
			continue
		}
		last := uint32(1)<<t.Z - 1
		t.X = min(t.X, last)
		t.Y = min(t.Y, last)
		id := tileid.FromMaptile(t)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	slices.SortFunc(result, func(a, b tileid.CanonicalTileID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return result
}
