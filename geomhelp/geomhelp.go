package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Tile geometries are plain coordinate slices; orb's planar package works on its own
// named types, so the rings are copied over.
func toRing(pts [][2]float64) orb.Ring {
	ring := make(orb.Ring, len(pts))
	for i, p := range pts {
		ring[i] = p
	}
	return ring
}

// RingArea is the unsigned area of a ring, open or closed.
func RingArea(ring [][2]float64) float64 {
	if len(ring) < 3 {
		return 0
	}
	return math.Abs(planar.Area(toRing(ring)))
}

// RingContains tests whether pt lies inside ring or on its boundary. The ring may be open or closed.
func RingContains(ring [][2]float64, pt [2]float64) bool {
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(toRing(ring), pt)
}

// PolygonContains applies the even-odd rule over all rings, so holes are excluded.
// Vector tiles flatten multipolygons into one ring list, which is why the rings are
// not split into shells and holes first.
func PolygonContains(rings [][][2]float64, pt [2]float64) bool {
	inside := false
	for _, ring := range rings {
		if RingContains(ring, pt) {
			inside = !inside
		}
	}
	return inside
}

// VertexCentroid is the mean of the ring's distinct vertices.
func VertexCentroid(ring [][2]float64) [2]float64 {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	if n == 0 {
		return [2]float64{}
	}
	var sx, sy float64
	for _, p := range ring[:n] {
		sx += p[0]
		sy += p[1]
	}
	return [2]float64{sx / float64(n), sy / float64(n)}
}

// LargestRing returns the index of the ring with the largest area, or -1 without rings.
func LargestRing(rings [][][2]float64) int {
	best, bestArea := -1, -1.
	for i, ring := range rings {
		if a := RingArea(ring); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}

// SegmentDistance is the distance from p to the segment a-b.
func SegmentDistance(p, a, b [2]float64) float64 {
	return planar.DistanceFromSegment(a, b, p)
}

func WktMustEncode(g geom.Geometry, maxLen uint) (s string) {
	p, isPoly := g.(geom.Polygon)
	if !isPoly {
		return wktMustEncodeTruncated(g, maxLen)
	}

	var lines []geom.LineString
	var points []geom.Point
	pp := make(geom.Polygon, len(p))
	copy(pp, p)
	for r := 0; r < len(pp); r++ {
		switch len(pp[r]) {
		default:
			continue
		case 1:
			points = append(points, pp[r][0])
		case 2:
			lines = append(lines, pp[r])
		}
		pp = append(pp[:r], pp[r+1:]...)
		r--
	}

	if len(pp) > 0 {
		s = wktMustEncodeTruncated(pp, maxLen)
	}
	for i := range lines {
		s += wktMustEncodeTruncated(lines[i], maxLen)
	}
	for i := range points {
		s += wktMustEncodeTruncated(points[i], maxLen)
	}
	return s
}

func wktMustEncodeTruncated(geom geom.Geometry, width uint) string {
	if width == 0 {
		return wkt.MustEncode(geom)
	}
	return truncate.StringWithTail(wkt.MustEncode(geom), width, "...")
}
