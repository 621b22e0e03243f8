// Package featureindex answers which features of a tile are under a query geometry.
package featureindex

import (
	"slices"
	"sort"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/planar"

	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/geomhelp"
	"github.com/pdok/mosaic/tiledata"
)

const (
	// cellSize of the grid in tile units, 16 cells along a tile edge
	cellSize = tiledata.Extent / 16
	// boxes are grown by padding tile units so that points and straight lines get an area
	padding = 1
)

// QueriedFeature is a feature that matched a query, for one style layer.
type QueriedFeature struct {
	LayerID     string
	SourceLayer string
	Index       int
	Properties  map[string]any
	SortIndex   int
}

type featureKey struct {
	layerID     string
	sourceLayer string
	index       int
}

// Query describes what to look for.
type Query struct {
	// Geometry is a single point or a ring, in tile units.
	Geometry [][2]float64
	// Tolerance is the distance in tile units a feature may be off and still match.
	Tolerance float64
	// LayerIDs limits the results, empty means all layers.
	LayerIDs []string
	// Collision holds the placed symbols of the tile, nil to skip symbols.
	Collision  *collision.Index
	Projection collision.Projection
}

// FeatureIndex stores the bounding boxes of the feature geometries retained for rendering,
// next to the data they came from. It is built on the worker and read-only after hand-off.
type FeatureIndex struct {
	grid           *collision.GridIndex[collision.IndexedSubfeature]
	data           tiledata.GeometryTileData
	bucketLayerIDs map[string][]string
	sortIndex      int
}

func New(data tiledata.GeometryTileData) *FeatureIndex {
	return &FeatureIndex{
		grid:           collision.NewGridIndex[collision.IndexedSubfeature](cellSize),
		data:           data,
		bucketLayerIDs: make(map[string][]string),
	}
}

// Data is the tile data features are looked up in.
func (fi *FeatureIndex) Data() tiledata.GeometryTileData {
	return fi.data
}

func (fi *FeatureIndex) Len() int {
	return fi.grid.Len()
}

// Insert adds feature index of sourceLayer as rendered by bucketName. Every insert gets the
// next sort index.
func (fi *FeatureIndex) Insert(geometries tiledata.GeometryCollection, index int, sourceLayer, bucketName string) {
	bounds := geometries.Bounds()
	if bounds == nil {
		return
	}
	box := collision.BoxFromExtent(*bounds)
	box = collision.Box{X1: box.X1 - padding, Y1: box.Y1 - padding, X2: box.X2 + padding, Y2: box.Y2 + padding}
	fi.grid.Insert(box, collision.IndexedSubfeature{
		Index:           index,
		SourceLayerName: sourceLayer,
		BucketName:      bucketName,
		SortIndex:       fi.sortIndex,
	})
	fi.sortIndex++
}

// SetBucketLayerIDs sets the style layers a bucket is drawn for. A bucket without layer ids
// is drawn for the layer with the bucket's name.
func (fi *FeatureIndex) SetBucketLayerIDs(bucketName string, layerIDs []string) {
	fi.bucketLayerIDs[bucketName] = layerIDs
}

func (fi *FeatureIndex) layerIDs(bucketName string) []string {
	if ids, ok := fi.bucketLayerIDs[bucketName]; ok {
		return ids
	}
	return []string{bucketName}
}

// Query returns the features hit by q, ordered by sort index. Geometric features are
// matched on their bounding box first and their exact geometry next. Symbols match on
// their placed collision boxes.
func (fi *FeatureIndex) Query(q Query) []QueriedFeature {
	if len(q.Geometry) == 0 {
		return nil
	}
	var result []QueriedFeature
	seen := make(map[featureKey]struct{})
	add := func(sub collision.IndexedSubfeature, feature tiledata.GeometryTileFeature) {
		for _, layerID := range fi.layerIDs(sub.BucketName) {
			if len(q.LayerIDs) > 0 && !slices.Contains(q.LayerIDs, layerID) {
				continue
			}
			key := featureKey{layerID: layerID, sourceLayer: sub.SourceLayerName, index: sub.Index}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, QueriedFeature{
				LayerID:     layerID,
				SourceLayer: sub.SourceLayerName,
				Index:       sub.Index,
				Properties:  feature.Properties(),
				SortIndex:   sub.SortIndex,
			})
		}
	}

	box := queryBox(q.Geometry, q.Tolerance)
	for _, sub := range fi.grid.Query(box) {
		feature, ok := fi.feature(sub)
		if !ok || !hit(q.Geometry, q.Tolerance, feature.Type(), feature.Geometries()) {
			continue
		}
		add(sub, feature)
	}

	if q.Collision != nil {
		for _, sub := range q.Collision.QueryRenderedSymbols(fi.collisionBox(q)) {
			if feature, ok := fi.feature(sub); ok {
				add(sub, feature)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SortIndex < result[j].SortIndex
	})
	return result
}

func (fi *FeatureIndex) feature(sub collision.IndexedSubfeature) (tiledata.GeometryTileFeature, bool) {
	if fi.data == nil {
		return nil, false
	}
	layer, ok := fi.data.Layer(sub.SourceLayerName)
	if !ok || sub.Index < 0 || sub.Index >= layer.FeatureCount() {
		return nil, false
	}
	return layer.Feature(sub.Index), true
}

// collisionBox is the bounding box of the query geometry in collision space.
func (fi *FeatureIndex) collisionBox(q Query) collision.Box {
	var e *geom.Extent
	for _, p := range q.Geometry {
		cp := q.Collision.ProjectPoint(p, q.Projection)
		if e == nil {
			e = geom.NewExtent(cp)
			continue
		}
		e.AddPoints(cp)
	}
	box := collision.BoxFromExtent(*e)
	t := q.Tolerance * q.Projection.Scale
	return collision.Box{X1: box.X1 - t, Y1: box.Y1 - t, X2: box.X2 + t, Y2: box.Y2 + t}
}

func queryBox(query [][2]float64, tolerance float64) collision.Box {
	e := geom.NewExtent(query...)
	return collision.Box{
		X1: e.MinX() - tolerance, Y1: e.MinY() - tolerance,
		X2: e.MaxX() + tolerance, Y2: e.MaxY() + tolerance,
	}
}

// hit tests the exact geometry. A polygon feature matches when it contains a query vertex,
// an area query matches when it contains a feature vertex, and anything matches when an edge
// of the feature comes within tolerance of an edge of the query.
func hit(query [][2]float64, tolerance float64, featureType tiledata.FeatureType, parts tiledata.GeometryCollection) bool {
	if featureType == tiledata.Polygon {
		for _, q := range query {
			if geomhelp.PolygonContains(parts, q) {
				return true
			}
		}
	}
	isArea := len(query) >= 3
	if isArea {
		for _, part := range parts {
			for _, p := range part {
				if geomhelp.RingContains(query, p) {
					return true
				}
			}
		}
	}
	queryEdges := edges(query, isArea)
	for _, part := range parts {
		var featureEdges []geom.Line
		switch featureType {
		case tiledata.Point:
			for i := range part {
				featureEdges = append(featureEdges, geom.Line{part[i], part[i]})
			}
		case tiledata.Polygon:
			featureEdges = edges(part, true)
		default:
			featureEdges = edges(part, false)
		}
		for _, fe := range featureEdges {
			for _, qe := range queryEdges {
				if lineDistance(fe, qe) <= tolerance {
					return true
				}
			}
		}
	}
	return false
}

// edges turns points into segments. A single point becomes a zero length segment.
func edges(points [][2]float64, closed bool) []geom.Line {
	switch len(points) {
	case 0:
		return nil
	case 1:
		return []geom.Line{{points[0], points[0]}}
	}
	lines := make([]geom.Line, 0, len(points))
	for i := 1; i < len(points); i++ {
		lines = append(lines, geom.Line{points[i-1], points[i]})
	}
	if closed && points[0] != points[len(points)-1] {
		lines = append(lines, geom.Line{points[len(points)-1], points[0]})
	}
	return lines
}

func lineDistance(a, b geom.Line) float64 {
	if a[0] != a[1] && b[0] != b[1] {
		if _, intersects := planar.SegmentIntersect(a, b); intersects {
			return 0
		}
	}
	return min(
		geomhelp.SegmentDistance(a[0], b[0], b[1]),
		geomhelp.SegmentDistance(a[1], b[0], b[1]),
		geomhelp.SegmentDistance(b[0], a[0], a[1]),
		geomhelp.SegmentDistance(b[1], a[0], a[1]),
	)
}
