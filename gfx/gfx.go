// Package gfx is the sink render-ready geometry is uploaded to.
package gfx

type DrawMode uint8

const (
	Points DrawMode = iota
	LineStrips
	Polygons
)

func (m DrawMode) String() string {
	switch m {
	case Points:
		return "points"
	case LineStrips:
		return "line strips"
	case Polygons:
		return "polygons"
	default:
		return "unknown"
	}
}

// Segment is a run of Count vertices starting at vertex Offset. For Polygons a segment is
// a ring, for LineStrips a line.
type Segment struct {
	Offset, Count int
}

// VertexBuffer holds x,y pairs in tile units.
type VertexBuffer struct {
	Vertices []float32
	Segments []Segment
}

// AddSegment appends a run of points as one segment.
func (b *VertexBuffer) AddSegment(points [][2]float64) {
	if len(points) == 0 {
		return
	}
	b.Segments = append(b.Segments, Segment{Offset: len(b.Vertices) / 2, Count: len(points)})
	for _, p := range points {
		b.Vertices = append(b.Vertices, float32(p[0]), float32(p[1]))
	}
}

// Vertex returns vertex i.
func (b *VertexBuffer) Vertex(i int) (x, y float32) {
	return b.Vertices[2*i], b.Vertices[2*i+1]
}

func (b *VertexBuffer) Len() int {
	return len(b.Vertices) / 2
}

// SymbolQuad is a placed label or icon: a box in pixels around an anchor in tile units.
type SymbolQuad struct {
	Anchor         [2]float32
	X1, Y1, X2, Y2 float32
	Opacity        float32
	Icon           bool
}

// Context receives uploads. Implementations decide what uploading means.
type Context interface {
	UploadVertices(layer string, mode DrawMode, buffer VertexBuffer) error
	UploadSymbols(layer string, quads []SymbolQuad) error
}

// RasterUploader is implemented by contexts that accept raw raster tiles.
type RasterUploader interface {
	UploadRaster(layer string, data []byte) error
}
