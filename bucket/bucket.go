// Package bucket holds render-ready geometry per style layer. Buckets are built on a worker
// and handed to the tile as a whole; after that only symbol opacities change, and only on
// the main goroutine.
package bucket

import (
	"github.com/pdok/mosaic/gfx"
	"github.com/pdok/mosaic/tiledata"
)

type Bucket interface {
	Upload(ctx gfx.Context) error
	HasData() bool
	LayerIDs() []string
}

type vertexBucket struct {
	layerID  string
	mode     gfx.DrawMode
	buffer   gfx.VertexBuffer
	features int
}

func (b *vertexBucket) Upload(ctx gfx.Context) error {
	if !b.HasData() {
		return nil
	}
	return ctx.UploadVertices(b.layerID, b.mode, b.buffer)
}

func (b *vertexBucket) HasData() bool {
	return b.buffer.Len() > 0
}

func (b *vertexBucket) LayerIDs() []string {
	return []string{b.layerID}
}

// FeatureCount is the number of features that added geometry.
func (b *vertexBucket) FeatureCount() int {
	return b.features
}

func (b *vertexBucket) Buffer() gfx.VertexBuffer {
	return b.buffer
}

// FillBucket holds polygon rings.
type FillBucket struct {
	vertexBucket
}

func NewFillBucket(layerID string) *FillBucket {
	return &FillBucket{vertexBucket{layerID: layerID, mode: gfx.Polygons}}
}

func (b *FillBucket) AddFeature(f tiledata.GeometryTileFeature) {
	if f.Type() != tiledata.Polygon {
		return
	}
	for _, ring := range f.Geometries() {
		b.buffer.AddSegment(ring)
	}
	b.features++
}

// LineBucket holds lines, and the outlines of polygons.
type LineBucket struct {
	vertexBucket
}

func NewLineBucket(layerID string) *LineBucket {
	return &LineBucket{vertexBucket{layerID: layerID, mode: gfx.LineStrips}}
}

func (b *LineBucket) AddFeature(f tiledata.GeometryTileFeature) {
	switch f.Type() {
	case tiledata.LineString:
		for _, line := range f.Geometries() {
			b.buffer.AddSegment(line)
		}
	case tiledata.Polygon:
		for _, ring := range f.Geometries() {
			if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
				ring = append(ring[:len(ring):len(ring)], ring[0])
			}
			b.buffer.AddSegment(ring)
		}
	default:
		return
	}
	b.features++
}

// CircleBucket holds points.
type CircleBucket struct {
	vertexBucket
}

func NewCircleBucket(layerID string) *CircleBucket {
	return &CircleBucket{vertexBucket{layerID: layerID, mode: gfx.Points}}
}

func (b *CircleBucket) AddFeature(f tiledata.GeometryTileFeature) {
	if f.Type() != tiledata.Point {
		return
	}
	for _, points := range f.Geometries() {
		b.buffer.AddSegment(points)
	}
	b.features++
}

// RasterBucket keeps the encoded image of a raster tile. Decoding is up to the context.
type RasterBucket struct {
	layerID string
	Data    []byte
}

func NewRasterBucket(layerID string, data []byte) *RasterBucket {
	return &RasterBucket{layerID: layerID, Data: data}
}

func (b *RasterBucket) Upload(ctx gfx.Context) error {
	if u, ok := ctx.(gfx.RasterUploader); ok && b.HasData() {
		return u.UploadRaster(b.layerID, b.Data)
	}
	return nil
}

func (b *RasterBucket) HasData() bool {
	return len(b.Data) > 0
}

func (b *RasterBucket) LayerIDs() []string {
	return []string{b.layerID}
}
