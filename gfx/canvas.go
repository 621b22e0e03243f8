package gfx

import (
	"fmt"
	"io"

	"github.com/gogpu/gg"

	"github.com/pdok/mosaic/style"
)

// Canvas rasterises uploads in software, for debugging and the command line.
// SetMatrix tells it where the tile being uploaded lies on the image.
type Canvas struct {
	ctx    *gg.Context
	matrix gg.Matrix
	paints map[string]style.Paint
}

func NewCanvas(width, height int) *Canvas {
	ctx := gg.NewContext(width, height)
	ctx.ClearWithColor(gg.RGB(1, 1, 1))
	ctx.SetFillRule(gg.FillRuleEvenOdd)
	return &Canvas{ctx: ctx, matrix: gg.Identity(), paints: make(map[string]style.Paint)}
}

// SetMatrix sets the transformation from tile units to image pixels.
func (c *Canvas) SetMatrix(m gg.Matrix) {
	c.matrix = m
}

// SetPaint sets how layer is drawn. Layers without paint are drawn black.
func (c *Canvas) SetPaint(layer string, p style.Paint) {
	c.paints[layer] = p
}

func (c *Canvas) paint(layer string) style.Paint {
	if p, ok := c.paints[layer]; ok {
		return p
	}
	return style.Paint{Color: gg.RGB(0, 0, 0), Opacity: 1, Width: 1, Radius: 3}
}

func (c *Canvas) point(x, y float32) gg.Point {
	return c.matrix.TransformPoint(gg.Pt(float64(x), float64(y)))
}

func (c *Canvas) UploadVertices(layer string, mode DrawMode, buffer VertexBuffer) error {
	p := c.paint(layer)
	c.ctx.SetRGBA(p.Color.R, p.Color.G, p.Color.B, p.Color.A*p.Opacity)
	c.ctx.SetLineWidth(p.Width)
	for _, s := range buffer.Segments {
		if s.Offset+s.Count > buffer.Len() {
			return fmt.Errorf("segment %v out of range of %d vertices", s, buffer.Len())
		}
		for i := s.Offset; i < s.Offset+s.Count; i++ {
			pt := c.point(buffer.Vertex(i))
			switch {
			case mode == Points:
				c.ctx.DrawCircle(pt.X, pt.Y, p.Radius)
			case i == s.Offset:
				c.ctx.MoveTo(pt.X, pt.Y)
			default:
				c.ctx.LineTo(pt.X, pt.Y)
			}
		}
		if mode == Polygons {
			c.ctx.ClosePath()
		}
	}
	if mode == LineStrips {
		return c.ctx.Stroke()
	}
	return c.ctx.Fill()
}

func (c *Canvas) UploadSymbols(layer string, quads []SymbolQuad) error {
	p := c.paint(layer)
	for _, q := range quads {
		if q.Opacity <= 0 {
			continue
		}
		anchor := c.point(q.Anchor[0], q.Anchor[1])
		c.ctx.SetRGBA(p.Color.R, p.Color.G, p.Color.B, p.Color.A*float64(q.Opacity))
		c.ctx.DrawRectangle(anchor.X+float64(q.X1), anchor.Y+float64(q.Y1), float64(q.X2-q.X1), float64(q.Y2-q.Y1))
		if err := c.ctx.Fill(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Canvas) SavePNG(path string) error {
	return c.ctx.SavePNG(path)
}

func (c *Canvas) EncodePNG(w io.Writer) error {
	return c.ctx.EncodePNG(w)
}

func (c *Canvas) Close() error {
	return c.ctx.Close()
}

// Recorder keeps every upload in memory, used to inspect what a renderer would receive.
type Recorder struct {
	Vertices map[string][]VertexBuffer
	Symbols  map[string][]SymbolQuad
	Rasters  map[string][]byte
}

func NewRecorder() *Recorder {
	return &Recorder{Vertices: make(map[string][]VertexBuffer), Symbols: make(map[string][]SymbolQuad)}
}

func (r *Recorder) UploadVertices(layer string, _ DrawMode, buffer VertexBuffer) error {
	r.Vertices[layer] = append(r.Vertices[layer], buffer)
	return nil
}

func (r *Recorder) UploadSymbols(layer string, quads []SymbolQuad) error {
	r.Symbols[layer] = append(r.Symbols[layer], quads...)
	return nil
}

func (r *Recorder) UploadRaster(layer string, data []byte) error {
	if r.Rasters == nil {
		r.Rasters = make(map[string][]byte)
	}
	r.Rasters[layer] = data
	return nil
}
