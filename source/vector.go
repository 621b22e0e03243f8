package source

import (
	"bytes"

	"github.com/pdok/mosaic/pyramid"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/tileset"
)

var gzipMagic = []byte{0x1f, 0x8b}

// VectorSource loads Mapbox vector tiles through the file source of its context.
type VectorSource struct {
	base
	tileset *tileset.TileSet
}

var _ RenderSource = (*VectorSource)(nil)

func NewVectorSource(id string, ts *tileset.TileSet, ctx Context) *VectorSource {
	bounds := ts.Bounds
	return &VectorSource{
		base:    newBase(id, pyramid.Vector, ctx, ts.TileSize, pyramid.ZoomRange{Min: ts.MinZoom, Max: ts.MaxZoom}, &bounds),
		tileset: ts,
	}
}

func (s *VectorSource) Update(params UpdateParameters) {
	s.update(params, s.ownLayers(params.Layers, nil), s.createTile)
}

func (s *VectorSource) createTile(id tileid.OverscaledTileID) tile.Tile {
	t := tile.NewGeometryTile(id, s.tileOptions())
	t.LoadFrom(s.ctx.FileSource, s.tileset.Resource(id.Canonical), ParseMVT)
	return t
}

// ParseMVT decodes vector tiles, gzipped or not.
func ParseMVT(data []byte) (tiledata.GeometryTileData, error) {
	return tiledata.ParseMVT(data, bytes.HasPrefix(data, gzipMagic))
}
