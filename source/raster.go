package source

import (
	"github.com/pdok/mosaic/pyramid"
	"github.com/pdok/mosaic/tile"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/tileset"
)

// RasterSource loads image tiles. The images are handed to the graphics context undecoded.
type RasterSource struct {
	base
	tileset *tileset.TileSet
}

var _ RenderSource = (*RasterSource)(nil)

func NewRasterSource(id string, ts *tileset.TileSet, ctx Context) *RasterSource {
	bounds := ts.Bounds
	return &RasterSource{
		base:    newBase(id, pyramid.Raster, ctx, ts.TileSize, pyramid.ZoomRange{Min: ts.MinZoom, Max: ts.MaxZoom}, &bounds),
		tileset: ts,
	}
}

func (s *RasterSource) Update(params UpdateParameters) {
	s.update(params, s.ownLayers(params.Layers, nil), s.createTile)
}

func (s *RasterSource) createTile(id tileid.OverscaledTileID) tile.Tile {
	t := tile.NewRasterTile(id, s.ctx.MainLoop, s.tileObserver())
	t.LoadFrom(s.ctx.FileSource, s.tileset.Resource(id.Canonical))
	return t
}
