package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/config"
	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/gfx"
	"github.com/pdok/mosaic/glyph"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/source"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/tileset"
	"github.com/pdok/mosaic/transform"
)

const geoJSONSourceID = "geojson"

// logObserver reports tile problems in the log.
type logObserver struct{}

func (logObserver) OnTileChanged(sourceID string, id tileid.OverscaledTileID) {
	logging.L().Debug("tile changed", zap.String("source", sourceID), zap.Stringer("tile", id))
}

func (logObserver) OnTileError(sourceID string, id tileid.OverscaledTileID, err error) {
	logging.L().Warn("tile failed", zap.String("source", sourceID), zap.Stringer("tile", id), zap.Error(err))
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if path := c.String(CONFIG); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func camera(c *cli.Context) (transform.State, error) {
	center, err := parseFloats(c.String(CENTER), 2)
	if err != nil {
		return transform.State{}, err
	}
	return transform.State{
		Center:  orb.Point{center[0], center[1]},
		Zoom:    c.Float64(ZOOM),
		Bearing: c.Float64(BEARING),
		Pitch:   c.Float64(PITCH),
		Width:   float64(c.Int(WIDTH)),
		Height:  float64(c.Int(HEIGHT)),
	}, nil
}

// openTiles opens the tile store and finds its tileset. Reads run on workers.
func openTiles(c *cli.Context, workers actor.Scheduler) (filesource.FileSource, *tileset.TileSet, func() error, error) {
	path := c.String(TILES)
	noop := func() error { return nil }
	var ts *tileset.TileSet
	if p := c.String(TILESET); p != "" {
		var err error
		if ts, err = tileset.Load(p); err != nil {
			return nil, nil, noop, err
		}
	}

	if strings.HasSuffix(path, ".mbtiles") {
		mbtiles, err := filesource.OpenMBTiles(path, workers)
		if err != nil {
			return nil, nil, noop, err
		}
		if ts == nil {
			metadata, err := mbtiles.Metadata()
			if err != nil {
				_ = mbtiles.Close()
				return nil, nil, noop, fmt.Errorf("could not read metadata of %s: %w", path, err)
			}
			if ts, err = tileset.FromMetadata(path, metadata); err != nil {
				_ = mbtiles.Close()
				return nil, nil, noop, err
			}
		}
		return filesource.NewCoalescing(mbtiles), ts, mbtiles.Close, nil
	}

	dir, err := filesource.NewDirectory(path, workers)
	if err != nil {
		return nil, nil, noop, err
	}
	if ts == nil {
		ts = &tileset.TileSet{}
		if err := json.Unmarshal([]byte(fmt.Sprintf(`{"tiles": [%q]}`, path)), ts); err != nil {
			return nil, nil, noop, err
		}
	}
	return filesource.NewCoalescing(dir), ts, noop, nil
}

//nolint:funlen
func render(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	state, err := camera(c)
	if err != nil {
		return err
	}
	layers, err := readLayers(c.String(STYLE), c.String(SOURCEID))
	if err != nil {
		return err
	}

	mainLoop := actor.NewRunLoop()
	workers := actor.NewThreadPool(cfg.Workers)
	defer func() {
		if err := workers.Close(); err != nil {
			logging.L().Warn("closing workers failed", zap.Error(err))
		}
	}()

	files, ts, closeFiles, err := openTiles(c, workers)
	if err != nil {
		return err
	}
	defer func() { _ = closeFiles() }()

	glyphs, err := glyph.NewManager(mainLoop, workers)
	if err != nil {
		return err
	}
	ctx := cfg.Apply(source.Context{
		MainLoop:   mainLoop,
		Workers:    workers,
		FileSource: files,
		Glyphs:     glyphs,
		Images:     glyph.NewImageManager(),
		Observer:   logObserver{},
	})

	var sources []source.RenderSource
	if c.Bool(RASTER) {
		sources = append(sources, source.NewRasterSource(c.String(SOURCEID), ts, ctx))
	} else {
		sources = append(sources, source.NewVectorSource(c.String(SOURCEID), ts, ctx))
	}
	if path := c.String(GEOJSON); path != "" {
		fc, err := readGeoJSON(path)
		if err != nil {
			return err
		}
		gs, err := source.NewGeoJSONSource(geoJSONSourceID, ctx, source.GeoJSONOptions{MaxZoom: cfg.MaxZoom})
		if err != nil {
			return err
		}
		gs.SetData(fc)
		sources = append(sources, gs)
	}
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()

	params := source.UpdateParameters{
		Transform:          state,
		Layers:             layers,
		PrefetchZoomDelta:  cfg.PrefetchZoomDelta,
		ShowCollisionBoxes: cfg.ShowCollisionBoxes,
	}
	frames := 0
	loaded := func() bool {
		frames++
		params.Now = time.Now()
		done := true
		for _, s := range sources {
			s.Update(params)
			done = done && s.IsLoaded()
		}
		return done
	}
	timeout, cancel := context.WithTimeout(c.Context, c.Duration(TIMEOUT))
	defer cancel()
	if err := mainLoop.RunUntil(timeout, loaded); err != nil {
		return fmt.Errorf("tiles did not load within %v: %w", c.Duration(TIMEOUT), err)
	}
	logging.L().Info("tiles loaded", zap.Int("frames", frames))

	params.Now = time.Now()
	placer := source.NewPlacer(cfg.CollisionCellSize(), cfg.FadeDuration)
	placer.Place(sources, params)

	if q := c.String(QUERY); q != "" {
		if err := query(c, sources, q); err != nil {
			return err
		}
	}
	return draw(sources, layers, state, c.String(OUT))
}

// readLayers reads the style. Layers without a source draw from sourceID.
func readLayers(path, sourceID string) ([]style.Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layers, err := style.LoadLayers(data)
	if err != nil {
		return nil, fmt.Errorf("could not read style %s: %w", path, err)
	}
	for i := range layers {
		if layers[i].Source == "" {
			layers[i].Source = sourceID
		}
	}
	return layers, nil
}

// draw uploads the buckets of every layer, bottom layer first, and writes the image.
func draw(sources []source.RenderSource, layers []style.Layer, state transform.State, out string) error {
	canvas := gfx.NewCanvas(int(state.Width), int(state.Height))
	defer func() { _ = canvas.Close() }()
	for i := range layers {
		layer := &layers[i]
		if !layer.IsVisible(state.Zoom) {
			continue
		}
		canvas.SetPaint(layer.ID, layer.Paint)
		for _, s := range sources {
			if s.ID() != layer.Source {
				continue
			}
			for _, rt := range s.RenderTiles() {
				b, ok := rt.Tile.Bucket(layer.ID)
				if !ok {
					continue
				}
				canvas.SetMatrix(rt.Matrix)
				if err := b.Upload(canvas); err != nil {
					return fmt.Errorf("drawing %s of tile %v: %w", layer.ID, rt.ID, err)
				}
			}
		}
	}
	if err := canvas.SavePNG(out); err != nil {
		return err
	}
	logging.L().Info("image written", zap.String("path", out))
	return nil
}

func query(c *cli.Context, sources []source.RenderSource, q string) error {
	xy, err := parseFloats(q, 2)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	for _, s := range sources {
		for layerID, features := range s.QueryRenderedFeatures([]gg.Point{gg.Pt(xy[0], xy[1])}, 3, nil) {
			for _, f := range features {
				if err := enc.Encode(map[string]any{"source": s.ID(), "layer": layerID, "properties": f.Properties}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
