package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/tilecover"
	"github.com/pdok/mosaic/tileid"
)

const (
	VERBOSE  string = `verbose`
	CONFIG   string = `config`
	TILES    string = `tiles`
	TILESET  string = `tileset`
	STYLE    string = `style`
	RASTER   string = `raster`
	GEOJSON  string = `geojson`
	CENTER   string = `center`
	ZOOM     string = `zoom`
	BEARING  string = `bearing`
	PITCH    string = `pitch`
	WIDTH    string = `width`
	HEIGHT   string = `height`
	OUT      string = `out`
	QUERY    string = `query`
	TIMEOUT  string = `timeout`
	BBOX     string = `bbox`
	SOURCEID string = `source-id`
)

var errUsage = errors.New("usage")

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake("mosaic_" + name)}
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "mosaic"
	app.Usage = "Loads, lays out and places map tiles for a camera, and draws them"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    VERBOSE,
			Aliases: []string{"v"},
			Usage:   "Log at debug level in a human readable format",
			EnvVars: envVars(VERBOSE),
		},
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "YAML file with engine settings, defaults are used when missing",
			EnvVars: envVars(CONFIG),
		},
	}
	app.Before = func(c *cli.Context) error {
		logger, err := logging.New(c.Bool(VERBOSE))
		if err != nil {
			return err
		}
		logging.SetLogger(logger)
		return nil
	}
	app.After = func(*cli.Context) error {
		_ = logging.L().Sync()
		return nil
	}

	cameraFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    CENTER,
			Usage:   "Center of the view as lon,lat",
			Value:   "0,0",
			EnvVars: envVars(CENTER),
		},
		&cli.Float64Flag{
			Name:     ZOOM,
			Aliases:  []string{"z"},
			Usage:    "Zoom level",
			Required: true,
			EnvVars:  envVars(ZOOM),
		},
		&cli.Float64Flag{
			Name:    BEARING,
			Usage:   "Rotation of the view in degrees, clockwise",
			EnvVars: envVars(BEARING),
		},
		&cli.Float64Flag{
			Name:    PITCH,
			Usage:   "Tilt of the view in degrees",
			EnvVars: envVars(PITCH),
		},
		&cli.IntFlag{
			Name:    WIDTH,
			Usage:   "Width of the view in pixels",
			Value:   1024,
			EnvVars: envVars(WIDTH),
		},
		&cli.IntFlag{
			Name:    HEIGHT,
			Usage:   "Height of the view in pixels",
			Value:   768,
			EnvVars: envVars(HEIGHT),
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "render",
			Usage: "Draw the tiles for a camera into a PNG",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     TILES,
					Aliases:  []string{"t"},
					Usage:    "MBTiles file, or a directory pattern like tiles/{z}/{x}/{y}.pbf",
					Required: true,
					EnvVars:  envVars(TILES),
				},
				&cli.StringFlag{
					Name:    TILESET,
					Usage:   "TileJSON file describing the tiles, taken from the MBTiles metadata when missing",
					EnvVars: envVars(TILESET),
				},
				&cli.StringFlag{
					Name:     STYLE,
					Aliases:  []string{"s"},
					Usage:    "JSON array of style layers",
					Required: true,
					EnvVars:  envVars(STYLE),
				},
				&cli.StringFlag{
					Name:    SOURCEID,
					Usage:   "Source id of the tiles, style layers without a source get it",
					Value:   "tiles",
					EnvVars: envVars(SOURCEID),
				},
				&cli.BoolFlag{
					Name:    RASTER,
					Usage:   "The tiles are images instead of vector tiles",
					EnvVars: envVars(RASTER),
				},
				&cli.StringFlag{
					Name:    GEOJSON,
					Usage:   "GeoJSON feature collection drawn by the style layers with source \"geojson\"",
					EnvVars: envVars(GEOJSON),
				},
				&cli.StringFlag{
					Name:     OUT,
					Aliases:  []string{"o"},
					Usage:    "PNG file to write",
					Required: true,
					EnvVars:  envVars(OUT),
				},
				&cli.StringFlag{
					Name:    QUERY,
					Usage:   "Print the features under the screen pixel x,y",
					EnvVars: envVars(QUERY),
				},
				&cli.DurationFlag{
					Name:    TIMEOUT,
					Usage:   "How long to wait for the tiles",
					Value:   30 * time.Second,
					EnvVars: envVars(TIMEOUT),
				},
			}, cameraFlags...),
			Action: render,
		},
		{
			Name:  "cover",
			Usage: "Print the tiles covering a bounding box, a GeoJSON file or the view of a camera",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    BBOX,
					Usage:   "Bounding box as west,south,east,north",
					EnvVars: envVars(BBOX),
				},
				&cli.StringFlag{
					Name:    GEOJSON,
					Usage:   "GeoJSON file whose geometries are covered",
					EnvVars: envVars(GEOJSON),
				},
			}, cameraFlags...),
			Action: cover,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		logging.L().Error("mosaic failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cover(c *cli.Context) error {
	z := uint8(c.Float64(ZOOM))
	var ids []tileid.CanonicalTileID
	switch {
	case c.String(BBOX) != "":
		values, err := parseFloats(c.String(BBOX), 4)
		if err != nil {
			return err
		}
		ids = tilecover.Bounds(orb.Bound{Min: orb.Point{values[0], values[1]}, Max: orb.Point{values[2], values[3]}}, z)
	case c.String(GEOJSON) != "":
		fc, err := readGeoJSON(c.String(GEOJSON))
		if err != nil {
			return err
		}
		seen := make(map[tileid.CanonicalTileID]struct{})
		for _, f := range fc.Features {
			covered, err := tilecover.Geometry(f.Geometry, z)
			if err != nil {
				return err
			}
			for _, id := range covered {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	default:
		state, err := camera(c)
		if err != nil {
			return err
		}
		for _, u := range tilecover.Viewport(state, z) {
			fmt.Fprintln(c.App.Writer, u)
		}
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}

func readGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return fc, nil
}

// parseFloats parses n comma separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %q should have %d comma separated numbers", errUsage, s, n)
	}
	values := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUsage, s, err)
		}
		values[i] = v
	}
	return values, nil
}
