// Package tileset decodes TileJSON-like descriptors of a tile source: where its tiles are,
// which zoom levels and area it covers, and how its rows are numbered.
// See https://github.com/mapbox/tilejson-spec
package tileset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/perimeterx/marshmallow"

	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/tileid"
)

type Scheme string

const (
	XYZ Scheme = "xyz"
	// TMS numbers rows from the south.
	TMS Scheme = "tms"
)

var ErrNoTiles = errors.New("tileset has no tile url templates")

// World is the area covered by web mercator tiles.
var World = orb.Bound{Min: orb.Point{-180, -85.051129}, Max: orb.Point{180, 85.051129}}

type TileSet struct {
	Name        string `json:"name,omitempty"`
	Attribution string `json:"attribution,omitempty"`
	// Tiles are url templates with {z}, {x} and {y} placeholders, used round robin.
	Tiles    []string `validate:"required,min=1,dive,required" json:"tiles"`
	MinZoom  uint8    `default:"0" validate:"lte=24" json:"minzoom"`
	MaxZoom  uint8    `default:"22" validate:"gtefield=MinZoom,lte=24" json:"maxzoom"`
	TileSize float64  `default:"512" validate:"gt=0,lte=4096" json:"tileSize"`
	// Scheme is decoded by hand, marshmallow skips string kinds with their own name.
	Scheme Scheme `default:"xyz" validate:"oneof=xyz tms" json:"-"`
	// Bounds are in lon/lat, the world when missing.
	Bounds orb.Bound `json:"-"`
	// Raw holds the keys this package does not know about.
	Raw map[string]any `json:"-"`
}

// Load reads a descriptor from a file.
func Load(path string) (*TileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ts TileSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("could not read tileset %s: %w", path, err)
	}
	return &ts, nil
}

func (ts *TileSet) MarshalJSON() ([]byte, error) {
	type plain TileSet // without the methods, to not recurse into this function
	return json.Marshal(struct {
		plain
		SpecialScheme string     `json:"scheme"`
		SpecialBounds [4]float64 `json:"bounds"`
	}{
		plain:         plain(*ts),
		SpecialScheme: string(ts.Scheme),
		SpecialBounds: [4]float64{ts.Bounds.Min[0], ts.Bounds.Min[1], ts.Bounds.Max[0], ts.Bounds.Max[1]},
	})
}

func (ts *TileSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(ts)
	if err != nil {
		return err
	}
	specials, err := marshmallow.Unmarshal(data, ts, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	if rawScheme, ok := specials["scheme"]; ok {
		delete(specials, "scheme")
		scheme, isString := rawScheme.(string)
		if !isString {
			return fmt.Errorf(`"scheme" should be a string, got a %T`, rawScheme)
		}
		ts.Scheme = Scheme(scheme)
	}

	ts.Bounds = World
	if rawBounds, ok := specials["bounds"]; ok {
		ts.Bounds, err = unmarshalBounds(rawBounds)
		if err != nil {
			return err
		}
		delete(specials, "bounds")
	}
	if len(specials) > 0 {
		ts.Raw = specials
	}
	if len(ts.Tiles) == 0 {
		return ErrNoTiles
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(ts)
}

func unmarshalBounds(raw any) (orb.Bound, error) {
	list, ok := raw.([]any)
	if !ok || len(list) != 4 {
		return orb.Bound{}, fmt.Errorf(`"bounds" should be an array of 4 numbers`)
	}
	var v [4]float64
	for i, r := range list {
		f, ok := r.(float64)
		if !ok {
			return orb.Bound{}, fmt.Errorf(`"bounds" should be an array of 4 numbers, got a %T`, r)
		}
		v[i] = f
	}
	return newBound(v)
}

func newBound(v [4]float64) (orb.Bound, error) {
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bounds %v should be west, south, east, north", v)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// FromMetadata builds a descriptor from the metadata table of an MBTiles file. The tile url
// is only a label, MBTiles tiles are looked up by id.
func FromMetadata(name string, metadata map[string]string) (*TileSet, error) {
	ts := &TileSet{Name: name, Tiles: []string{name + "/{z}/{x}/{y}"}}
	if err := defaults.Set(ts); err != nil {
		return nil, err
	}
	ts.Bounds = World
	for key, value := range metadata {
		var err error
		switch key {
		case "name":
			ts.Name = value
		case "attribution":
			ts.Attribution = value
		case "minzoom":
			ts.MinZoom, err = parseZoom(value)
		case "maxzoom":
			ts.MaxZoom, err = parseZoom(value)
		case "bounds":
			ts.Bounds, err = parseBounds(value)
		default:
			if ts.Raw == nil {
				ts.Raw = make(map[string]any)
			}
			ts.Raw[key] = value
		}
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", key, err)
		}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func parseZoom(s string) (uint8, error) {
	z, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	return uint8(z), err
}

func parseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounds %q should have 4 values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, err
		}
		v[i] = f
	}
	return newBound(v)
}

// URL is the address of tile id. Templates are spread over the tiles so that they can be
// served by several hosts.
func (ts *TileSet) URL(id tileid.CanonicalTileID) string {
	template := ts.Tiles[int(id.X+id.Y)%len(ts.Tiles)]
	if ts.Scheme == TMS {
		id.Y = (uint32(1) << id.Z) - 1 - id.Y
	}
	return filesource.FormatPattern(template, id)
}

// Resource is the file source request for tile id.
func (ts *TileSet) Resource(id tileid.CanonicalTileID) filesource.Resource {
	return filesource.Resource{Kind: filesource.Tile, URL: ts.URL(id), TileID: id}
}

// Covers reports whether the tileset can have data for id.
func (ts *TileSet) Covers(id tileid.CanonicalTileID) bool {
	return id.Z >= ts.MinZoom && ts.Bounds.Intersects(id.Bound())
}
