package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/tiledata"
)

const layersJSON = `[
  {"id": "water", "type": "fill", "source": "base", "source-layer": "water",
   "paint": {"fill-color": "#0000ff"}},
  {"id": "roads", "type": "line", "source": "base", "source-layer": "roads", "minzoom": 5,
   "filter": ["in", "class", "primary", "secondary"], "paint": {"line-width": 3}},
  {"id": "labels", "type": "symbol", "source": "base", "source-layer": "places",
   "filter": ["all", ["==", "$type", "Point"], ["has", "name"]],
   "layout": {"text-field": "{name}", "text-size": 12, "text-allow-overlap": true},
   "metadata": {"editor": "vim"}},
  {"id": "hidden", "type": "circle", "source": "base", "layout": {"visibility": "none"}}
]`

func TestLoadLayers(t *testing.T) {
	layers, err := LoadLayers([]byte(layersJSON))
	require.NoError(t, err)
	require.Len(t, layers, 4)
	assert.Equal(t, []string{"water", "roads", "labels", "hidden"}, LayerIDs(layers))

	water := layers[0]
	assert.Equal(t, Fill, water.Type)
	assert.Equal(t, 24., water.MaxZoom)
	assert.Equal(t, 1., water.Paint.Color.B)
	assert.Nil(t, water.Symbol)

	roads := layers[1]
	assert.Equal(t, 3., roads.Paint.Width)
	assert.False(t, roads.IsVisible(4))
	assert.True(t, roads.IsVisible(5))

	labels := layers[2]
	require.NotNil(t, labels.Symbol)
	assert.Equal(t, "{name}", labels.Symbol.TextField)
	assert.Equal(t, 12., labels.Symbol.TextSize)
	assert.Equal(t, []string{"Go Regular"}, labels.Symbol.TextFont)
	assert.Equal(t, "point", labels.Symbol.SymbolPlacement)
	assert.True(t, labels.Symbol.TextAllowOverlap)
	assert.Contains(t, labels.Raw, "metadata")
	assert.NotContains(t, labels.Raw, "type")

	assert.False(t, layers[3].IsVisible(10))
}

func TestLoadLayersTypes(t *testing.T) {
	for _, typ := range []Type{Fill, Line, Circle, Symbol, Raster} {
		t.Run(string(typ), func(t *testing.T) {
			layers, err := LoadLayers([]byte(`[{"id": "a", "type": "` + string(typ) + `"}]`))
			require.NoError(t, err)
			require.Len(t, layers, 1)
			assert.Equal(t, typ, layers[0].Type)
			assert.Equal(t, typ == Symbol, layers[0].Symbol != nil)
		})
	}
}

func TestLoadLayersInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "missing id", json: `[{"type": "fill"}]`},
		{name: "missing type", json: `[{"id": "a"}]`},
		{name: "type is not a string", json: `[{"id": "a", "type": 1}]`},
		{name: "unknown type", json: `[{"id": "a", "type": "hillshade"}]`},
		{name: "inverted zoom range", json: `[{"id": "a", "type": "fill", "minzoom": 10, "maxzoom": 5}]`},
		{name: "bad filter", json: `[{"id": "a", "type": "fill", "filter": ["~=", "a", 1]}]`},
		{name: "bad placement", json: `[{"id": "a", "type": "symbol", "layout": {"symbol-placement": "area"}}]`},
		{name: "duplicate", json: `[{"id": "a", "type": "fill"}, {"id": "a", "type": "line"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLayers([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestFilter(t *testing.T) {
	data := tiledata.NewBuilder().
		AddFeature("l", tiledata.Point, map[string]any{"class": "primary", "rank": 3.}, 9, nil).
		AddFeature("l", tiledata.LineString, map[string]any{"class": "minor"}, -1, nil).
		Build()
	layer, _ := data.Layer("l")
	point, line := layer.Feature(0), layer.Feature(1)

	tests := []struct {
		name   string
		filter []any
		point  bool
		line   bool
	}{
		{name: "equal", filter: []any{"==", "class", "primary"}, point: true},
		{name: "not equal", filter: []any{"!=", "class", "primary"}, line: true},
		{name: "numbers", filter: []any{"==", "rank", 3.}, point: true},
		{name: "type", filter: []any{"==", "$type", "LineString"}, line: true},
		{name: "id", filter: []any{"==", "$id", 9.}, point: true},
		{name: "in", filter: []any{"in", "class", "minor", "primary"}, point: true, line: true},
		{name: "not in", filter: []any{"!in", "class", "minor"}, point: true},
		{name: "has", filter: []any{"has", "rank"}, point: true},
		{name: "not has", filter: []any{"!has", "rank"}, line: true},
		{name: "any", filter: []any{"any", []any{"has", "rank"}, []any{"==", "class", "minor"}}, point: true, line: true},
		{name: "none", filter: []any{"none", []any{"has", "rank"}}, line: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.point, f.Match(point))
			assert.Equal(t, tt.line, f.Match(line))
		})
	}
}
