// Package style holds the decoded style layers. Layers are immutable once decoded.
package style

import (
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gogpu/gg"
	"github.com/perimeterx/marshmallow"
)

type Type string

const (
	Fill   Type = "fill"
	Line   Type = "line"
	Circle Type = "circle"
	Symbol Type = "symbol"
	Raster Type = "raster"
)

// Layer is one style layer.
type Layer struct {
	ID string `validate:"required" json:"id"`
	// Type is decoded by hand, marshmallow skips string kinds with their own name.
	Type        Type    `validate:"required,oneof=fill line circle symbol raster" json:"-"`
	Source      string  `json:"source,omitempty"`
	SourceLayer string  `json:"source-layer,omitempty"`
	MinZoom     float64 `default:"0" validate:"gte=0,lte=24" json:"minzoom"`
	MaxZoom     float64 `default:"24" validate:"gtefield=MinZoom,lte=24" json:"maxzoom"`
	Visible     bool    `default:"true" json:"-"`

	Filter Filter `json:"-"`
	// Symbol is the decoded layout of symbol layers, nil for other types.
	Symbol *SymbolLayout `json:"-"`
	Paint  Paint         `json:"-"`
	// Layout holds the raw layout properties of every layer type.
	Layout map[string]any `json:"-"`
	// Raw holds the keys this package does not know about.
	Raw map[string]any `json:"-"`
}

// SymbolLayout is the layout of a symbol layer.
type SymbolLayout struct {
	// TextField may contain {property} tokens.
	TextField           string   `json:"text-field,omitempty"`
	TextFont            []string `default:"[\"Go Regular\"]" validate:"min=1" json:"text-font"`
	TextSize            float64  `default:"16" validate:"gt=0" json:"text-size"`
	TextPadding         float64  `default:"2" validate:"gte=0" json:"text-padding"`
	IconImage           string   `json:"icon-image,omitempty"`
	IconSize            float64  `default:"1" validate:"gt=0" json:"icon-size"`
	SymbolPlacement     string   `default:"point" validate:"oneof=point line" json:"symbol-placement"`
	SymbolAvoidEdges    bool     `json:"symbol-avoid-edges"`
	TextAllowOverlap    bool     `json:"text-allow-overlap"`
	IconAllowOverlap    bool     `json:"icon-allow-overlap"`
	TextIgnorePlacement bool     `json:"text-ignore-placement"`
	IconIgnorePlacement bool     `json:"icon-ignore-placement"`
	TextOptional        bool     `json:"text-optional"`
	IconOptional        bool     `json:"icon-optional"`
}

// Paint is the subset of paint properties the debug canvas draws with. The type prefix
// ("fill-", "line-", "circle-", "text-") is stripped.
type Paint struct {
	Color   gg.RGBA
	Opacity float64
	Width   float64
	Radius  float64
}

// IsVisible reports whether the layer draws at zoom.
func (l *Layer) IsVisible(zoom float64) bool {
	return l.Visible && zoom >= l.MinZoom && zoom < l.MaxZoom
}

func (l *Layer) UnmarshalJSON(data []byte) error {
	err := defaults.Set(l)
	if err != nil {
		return err
	}
	specials, err := marshmallow.Unmarshal(data, l, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	if rawType, ok := specials["type"]; ok {
		delete(specials, "type")
		t, isString := rawType.(string)
		if !isString {
			return fmt.Errorf(`layer %q: "type" should be a string`, l.ID)
		}
		l.Type = Type(t)
	}

	if rawFilter, ok := specials["filter"]; ok {
		delete(specials, "filter")
		if l.Filter, err = ParseFilter(rawFilter); err != nil {
			return fmt.Errorf("layer %q: %w", l.ID, err)
		}
	}

	l.Layout = map[string]any{}
	if rawLayout, ok := specials["layout"]; ok {
		delete(specials, "layout")
		if l.Layout, ok = rawLayout.(map[string]any); !ok {
			return fmt.Errorf(`layer %q: "layout" should be an object`, l.ID)
		}
	}
	if visibility, ok := l.Layout["visibility"]; ok {
		l.Visible = visibility != "none"
	}
	if l.Type == Symbol {
		if l.Symbol, err = unmarshalSymbolLayout(l.Layout); err != nil {
			return fmt.Errorf("layer %q: %w", l.ID, err)
		}
	}

	rawPaint := map[string]any{}
	if p, ok := specials["paint"]; ok {
		delete(specials, "paint")
		if rawPaint, ok = p.(map[string]any); !ok {
			return fmt.Errorf(`layer %q: "paint" should be an object`, l.ID)
		}
	}
	l.Paint = unmarshalPaint(l.Type, rawPaint)

	l.Raw = specials
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(l)
}

func unmarshalSymbolLayout(raw map[string]any) (*SymbolLayout, error) {
	var s SymbolLayout
	if err := defaults.Set(&s); err != nil {
		return nil, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if _, err = marshmallow.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err = validate.Struct(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func unmarshalPaint(t Type, raw map[string]any) Paint {
	prefix := string(t)
	if t == Symbol {
		prefix = "text"
	}
	p := Paint{Color: gg.RGB(0, 0, 0), Opacity: 1, Width: 1, Radius: 5}
	if c, ok := raw[prefix+"-color"].(string); ok {
		p.Color = gg.Hex(c)
	}
	if v, ok := raw[prefix+"-opacity"].(float64); ok {
		p.Opacity = v
	}
	if v, ok := raw[prefix+"-width"].(float64); ok {
		p.Width = v
	}
	if v, ok := raw[prefix+"-radius"].(float64); ok {
		p.Radius = v
	}
	return p
}

// LoadLayers decodes a JSON array of layers.
func LoadLayers(data []byte) ([]Layer, error) {
	var layers []Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		if _, ok := seen[l.ID]; ok {
			return nil, fmt.Errorf("duplicate layer id %q", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return layers, nil
}

// LayerIDs returns the ids in order.
func LayerIDs(layers []Layer) []string {
	ids := make([]string, len(layers))
	for i := range layers {
		ids[i] = layers[i].ID
	}
	return ids
}
