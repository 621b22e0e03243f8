package style

import (
	"fmt"

	"github.com/pdok/mosaic/tiledata"
)

// Filter selects the features a layer draws.
type Filter interface {
	Match(f tiledata.GeometryTileFeature) bool
}

// ParseFilter decodes a filter expression: ["==", key, value], ["!=", key, value],
// ["in", key, values...], ["!in", key, values...], ["has", key], ["!has", key],
// ["all", filters...], ["any", filters...] and ["none", filters...]. The keys "$type" and
// "$id" refer to the geometry type and the feature id.
func ParseFilter(raw any) (Filter, error) {
	expr, ok := raw.([]any)
	if !ok || len(expr) == 0 {
		return nil, fmt.Errorf("filter should be a non-empty array, got %v", raw)
	}
	op, ok := expr[0].(string)
	if !ok {
		return nil, fmt.Errorf("filter operator should be a string, got %v", expr[0])
	}
	args := expr[1:]
	switch op {
	case "all", "any", "none":
		filters := make([]Filter, len(args))
		for i, a := range args {
			f, err := ParseFilter(a)
			if err != nil {
				return nil, err
			}
			filters[i] = f
		}
		return combined{op: op, filters: filters}, nil
	case "has", "!has":
		if len(args) != 1 {
			return nil, fmt.Errorf("%q takes one key", op)
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%q key should be a string", op)
		}
		return has{key: key, negate: op == "!has"}, nil
	case "==", "!=", "in", "!in":
		if len(args) < 1 || (op[len(op)-1] == '=' && len(args) != 2) {
			return nil, fmt.Errorf("wrong number of arguments for %q", op)
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%q key should be a string", op)
		}
		return in{key: key, values: args[1:], negate: op[0] == '!'}, nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", op)
	}
}

func value(f tiledata.GeometryTileFeature, key string) (any, bool) {
	switch key {
	case "$type":
		return f.Type().String(), true
	case "$id":
		id, ok := f.ID()
		if !ok {
			return nil, false
		}
		return float64(id), true
	default:
		return f.Value(key)
	}
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case float64:
		return numberEqual(av, b)
	case int64:
		return numberEqual(float64(av), b)
	case uint64:
		return numberEqual(float64(av), b)
	case int:
		return numberEqual(float64(av), b)
	default:
		return a == b
	}
}

func numberEqual(a float64, b any) bool {
	switch bv := b.(type) {
	case float64:
		return a == bv
	case int64:
		return a == float64(bv)
	case uint64:
		return a == float64(bv)
	case int:
		return a == float64(bv)
	default:
		return false
	}
}

type in struct {
	key    string
	values []any
	negate bool
}

func (f in) Match(feature tiledata.GeometryTileFeature) bool {
	v, ok := value(feature, f.key)
	found := false
	if ok {
		for _, candidate := range f.values {
			if equal(v, candidate) {
				found = true
				break
			}
		}
	}
	return found != f.negate
}

type has struct {
	key    string
	negate bool
}

func (f has) Match(feature tiledata.GeometryTileFeature) bool {
	_, ok := value(feature, f.key)
	return ok != f.negate
}

type combined struct {
	op      string
	filters []Filter
}

func (f combined) Match(feature tiledata.GeometryTileFeature) bool {
	switch f.op {
	case "all":
		for _, sub := range f.filters {
			if !sub.Match(feature) {
				return false
			}
		}
		return true
	case "any":
		for _, sub := range f.filters {
			if sub.Match(feature) {
				return true
			}
		}
		return false
	default:
		for _, sub := range f.filters {
			if sub.Match(feature) {
				return false
			}
		}
		return true
	}
}

// Matches applies the layer filter; layers without one match everything.
func (l *Layer) Matches(f tiledata.GeometryTileFeature) bool {
	return l.Filter == nil || l.Filter.Match(f)
}
