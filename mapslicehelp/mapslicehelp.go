package mapslicehelp

import (
	"github.com/umpc/go-sortedmap"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/constraints"
)

func OrderedMapKeys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	l := make([]K, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Key
		i++
	}
	return l
}

func OrderedMapValues[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []V {
	l := make([]V, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Value
		i++
	}
	return l
}

// SortedMapValues returns the values of m in sort order, asserted to V.
func SortedMapValues[V any](m *sortedmap.SortedMap) []V {
	keys := m.Keys()
	l := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := m.Get(k); ok {
			l = append(l, v.(V))
		}
	}
	return l
}

func MaxValue[K comparable, V constraints.Ordered](m map[K]V, k K, v V) {
	if cur, ok := m[k]; !ok || v > cur {
		m[k] = v
	}
}
