package tileid

import (
	"fmt"
	"slices"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalTileID_IsChildOfParent(t *testing.T) {
	for z2 := uint8(1); z2 <= 12; z2++ {
		dim := uint32(1) << z2
		for _, xy := range [][2]uint32{{0, 0}, {dim - 1, dim - 1}, {dim / 2, dim / 3}, {dim - 1, 0}, {1, dim - 1}} {
			c := NewCanonical(z2, xy[0], xy[1])
			for z1 := uint8(0); z1 < z2; z1++ {
				parent := c.Parent(z1)
				assert.Truef(t, c.IsChildOf(parent), "%v should be a child of %v", c, parent)
				assert.Falsef(t, parent.IsChildOf(c), "%v should not be a child of %v", parent, c)
			}
		}
	}
}

func TestOverscaledTileID_IsChildOfParent(t *testing.T) {
	tests := []struct {
		name string
		id   OverscaledTileID
	}{
		{name: "not overscaled", id: NewOverscaled(10, 0, NewCanonical(10, 512, 300))},
		{name: "overscaled", id: NewOverscaled(17, 0, NewCanonical(14, 8000, 5000))},
		{name: "wrapped", id: NewOverscaled(5, -2, NewCanonical(5, 3, 30))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for z := uint8(0); z < tt.id.OverscaledZ; z++ {
				parent := tt.id.Parent(z)
				assert.True(t, tt.id.IsChildOf(parent), parent.String())
				assert.Equal(t, tt.id.Wrap, parent.Wrap)
			}
		})
	}
}

func TestOverscaledTileID_ParentOfOverscaledLowersOnlyOverscaledZ(t *testing.T) {
	id := NewOverscaled(16, 0, NewCanonical(14, 100, 200))
	parent := id.Parent(15)
	assert.Equal(t, NewOverscaled(15, 0, NewCanonical(14, 100, 200)), parent)
	assert.Equal(t, uint32(2), parent.OverscaleFactor())
	assert.Equal(t, NewOverscaled(13, 0, NewCanonical(13, 50, 100)), id.Parent(13))
}

func TestIsChildOfRequiresSameWrap(t *testing.T) {
	child := NewOverscaled(3, 1, NewCanonical(3, 2, 2))
	parent := NewOverscaled(2, 0, NewCanonical(2, 1, 1))
	assert.False(t, child.IsChildOf(parent))
	assert.True(t, child.IsChildOf(parent.UnwrapTo(1)))
	assert.False(t, child.IsChildOf(child))
}

func TestParentChildrenRoundTrip(t *testing.T) {
	for z := uint8(1); z <= 10; z++ {
		dim := uint32(1) << z
		for _, xy := range [][2]uint32{{0, 0}, {dim - 1, 0}, {dim / 2, dim - 1}, {dim / 3, dim / 5}} {
			id := NewOverscaled(z, 0, NewCanonical(z, xy[0], xy[1]))
			for _, maxZoom := range []uint8{z, z + 1, 22} {
				children := id.Parent(z - 1).Children(maxZoom)
				require.Len(t, children, 4)
				assert.True(t, slices.ContainsFunc(children, func(c OverscaledTileID) bool {
					return c.Canonical == id.Canonical
				}), fmt.Sprintf("%v with max zoom %d", id, maxZoom))
			}
		}
	}
}

func TestOverscaledTileID_ChildrenBeyondMaxZoom(t *testing.T) {
	id := NewOverscaled(14, 0, NewCanonical(14, 10, 10))
	children := id.Children(14)
	require.Len(t, children, 1)
	assert.Equal(t, NewOverscaled(15, 0, NewCanonical(14, 10, 10)), children[0])
	assert.Equal(t, uint32(2), children[0].OverscaleFactor())
}

func TestCanonicalTileID_Children(t *testing.T) {
	got := NewCanonical(1, 1, 0).Children()
	want := [4]CanonicalTileID{{2, 2, 0}, {2, 3, 0}, {2, 2, 1}, {2, 3, 1}}
	assert.Equal(t, want, got)
}

func TestNewCanonicalPanicsOutsideZoomLevel(t *testing.T) {
	assert.Panics(t, func() { NewCanonical(2, 4, 0) })
	assert.Panics(t, func() { NewOverscaled(2, 0, NewCanonical(3, 0, 0)) })
	assert.Panics(t, func() { NewCanonical(3, 1, 1).Parent(3) })
}

func TestUnwrapped(t *testing.T) {
	tests := []struct {
		name string
		z    uint8
		x, y int64
		want UnwrappedTileID
	}{
		{name: "inside", z: 2, x: 3, y: 1, want: UnwrappedTileID{0, CanonicalTileID{2, 3, 1}}},
		{name: "east", z: 2, x: 5, y: 1, want: UnwrappedTileID{1, CanonicalTileID{2, 1, 1}}},
		{name: "west", z: 2, x: -1, y: 1, want: UnwrappedTileID{-1, CanonicalTileID{2, 3, 1}}},
		{name: "far west", z: 1, x: -4, y: 0, want: UnwrappedTileID{-2, CanonicalTileID{1, 0, 0}}},
		{name: "y clamped", z: 2, x: 0, y: 9, want: UnwrappedTileID{0, CanonicalTileID{2, 0, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unwrapped(tt.z, tt.x, tt.y)
			assert.Equal(t, tt.want, got)
			if tt.y >= 0 && tt.y < 1<<tt.z {
				assert.Equal(t, tt.x, got.WorldX())
			}
		})
	}
}

func TestToUint64ConsistentWithLess(t *testing.T) {
	ids := []OverscaledTileID{
		NewOverscaled(3, -1, NewCanonical(3, 7, 7)),
		NewOverscaled(0, 0, NewCanonical(0, 0, 0)),
		NewOverscaled(4, 0, NewCanonical(3, 1, 2)),
		NewOverscaled(3, 0, NewCanonical(3, 1, 2)),
		NewOverscaled(3, 0, NewCanonical(3, 2, 0)),
		NewOverscaled(3, 0, NewCanonical(3, 1, 3)),
		NewOverscaled(1, 1, NewCanonical(1, 0, 0)),
		NewOverscaled(23, 0, NewCanonical(23, 1<<23-1, 1<<23-1)),
	}
	for _, a := range ids {
		for _, b := range ids {
			assert.Equalf(t, a.Less(b), a.ToUint64() < b.ToUint64(), "%v vs %v", a, b)
			assert.Equalf(t, a == b, a.ToUint64() == b.ToUint64(), "%v vs %v", a, b)
		}
	}
	assert.Panics(t, func() { NewOverscaled(24, 0, NewCanonical(24, 0, 0)).ToUint64() })
}

func TestMaptileConversion(t *testing.T) {
	c := NewCanonical(5, 16, 10)
	mt := c.Maptile()
	assert.Equal(t, maptile.New(16, 10, 5), mt)
	assert.Equal(t, c, FromMaptile(mt))
	b := NewCanonical(0, 0, 0).Bound()
	assert.InDelta(t, -180, b.Min[0], 1e-9)
	assert.InDelta(t, 180, b.Max[0], 1e-9)
}

func TestString(t *testing.T) {
	assert.Equal(t, "3/1/2", NewCanonical(3, 1, 2).String())
	assert.Equal(t, "3/1/2=>5(wrap -1)", NewOverscaled(5, -1, NewCanonical(3, 1, 2)).String())
	assert.Equal(t, "3/1/2(wrap 2)", UnwrappedTileID{2, NewCanonical(3, 1, 2)}.String())
}
