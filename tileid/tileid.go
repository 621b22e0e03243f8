// Package tileid implements the tile coordinate algebra: canonical (z/x/y) ids,
// unwrapped ids that carry a world copy offset, and overscaled ids that reuse
// the data of a shallower tile at a deeper zoom.
//
// All types are small immutable values, safe to copy and to use as map keys.
package tileid

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/pdok/mosaic/mathhelp"
)

const (
	// MaxZoom is the deepest canonical zoom level a CanonicalTileID can have.
	MaxZoom = 31
	// MaxPackedZoom is the deepest canonical zoom level that ToUint64 can pack without loss.
	MaxPackedZoom = 23

	wrapBits = 8
	zoomBits = 5
	ordBits  = 23
	wrapBias = 1 << (wrapBits - 1)
)

// CanonicalTileID is a tile in the [0, 2^z) range of one world copy.
type CanonicalTileID struct {
	Z uint8
	X uint32
	Y uint32
}

// NewCanonical returns a validated CanonicalTileID. It panics when x or y fall outside the zoom level.
func NewCanonical(z uint8, x, y uint32) CanonicalTileID {
	c := CanonicalTileID{Z: z, X: x, Y: y}
	if !c.Valid() {
		panic(fmt.Errorf("invalid canonical tile id %v: x and y should be < 2^%d", c, z))
	}
	return c
}

func (c CanonicalTileID) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	dim := uint64(1) << c.Z
	return uint64(c.X) < dim && uint64(c.Y) < dim
}

// ScaledTo returns the ancestor at z (z <= c.Z) or the top-left descendant at z (z > c.Z).
func (c CanonicalTileID) ScaledTo(z uint8) CanonicalTileID {
	if z <= c.Z {
		d := c.Z - z
		return CanonicalTileID{Z: z, X: c.X >> d, Y: c.Y >> d}
	}
	d := z - c.Z
	return CanonicalTileID{Z: z, X: c.X << d, Y: c.Y << d}
}

// Parent returns the ancestor at zoom z. z must be smaller than c.Z.
func (c CanonicalTileID) Parent(z uint8) CanonicalTileID {
	if z >= c.Z {
		panic(fmt.Errorf("parent zoom %d of %v should be smaller than %d", z, c, c.Z))
	}
	return c.ScaledTo(z)
}

// IsChildOf reports whether c lies strictly below parent in the quadtree.
func (c CanonicalTileID) IsChildOf(parent CanonicalTileID) bool {
	if parent.Z >= c.Z {
		return false
	}
	d := c.Z - parent.Z
	return parent.X == c.X>>d && parent.Y == c.Y>>d
}

// Children returns the four quadrants one zoom level deeper, in
// top-left, top-right, bottom-left, bottom-right order.
func (c CanonicalTileID) Children() [4]CanonicalTileID {
	z := c.Z + 1
	x := c.X * 2
	y := c.Y * 2
	return [4]CanonicalTileID{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

func (c CanonicalTileID) Less(o CanonicalTileID) bool {
	if c.Z != o.Z {
		return c.Z < o.Z
	}
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

func (c CanonicalTileID) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Maptile converts to the orb representation.
func (c CanonicalTileID) Maptile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// FromMaptile converts from the orb representation.
func FromMaptile(t maptile.Tile) CanonicalTileID {
	return NewCanonical(uint8(t.Z), t.X, t.Y)
}

// Bound is the lon/lat bounding box of the tile.
func (c CanonicalTileID) Bound() orb.Bound {
	return c.Maptile().Bound()
}

// UnwrappedTileID is a canonical tile in a specific world copy. Wrap is the signed
// number of world widths between this copy and the primary world.
type UnwrappedTileID struct {
	Wrap      int16
	Canonical CanonicalTileID
}

// Unwrapped builds an UnwrappedTileID from a world x that may lie outside [0, 2^z).
// y is clamped into the valid range.
func Unwrapped(z uint8, x, y int64) UnwrappedTileID {
	dim := int64(1) << z
	wrap := int64(mathhelp.FloorDiv(int(x), int(dim)))
	y = mathhelp.Clamp(y, 0, dim-1)
	return UnwrappedTileID{
		Wrap:      int16(wrap),
		Canonical: NewCanonical(z, uint32(x-wrap*dim), uint32(y)),
	}
}

// WorldX is the x ordinate including the world copy offset.
func (u UnwrappedTileID) WorldX() int64 {
	return int64(u.Canonical.X) + int64(u.Wrap)*(int64(1)<<u.Canonical.Z)
}

func (u UnwrappedTileID) IsChildOf(parent UnwrappedTileID) bool {
	return u.Wrap == parent.Wrap && u.Canonical.IsChildOf(parent.Canonical)
}

func (u UnwrappedTileID) Children() [4]UnwrappedTileID {
	var children [4]UnwrappedTileID
	for i, c := range u.Canonical.Children() {
		children[i] = UnwrappedTileID{Wrap: u.Wrap, Canonical: c}
	}
	return children
}

// OverscaleTo turns this tile into the data tile for render zoom overscaledZ.
func (u UnwrappedTileID) OverscaleTo(overscaledZ uint8) OverscaledTileID {
	return NewOverscaled(overscaledZ, u.Wrap, u.Canonical)
}

func (u UnwrappedTileID) Less(o UnwrappedTileID) bool {
	if u.Wrap != o.Wrap {
		return u.Wrap < o.Wrap
	}
	return u.Canonical.Less(o.Canonical)
}

func (u UnwrappedTileID) String() string {
	if u.Wrap == 0 {
		return u.Canonical.String()
	}
	return fmt.Sprintf("%v(wrap %d)", u.Canonical, u.Wrap)
}

// OverscaledTileID is the key of a tile in the pyramid. OverscaledZ is the zoom level the
// tile is rendered at; Canonical addresses the data, which may come from a shallower level
// when the source has no data that deep.
type OverscaledTileID struct {
	OverscaledZ uint8
	Wrap        int16
	Canonical   CanonicalTileID
}

// NewOverscaled panics when overscaledZ is smaller than the canonical zoom.
func NewOverscaled(overscaledZ uint8, wrap int16, canonical CanonicalTileID) OverscaledTileID {
	if overscaledZ < canonical.Z {
		panic(fmt.Errorf("overscaled zoom %d should be >= canonical zoom of %v", overscaledZ, canonical))
	}
	return OverscaledTileID{OverscaledZ: overscaledZ, Wrap: wrap, Canonical: canonical}
}

// OverscaleFactor is 2^(OverscaledZ - Canonical.Z).
func (o OverscaledTileID) OverscaleFactor() uint32 {
	return 1 << (o.OverscaledZ - o.Canonical.Z)
}

// ScaledTo moves the tile to overscaled zoom z. Above the canonical zoom only the
// overscale level changes; below it the canonical tile is replaced by its ancestor.
func (o OverscaledTileID) ScaledTo(z uint8) OverscaledTileID {
	if z >= o.Canonical.Z {
		return OverscaledTileID{OverscaledZ: z, Wrap: o.Wrap, Canonical: o.Canonical}
	}
	return OverscaledTileID{OverscaledZ: z, Wrap: o.Wrap, Canonical: o.Canonical.ScaledTo(z)}
}

// Parent returns the tile at overscaled zoom z (z < OverscaledZ). The parent of an
// overscaled tile at the same canonical zoom is the same data at a lower OverscaledZ.
func (o OverscaledTileID) Parent(z uint8) OverscaledTileID {
	if z >= o.OverscaledZ {
		panic(fmt.Errorf("parent zoom %d of %v should be smaller than %d", z, o, o.OverscaledZ))
	}
	return o.ScaledTo(z)
}

// Children returns the tiles one overscaled zoom deeper. At or beyond sourceMaxZoom the
// data cannot be split any further, so the only child is the same data overscaled once more.
func (o OverscaledTileID) Children(sourceMaxZoom uint8) []OverscaledTileID {
	if o.OverscaledZ >= sourceMaxZoom {
		return []OverscaledTileID{{OverscaledZ: o.OverscaledZ + 1, Wrap: o.Wrap, Canonical: o.Canonical}}
	}
	children := make([]OverscaledTileID, 0, 4)
	for _, c := range o.Canonical.Children() {
		children = append(children, OverscaledTileID{OverscaledZ: o.OverscaledZ + 1, Wrap: o.Wrap, Canonical: c})
	}
	return children
}

// IsChildOf requires a strictly deeper overscaled zoom and the same world copy.
func (o OverscaledTileID) IsChildOf(parent OverscaledTileID) bool {
	if o.Wrap != parent.Wrap || o.OverscaledZ <= parent.OverscaledZ {
		return false
	}
	return o.Canonical == parent.Canonical || o.Canonical.IsChildOf(parent.Canonical)
}

func (o OverscaledTileID) ToUnwrapped() UnwrappedTileID {
	return UnwrappedTileID{Wrap: o.Wrap, Canonical: o.Canonical}
}

// UnwrapTo returns the same tile in another world copy.
func (o OverscaledTileID) UnwrapTo(wrap int16) OverscaledTileID {
	return OverscaledTileID{OverscaledZ: o.OverscaledZ, Wrap: wrap, Canonical: o.Canonical}
}

// Less orders by wrap, overscaled zoom and then the canonical id.
func (o OverscaledTileID) Less(p OverscaledTileID) bool {
	if o.Wrap != p.Wrap {
		return o.Wrap < p.Wrap
	}
	if o.OverscaledZ != p.OverscaledZ {
		return o.OverscaledZ < p.OverscaledZ
	}
	return o.Canonical.Less(p.Canonical)
}

// ToUint64 packs the id into a key whose numeric order equals Less. It panics for
// canonical zoom levels beyond MaxPackedZoom or wraps outside [-128, 127].
func (o OverscaledTileID) ToUint64() uint64 {
	if o.Canonical.Z > MaxPackedZoom || o.Wrap < -wrapBias || o.Wrap >= wrapBias {
		panic(fmt.Errorf("cannot pack %v into 64 bits", o))
	}
	key := uint64(int64(o.Wrap) + wrapBias)
	key = key<<zoomBits | uint64(o.OverscaledZ)
	key = key<<zoomBits | uint64(o.Canonical.Z)
	key = key<<ordBits | uint64(o.Canonical.X)
	key = key<<ordBits | uint64(o.Canonical.Y)
	return key
}

func (o OverscaledTileID) String() string {
	s := o.Canonical.String()
	if o.OverscaledZ != o.Canonical.Z {
		s += fmt.Sprintf("=>%d", o.OverscaledZ)
	}
	if o.Wrap != 0 {
		s += fmt.Sprintf("(wrap %d)", o.Wrap)
	}
	return s
}
