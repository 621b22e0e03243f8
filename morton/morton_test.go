package morton

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deinterleave undoes Interleave.
func deinterleave(z Z) (x, y uint32) {
	zx := z
	zy := z >> 1
	for i := 0; i <= 5; i++ {
		zx = (zx | (zx >> shifts[i])) & masks[i]
		zy = (zy | (zy >> shifts[i])) & masks[i]
	}
	return uint32(zx), uint32(zy)
}

func TestInterleave(t *testing.T) {
	tests := []struct {
		x uint32
		y uint32
		z Z
	}{
		{x: 0b0, y: 0b0, z: 0b0},
		{x: 0b1, y: 0b1, z: 0b11},
		{x: 0b11, y: 0b0, z: 0b0101},
		{x: 0b0, y: 0b1, z: 0b10},
		{x: 0b1111111111111111, y: 0b0, z: 0b01010101010101010101010101010101},
		{x: math.MaxUint32, y: 0b0, z: 0b0101010101010101010101010101010101010101010101010101010101010101},
		{x: math.MaxUint32, y: math.MaxUint32, z: math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf(`Interleave(%b, %b)`, tt.x, tt.y), func(t *testing.T) {
			got := Interleave(tt.x, tt.y)
			require.Equalf(t, tt.z, got, `%032b and %032b should interleave into: %064b, got: %064b`, tt.x, tt.y, tt.z, got)
			x, y := deinterleave(got)
			assert.Equal(t, [2]uint32{tt.x, tt.y}, [2]uint32{x, y})
		})
	}
}

func TestNeighboursShareHighBits(t *testing.T) {
	// the four cells of an aligned 2x2 block only differ in the lowest two bits
	base := Interleave(6, 10)
	for _, c := range [][2]uint32{{7, 10}, {6, 11}, {7, 11}} {
		assert.Equal(t, base>>2, Interleave(c[0], c[1])>>2)
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		count float64
		cells [][2]uint32
	}{
		{name: "one cell", r: Range{3, 4, 3, 4}, count: 1, cells: [][2]uint32{{3, 4}}},
		{name: "row by row", r: Range{0, 0, 1, 1}, count: 4, cells: [][2]uint32{{0, 0}, {1, 0}, {0, 1}, {1, 1}}},
		{name: "inverted", r: Range{2, 0, 1, 0}, count: 0},
		{name: "at the edge", r: Range{math.MaxUint32, 0, math.MaxUint32, 1}, count: 2, cells: [][2]uint32{{math.MaxUint32, 0}, {math.MaxUint32, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.count, tt.r.Count())
			var got [][2]uint32
			tt.r.Each(func(z Z) bool {
				x, y := deinterleave(z)
				got = append(got, [2]uint32{x, y})
				return true
			})
			assert.Equal(t, tt.cells, got)
		})
	}
}

func TestRangeEachStops(t *testing.T) {
	n := 0
	Range{0, 0, 9, 9}.Each(func(Z) bool {
		n++
		return n < 3
	})
	assert.Equal(t, 3, n)
}

func TestHugeRangeCountDoesNotOverflow(t *testing.T) {
	assert.Equal(t, math.Pow(2, 64), Range{0, 0, math.MaxUint32, math.MaxUint32}.Count())
}
