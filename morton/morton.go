// Package morton keys grid cells by interleaving their column and row bits,
// so that cells close to each other get keys close to each other.
package morton

type Z = uint64

var (
	masks = [...]uint64{
		0b0101010101010101010101010101010101010101010101010101010101010101,
		0b0011001100110011001100110011001100110011001100110011001100110011,
		0b0000111100001111000011110000111100001111000011110000111100001111,
		0b0000000011111111000000001111111100000000111111110000000011111111,
		0b0000000000000000111111111111111100000000000000001111111111111111,
		0b0000000000000000000000000000000011111111111111111111111111111111,
	}
	shifts = [...]uint64{0, 1, 2, 4, 8, 16}
)

// Interleave puts the bits of column x on the even and the bits of row y on the odd positions.
func Interleave(x, y uint32) Z {
	zx, zy := uint64(x), uint64(y)
	for i := 4; i >= 0; i-- {
		zx = (zx | (zx << shifts[i+1])) & masks[i]
		zy = (zy | (zy << shifts[i+1])) & masks[i]
	}
	return zx | (zy << 1)
}

// Range is a block of cells, both corners included.
type Range struct {
	X1, Y1, X2, Y2 uint32
}

// Count is the number of cells in r. It is a float so that huge ranges cannot overflow.
func (r Range) Count() float64 {
	if r.X2 < r.X1 || r.Y2 < r.Y1 {
		return 0
	}
	return (float64(r.X2-r.X1) + 1) * (float64(r.Y2-r.Y1) + 1)
}

// Each calls fn with the key of every cell in r, row by row, until fn returns false.
func (r Range) Each(fn func(Z) bool) {
	if r.Count() == 0 {
		return
	}
	for y := uint64(r.Y1); y <= uint64(r.Y2); y++ {
		for x := uint64(r.X1); x <= uint64(r.X2); x++ {
			if !fn(Interleave(uint32(x), uint32(y))) {
				return
			}
		}
	}
}
