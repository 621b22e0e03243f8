// Package glyph provides the glyph metrics and icon sizes symbol layout depends on. Both
// managers live on the main goroutine and answer requests asynchronously.
package glyph

import (
	"strings"

	"github.com/go-spatial/geom"
)

// BaseSize is the font size in pixels glyph metrics are computed at.
const BaseSize = 24

// Range is a block of 256 code points, the unit glyphs are loaded in.
type Range struct {
	Start, End rune
}

func RangeOf(r rune) Range {
	start := r / 256 * 256
	return Range{Start: start, End: start + 255}
}

// Glyph is the metrics of one glyph at BaseSize. Bounds are relative to the pen position
// on the baseline, y pointing down.
type Glyph struct {
	ID      rune
	Advance float64
	Bounds  geom.Extent
}

// FontStack is the comma separated list of font names a layer asks for.
type FontStack = string

func StackName(fonts []string) FontStack {
	return strings.Join(fonts, ",")
}

// Dependencies are the glyphs needed per font stack.
type Dependencies map[FontStack]map[rune]struct{}

// Add records the runes of text for stack.
func (d Dependencies) Add(stack FontStack, text string) {
	set, ok := d[stack]
	if !ok {
		set = make(map[rune]struct{})
		d[stack] = set
	}
	for _, r := range text {
		set[r] = struct{}{}
	}
}

// Positions are the resolved glyphs per font stack.
type Positions map[FontStack]map[rune]Glyph

// Covers reports whether every dependency is resolved. Runes the font has no glyph for
// count as resolved: they are simply not drawn.
func (p Positions) Covers(deps Dependencies, loaded func(FontStack, Range) bool) bool {
	for stack, runes := range deps {
		for r := range runes {
			if _, ok := p[stack][r]; ok {
				continue
			}
			if loaded == nil || !loaded(stack, RangeOf(r)) {
				return false
			}
		}
	}
	return true
}

// Merge copies the glyphs of other into p.
func (p Positions) Merge(other Positions) {
	for stack, glyphs := range other {
		dst, ok := p[stack]
		if !ok {
			dst = make(map[rune]Glyph, len(glyphs))
			p[stack] = dst
		}
		for r, g := range glyphs {
			dst[r] = g
		}
	}
}
