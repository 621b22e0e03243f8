package tilecover

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/transform"
)

func unwrapped(wrap int16, z uint8, x, y uint32) tileid.UnwrappedTileID {
	return tileid.UnwrappedTileID{Wrap: wrap, Canonical: tileid.NewCanonical(z, x, y)}
}

func TestViewport(t *testing.T) {
	tests := []struct {
		name  string
		state transform.State
		z     uint8
		want  []tileid.UnwrappedTileID
	}{
		{
			name:  "whole world",
			state: transform.State{Zoom: 1, Width: 1024, Height: 1024},
			z:     1,
			want:  []tileid.UnwrappedTileID{unwrapped(0, 1, 0, 0), unwrapped(0, 1, 0, 1), unwrapped(0, 1, 1, 0), unwrapped(0, 1, 1, 1)},
		},
		{
			name:  "antimeridian",
			state: transform.State{Center: orb.Point{180, 0}, Zoom: 1, Width: 512, Height: 512},
			z:     1,
			want:  []tileid.UnwrappedTileID{unwrapped(0, 1, 1, 0), unwrapped(0, 1, 1, 1), unwrapped(1, 1, 0, 0), unwrapped(1, 1, 0, 1)},
		},
		{
			name:  "nearest first",
			state: transform.State{Center: orb.Point{-45, -10}, Zoom: 2, Width: 600, Height: 200},
			z:     2,
			want: []tileid.UnwrappedTileID{
				unwrapped(0, 2, 1, 2), unwrapped(0, 2, 1, 1), unwrapped(0, 2, 0, 2),
				unwrapped(0, 2, 2, 2), unwrapped(0, 2, 0, 1), unwrapped(0, 2, 2, 1),
			},
		},
		{
			name:  "lower zoom than the camera",
			state: transform.State{Center: orb.Point{-45, 0}, Zoom: 4, Width: 100, Height: 100},
			z:     1,
			want:  []tileid.UnwrappedTileID{unwrapped(0, 1, 0, 0), unwrapped(0, 1, 0, 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Viewport(tt.state, tt.z)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

// every point of a rotated and pitched viewport lies in a covering tile
func TestViewportCoversWithoutGaps(t *testing.T) {
	for _, bearing := range []float64{0, 30, 45, 170} {
		for _, pitch := range []float64{0, 50} {
			s := transform.State{Center: orb.Point{4.9, 52.4}, Zoom: 5.5, Bearing: bearing, Pitch: pitch, Width: 900, Height: 700}
			z := uint8(s.CoveringZoom(512, transform.Floor))
			cover := make(map[tileid.UnwrappedTileID]bool)
			for _, id := range Viewport(s, z) {
				assert.Equal(t, z, id.Canonical.Z)
				cover[id] = true
			}

			corners := s.ViewportCorners()
			size := s.TileWorldSize(z)
			dim := int64(1) << z
			const steps = 20
			for i := 0; i <= steps; i++ {
				for j := 0; j <= steps; j++ {
					u, v := float64(i)/steps, float64(j)/steps
					top := lerp(corners[0], corners[1], u)
					bottom := lerp(corners[3], corners[2], u)
					p := lerp(top, bottom, v)
					y := int64(math.Floor(p[1] / size))
					if y < 0 || y >= dim {
						continue
					}
					// nudge points on tile edges into the tile that is certainly covered
					x := int64(math.Floor(p[0] / size))
					id := tileid.Unwrapped(z, x, y)
					if !cover[id] && p[0]/size == math.Floor(p[0]/size) {
						id = tileid.Unwrapped(z, x-1, y)
					}
					require.Truef(t, cover[id], "bearing %v pitch %v: %v not covered", bearing, pitch, id)
				}
			}
		}
	}
}

func lerp(a, b orb.Point, f float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
}

func TestBoundsCoversWorld(t *testing.T) {
	tests := []struct {
		name  string
		bound orb.Bound
	}{
		{name: "up to the antimeridian", bound: orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}},
		{name: "web mercator world", bound: orb.Bound{Min: orb.Point{-180, -85.051129}, Max: orb.Point{180, 85.051129}}},
		{name: "up to the poles", bound: orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for z := uint8(0); z <= 4; z++ {
				got := Bounds(tt.bound, z)
				dim := uint32(1) << z
				require.Len(t, got, int(dim*dim))
				assert.Equal(t, tileid.NewCanonical(z, 0, 0), got[0])
				assert.Equal(t, tileid.NewCanonical(z, dim-1, dim-1), got[len(got)-1])
			}
		})
	}
}

func TestBoundsOnTheAntimeridian(t *testing.T) {
	got := Bounds(orb.Bound{Min: orb.Point{170, -5}, Max: orb.Point{180, 10}}, 1)
	assert.Equal(t, []tileid.CanonicalTileID{tileid.NewCanonical(1, 1, 0), tileid.NewCanonical(1, 1, 1)}, got)
}

func TestGeometry(t *testing.T) {
	got, err := Geometry(orb.Point{4.9, 52.4}, 10)
	require.NoError(t, err)
	assert.Equal(t, []tileid.CanonicalTileID{tileid.NewCanonical(10, 525, 336)}, got)

	world := orb.Bound{Min: orb.Point{-179.9, -85}, Max: orb.Point{179.9, 85}}.ToPolygon()
	got, err = Geometry(world, 2)
	require.NoError(t, err)
	assert.Len(t, got, 16)
}
