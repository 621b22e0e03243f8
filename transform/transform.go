// Package transform describes the camera: where the map is centered, how far it is zoomed,
// how it is rotated and how large the viewport is. Positions are in world pixels, the
// web mercator plane scaled to TileSize * 2^zoom pixels.
package transform

import (
	"math"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/mathhelp"
	"github.com/pdok/mosaic/tiledata"
	"github.com/pdok/mosaic/tileid"
)

const (
	// TileSize is the size in pixels of a tile at its own zoom level.
	TileSize = 512
	// MaxLatitude is where web mercator ends.
	MaxLatitude = 85.051128779806604
	// FieldOfView is the vertical field of view of the camera, in radians.
	FieldOfView = 0.6435011087932844
	// maxPitchStretch caps how far a pitched viewport reaches towards the horizon.
	maxPitchStretch = 3
)

type ZoomMode uint8

const (
	// Floor picks the deepest zoom level that is not sharper than the screen, for vector tiles.
	Floor ZoomMode = iota
	// Round picks the nearest zoom level, for raster tiles.
	Round
)

// State is the camera. Bearing and Pitch are in degrees, the viewport size in pixels.
type State struct {
	Center  orb.Point
	Zoom    float64
	Bearing float64
	Pitch   float64
	Width   float64
	Height  float64
}

// Scale is 2^zoom.
func (s State) Scale() float64 {
	return mathhelp.Exp2(s.Zoom)
}

// WorldSize is the width of one world copy in pixels.
func (s State) WorldSize() float64 {
	return TileSize * s.Scale()
}

// Angle is the bearing in radians.
func (s State) Angle() float64 {
	return s.Bearing * math.Pi / 180
}

// PitchRadians is the pitch in radians.
func (s State) PitchRadians() float64 {
	return s.Pitch * math.Pi / 180
}

// Project converts lon/lat into world pixels. Latitudes beyond web mercator are clamped.
func (s State) Project(p orb.Point) orb.Point {
	worldSize := s.WorldSize()
	lat := mathhelp.Clamp(p.Lat(), -MaxLatitude, MaxLatitude)
	x := (180 + p.Lon()) / 360
	y := (180 - 180/math.Pi*math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))) / 360
	return orb.Point{x * worldSize, y * worldSize}
}

// Unproject converts world pixels into lon/lat.
func (s State) Unproject(p orb.Point) orb.Point {
	worldSize := s.WorldSize()
	lon := p[0]/worldSize*360 - 180
	y2 := 180 - p[1]/worldSize*360
	lat := 360/math.Pi*math.Atan(math.Exp(y2*math.Pi/180)) - 90
	return orb.Point{lon, lat}
}

// CenterPoint is the center in world pixels.
func (s State) CenterPoint() orb.Point {
	return s.Project(s.Center)
}

// CoveringZoom is the zoom level of tiles of tileSize pixels that fits the current zoom.
func (s State) CoveringZoom(tileSize float64, mode ZoomMode) float64 {
	z := s.Zoom + math.Log2(TileSize/tileSize)
	if mode == Round {
		return math.Round(z)
	}
	return math.Floor(z)
}

// ScreenMatrix maps world pixels to screen pixels. Pitch is left out, an affine matrix
// cannot express perspective.
func (s State) ScreenMatrix() gg.Matrix {
	c := s.CenterPoint()
	return gg.Translate(s.Width/2, s.Height/2).
		Multiply(gg.Rotate(-s.Angle())).
		Multiply(gg.Translate(-c[0], -c[1]))
}

// ViewportCorners are the screen corners in world pixels, clockwise from the top left. With
// pitch the top edge moves away towards the horizon.
func (s State) ViewportCorners() [4]orb.Point {
	top := 0.
	if s.Pitch > 0 {
		stretch := math.Min(1/math.Cos(s.PitchRadians()), maxPitchStretch)
		top = s.Height/2 - s.Height/2*stretch
	}
	inverse := s.ScreenMatrix().Invert()
	var corners [4]orb.Point
	for i, p := range []gg.Point{gg.Pt(0, top), gg.Pt(s.Width, top), gg.Pt(s.Width, s.Height), gg.Pt(0, s.Height)} {
		w := inverse.TransformPoint(p)
		corners[i] = orb.Point{w.X, w.Y}
	}
	return corners
}

// TileWorldSize is the size in world pixels of a tile at zoom z.
func (s State) TileWorldSize(z uint8) float64 {
	return s.WorldSize() / float64(uint64(1)<<z)
}

// TileOrigin is the top left corner of a tile in world pixels, world copy included.
func (s State) TileOrigin(id tileid.UnwrappedTileID) orb.Point {
	size := s.TileWorldSize(id.Canonical.Z)
	return orb.Point{float64(id.WorldX()) * size, float64(id.Canonical.Y) * size}
}

// TileMatrix maps tile units of id to screen pixels.
func (s State) TileMatrix(id tileid.UnwrappedTileID) gg.Matrix {
	origin := s.TileOrigin(id)
	scale := s.TileWorldSize(id.Canonical.Z) / tiledata.Extent
	return s.ScreenMatrix().
		Multiply(gg.Translate(origin[0], origin[1])).
		Multiply(gg.Scale(scale, scale))
}

// CollisionConfig is the camera as the collision index needs it.
func (s State) CollisionConfig() collision.Config {
	cameraToCenter := 0.5 / math.Tan(FieldOfView/2) * s.Height
	return collision.Config{
		Angle:                  s.Angle(),
		Pitch:                  s.PitchRadians(),
		CameraToCenterDistance: cameraToCenter,
		CameraToTileDistance:   cameraToCenter,
	}
}

// CollisionProjection maps tile units of id into the collision space shared by all tiles:
// unrotated world pixels relative to the center. The collision index applies the bearing.
func (s State) CollisionProjection(id tileid.UnwrappedTileID) collision.Projection {
	origin := s.TileOrigin(id)
	c := s.CenterPoint()
	return collision.Projection{
		Scale:  s.TileWorldSize(id.Canonical.Z) / tiledata.Extent,
		Offset: [2]float64{origin[0] - c[0], origin[1] - c[1]},
	}
}
