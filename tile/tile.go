// Package tile holds the tiles a pyramid retains. Tiles are created, updated and closed on the
// main goroutine. Their state is the only field other goroutines read.
package tile

import (
	"fmt"
	"sync/atomic"

	"github.com/pdok/mosaic/bucket"
	"github.com/pdok/mosaic/collision"
	"github.com/pdok/mosaic/featureindex"
	"github.com/pdok/mosaic/style"
	"github.com/pdok/mosaic/tileid"
	"github.com/pdok/mosaic/worker"
)

type State int32

const (
	Invalid State = iota
	// Initial tiles have not requested their data yet.
	Initial
	// Loading tiles wait for their data.
	Loading
	// Loaded tiles have data (or know they have none) and wait for their layout.
	Loaded
	// Parsed tiles have applied the result for their latest input.
	Parsed
	// Obsolete tiles are closed.
	Obsolete
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Initial:
		return "initial"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Parsed:
		return "parsed"
	case Obsolete:
		return "obsolete"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// atomicState can be read from any goroutine. Only the main goroutine writes it.
type atomicState struct {
	v atomic.Int32
}

func (s *atomicState) Load() State {
	return State(s.v.Load())
}

func (s *atomicState) Store(state State) {
	s.v.Store(int32(state))
}

type Necessity uint8

const (
	// Optional tiles are kept when they are there but do not need to load.
	Optional Necessity = iota
	// Required tiles load their data.
	Required
)

func (n Necessity) String() string {
	if n == Required {
		return "required"
	}
	return "optional"
}

// Observer is told about tile changes on the main goroutine.
type Observer interface {
	OnTileChanged(id tileid.OverscaledTileID)
	OnTileError(id tileid.OverscaledTileID, err error)
}

type Tile interface {
	ID() tileid.OverscaledTileID
	State() State
	// IsRenderable reports whether the tile has something to draw, possibly from an earlier input.
	IsRenderable() bool
	// IsLoaded reports whether the tile reached a result for its latest input.
	IsLoaded() bool
	// IsComplete reports whether the tile is loaded and no symbol waits for glyphs or icons.
	IsComplete() bool
	SetNecessity(Necessity)
	SetLayers([]style.Layer)
	SetPlacementConfig(worker.PlacementConfig)
	Buckets() map[string]bucket.Bucket
	Bucket(layerID string) (bucket.Bucket, bool)
	FeatureIndex() *featureindex.FeatureIndex
	CollisionIndex() *collision.Index
	QueryRenderedFeatures(q featureindex.Query) []featureindex.QueriedFeature
	// HasTriedCache reports whether the tile requested its data at least once.
	HasTriedCache() bool
	Close()
}
