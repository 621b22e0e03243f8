package tile

import (
	"go.uber.org/zap"

	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/tileid"
)

// base is the part of a tile that does not depend on the kind of data.
type base struct {
	id         tileid.OverscaledTileID
	observer   Observer
	state      atomicState
	necessity  Necessity
	loader     *Loader
	renderable bool
}

// init sets b up in place, base holds an atomic and must not be copied.
func (b *base) init(id tileid.OverscaledTileID, observer Observer) {
	b.id = id
	b.observer = observer
	b.state.Store(Initial)
}

func (b *base) ID() tileid.OverscaledTileID {
	return b.id
}

func (b *base) State() State {
	return b.state.Load()
}

func (b *base) IsRenderable() bool {
	return b.renderable && b.State() != Obsolete
}

func (b *base) IsLoaded() bool {
	return b.State() == Parsed
}

func (b *base) HasTriedCache() bool {
	return b.loader != nil && b.loader.Tried()
}

func (b *base) Necessity() Necessity {
	return b.necessity
}

func (b *base) SetNecessity(n Necessity) {
	b.necessity = n
	if b.loader == nil || b.State() == Obsolete {
		return
	}
	loading := b.loader.SetNecessity(n)
	switch s := b.State(); {
	case loading && s == Initial:
		b.state.Store(Loading)
	case !loading && s == Loading:
		b.state.Store(Initial)
	}
}

// response sorts out a file source answer. It returns false when there is nothing to apply.
func (b *base) response(resp filesource.Response, parseErr error) bool {
	if b.State() == Obsolete {
		return false
	}
	if resp.Error != nil && !resp.Error.Permanent() {
		logging.L().Warn("loading tile failed", zap.Stringer("tile", b.id), zap.Error(resp.Error))
		b.changed(resp.Error)
		return false
	}
	if b.loader != nil {
		b.loader.Delivered()
	}
	if resp.Error != nil {
		logging.L().Debug("tile not found, leaving it empty", zap.Stringer("tile", b.id))
	}
	if parseErr != nil {
		logging.L().Warn("parsing tile failed", zap.Stringer("tile", b.id), zap.Error(parseErr))
	}
	return true
}

func (b *base) changed(err error) {
	if b.observer == nil {
		return
	}
	if err != nil {
		b.observer.OnTileError(b.id, err)
		return
	}
	b.observer.OnTileChanged(b.id)
}

// close marks the tile obsolete and reports whether it was not already.
func (b *base) close() bool {
	if b.State() == Obsolete {
		return false
	}
	b.state.Store(Obsolete)
	if b.loader != nil {
		b.loader.Cancel()
	}
	return true
}
