package tile

import (
	"go.uber.org/zap"

	"github.com/pdok/mosaic/filesource"
	"github.com/pdok/mosaic/logging"
	"github.com/pdok/mosaic/tileid"
)

// Loader requests the data of one tile from a file source. It is used from the main goroutine;
// deliver runs on whatever goroutine the file source answers on.
type Loader struct {
	id       tileid.OverscaledTileID
	source   filesource.FileSource
	resource filesource.Resource
	deliver  func(filesource.Response)

	request filesource.Request
	tried   bool
	done    bool
}

func NewLoader(id tileid.OverscaledTileID, source filesource.FileSource, resource filesource.Resource, deliver func(filesource.Response)) *Loader {
	return &Loader{id: id, source: source, resource: resource, deliver: deliver}
}

// SetNecessity starts a request for required tiles and cancels an undelivered one for
// optional tiles. It reports whether a request is running afterwards.
func (l *Loader) SetNecessity(n Necessity) bool {
	switch {
	case n == Required && l.request == nil && !l.done:
		logging.L().Debug("requesting tile", zap.Stringer("tile", l.id), zap.String("url", l.resource.URL))
		l.tried = true
		l.request = l.source.Request(l.resource, l.deliver)
	case n == Optional && l.request != nil:
		l.request.Cancel()
		l.request = nil
	}
	return l.request != nil
}

// Delivered marks the running request as answered for good. Recoverable errors are not
// final, the file source may still answer the same request.
func (l *Loader) Delivered() {
	l.request = nil
	l.done = true
}

// Reload forgets the previous answer so that the next required necessity requests again.
func (l *Loader) Reload(n Necessity) bool {
	l.Cancel()
	l.done = false
	return l.SetNecessity(n)
}

func (l *Loader) Cancel() {
	if l.request != nil {
		l.request.Cancel()
		l.request = nil
	}
}

// Loading reports whether a request is running.
func (l *Loader) Loading() bool {
	return l.request != nil
}

// Tried reports whether a request was ever made.
func (l *Loader) Tried() bool {
	return l.tried
}
