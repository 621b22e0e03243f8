// Package filesource fetches the bytes of tiles and other resources. Callbacks run on the
// goroutine of the file source, receivers hand the response over to their own mailbox.
package filesource

import (
	"fmt"
	"sync/atomic"

	"github.com/pdok/mosaic/tileid"
)

type Kind uint8

const (
	Unknown Kind = iota
	Tile
	Source
	Glyphs
	Image
)

// Resource is what is requested. Tile resources carry the canonical id of the tile.
type Resource struct {
	Kind   Kind
	URL    string
	TileID tileid.CanonicalTileID
}

// Reason classifies a failed response. NotFound is permanent, the other reasons are worth
// retrying, which is up to the file source.
type Reason uint8

const (
	NotFound Reason = iota + 1
	Server
	Connection
	Other
)

func (r Reason) String() string {
	switch r {
	case NotFound:
		return "not found"
	case Server:
		return "server error"
	case Connection:
		return "connection error"
	case Other:
		return "other error"
	default:
		return fmt.Sprintf("Reason(%d)", r)
	}
}

type ResponseError struct {
	Reason  Reason
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: %s", e.Reason, e.Message)
}

// Permanent reports whether retrying is pointless.
func (e *ResponseError) Permanent() bool {
	return e.Reason == NotFound
}

// Response carries either data, no content or an error. Data is shared between requests for
// the same resource and must not be modified.
type Response struct {
	Data      []byte
	NoContent bool
	Error     *ResponseError
}

// Request is a pending request.
type Request interface {
	// Cancel makes sure the callback is not called anymore, it does not stop the fetch.
	Cancel()
}

type FileSource interface {
	Request(resource Resource, callback func(Response)) Request
}

type request struct {
	cancelled atomic.Bool
}

func (r *request) Cancel() {
	r.cancelled.Store(true)
}

func (r *request) respond(callback func(Response), response Response) {
	if !r.cancelled.Load() {
		callback(response)
	}
}
