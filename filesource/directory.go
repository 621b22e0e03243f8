package filesource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pdok/mosaic/actor"
	"github.com/pdok/mosaic/tileid"
)

var ErrInvalidPattern = errors.New("invalid tile path pattern")

// Directory reads tiles from files laid out by a pattern like "tiles/{z}/{x}/{y}.pbf".
// Other resources are read from their URL as a path. Missing files are NotFound errors.
type Directory struct {
	pattern   string
	scheduler actor.Scheduler
}

func NewDirectory(pattern string, scheduler actor.Scheduler) (*Directory, error) {
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(pattern, p) {
			return nil, fmt.Errorf("%w: placeholder %v not found in %q", ErrInvalidPattern, p, pattern)
		}
	}
	return &Directory{pattern: pattern, scheduler: scheduler}, nil
}

// Path is the file a tile is read from.
func (d *Directory) Path(id tileid.CanonicalTileID) string {
	return FormatPattern(d.pattern, id)
}

// FormatPattern fills in the {z}, {x} and {y} placeholders.
func FormatPattern(pattern string, id tileid.CanonicalTileID) string {
	return strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", id.Z),
		"{x}", fmt.Sprintf("%d", id.X),
		"{y}", fmt.Sprintf("%d", id.Y),
	).Replace(pattern)
}

func (d *Directory) Request(resource Resource, callback func(Response)) Request {
	req := &request{}
	d.scheduler.Schedule(func() {
		if req.cancelled.Load() {
			return
		}
		path := resource.URL
		if resource.Kind == Tile {
			path = d.Path(resource.TileID)
		}
		req.respond(callback, readFile(path))
	})
	return req
}

func readFile(path string) Response {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Response{Error: &ResponseError{Reason: NotFound, Message: path}}
	case err != nil:
		return Response{Error: &ResponseError{Reason: Other, Message: err.Error()}}
	case len(data) == 0:
		return Response{NoContent: true}
	default:
		return Response{Data: data}
	}
}
