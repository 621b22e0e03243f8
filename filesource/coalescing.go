package filesource

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Coalescing shares one fetch between concurrent requests for the same URL. Resources without
// a URL are keyed by kind and tile id.
type Coalescing struct {
	source FileSource
	group  singleflight.Group
}

func NewCoalescing(source FileSource) *Coalescing {
	return &Coalescing{source: source}
}

func (c *Coalescing) Request(resource Resource, callback func(Response)) Request {
	req := &request{}
	key := resource.URL
	if key == "" {
		key = fmt.Sprintf("%d:%v", resource.Kind, resource.TileID)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		done := make(chan Response, 1)
		c.source.Request(resource, func(r Response) { done <- r })
		return <-done, nil
	})
	go func() {
		result := <-ch
		req.respond(callback, result.Val.(Response))
	}()
	return req
}
