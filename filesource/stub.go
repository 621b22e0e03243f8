package filesource

import (
	"sync"

	"github.com/pdok/mosaic/actor"
)

// Stub serves responses from memory, keyed by URL. It counts the requests it gets, which makes
// it useful to check what was fetched.
type Stub struct {
	scheduler actor.Scheduler

	mu        sync.Mutex
	responses map[string]Response
	requests  map[string]int
}

func NewStub(scheduler actor.Scheduler) *Stub {
	return &Stub{
		scheduler: scheduler,
		responses: make(map[string]Response),
		requests:  make(map[string]int),
	}
}

// Set makes url answer with response. Unknown URLs are NotFound.
func (s *Stub) Set(url string, response Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = response
}

// Requests is the number of requests for url so far.
func (s *Stub) Requests(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[url]
}

func (s *Stub) Request(resource Resource, callback func(Response)) Request {
	s.mu.Lock()
	s.requests[resource.URL]++
	s.mu.Unlock()
	req := &request{}
	s.scheduler.Schedule(func() {
		s.mu.Lock()
		response, ok := s.responses[resource.URL]
		s.mu.Unlock()
		if !ok {
			response = Response{Error: &ResponseError{Reason: NotFound, Message: resource.URL}}
		}
		req.respond(callback, response)
	})
	return req
}
