// Package actor provides the message passing used between the main goroutine and
// the tile workers: schedulers that run tasks, mailboxes that serialise the
// messages for one object, and actors that tie an object to its mailbox.
package actor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdok/mosaic/logging"
)

// Scheduler runs tasks at some point in the future. Schedule never blocks on the task itself.
type Scheduler interface {
	Schedule(task func())
}

// queue is an unbounded FIFO of tasks.
type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) push(task func()) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return len(q.tasks)
}

func (q *queue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// ThreadPool runs tasks on a fixed number of goroutines.
type ThreadPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	group  errgroup.Group
}

func NewThreadPool(n int) *ThreadPool {
	if n < 1 {
		panic(fmt.Errorf("thread pool needs at least one goroutine, got %d", n))
	}
	p := &ThreadPool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.group.Go(p.work)
	}
	return p
}

// Schedule queues a task. Tasks scheduled after Close are dropped.
func (p *ThreadPool) Schedule(task func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.tasks = append(p.tasks, task)
	p.cond.Signal()
}

// Close runs the queued tasks to completion and waits for all goroutines to stop.
func (p *ThreadPool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return p.group.Wait()
}

func (p *ThreadPool) work() error {
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return nil
		}
		task := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()
		runTask(task)
	}
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

// RunLoop is the queue of the main goroutine. Tasks only run inside RunPending or Run,
// on the goroutine that calls them.
type RunLoop struct {
	q    queue
	wake chan struct{}
}

func NewRunLoop() *RunLoop {
	return &RunLoop{wake: make(chan struct{}, 1)}
}

func (l *RunLoop) Schedule(task func()) {
	l.q.push(task)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs the tasks that were queued when it was called and returns how many ran.
// Tasks scheduled meanwhile wait for the next call.
func (l *RunLoop) RunPending() int {
	tasks := l.q.take()
	for _, task := range tasks {
		runTask(task)
	}
	return len(tasks)
}

// Run processes tasks until ctx is done.
func (l *RunLoop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunUntil processes tasks until done reports true or ctx is done.
// done is checked on the loop goroutine after every batch of tasks.
func (l *RunLoop) RunUntil(ctx context.Context, done func() bool) error {
	for {
		l.RunPending()
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Manual queues tasks until the caller runs them, which makes message ordering
// deterministic in tests.
type Manual struct {
	q queue
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(task func()) {
	m.q.push(task)
}

// Len is the number of queued tasks.
func (m *Manual) Len() int {
	return m.q.len()
}

// RunOne runs the oldest queued task and reports whether there was one.
func (m *Manual) RunOne() bool {
	m.q.mu.Lock()
	if len(m.q.tasks) == 0 {
		m.q.mu.Unlock()
		return false
	}
	task := m.q.tasks[0]
	m.q.tasks = m.q.tasks[1:]
	m.q.mu.Unlock()
	task()
	return true
}

// RunAll runs tasks, including the ones they schedule, until the queue is empty.
func (m *Manual) RunAll() int {
	n := 0
	for m.RunOne() {
		n++
	}
	return n
}
