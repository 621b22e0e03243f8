package actor

import "sync"

// Mailbox is a FIFO of messages for one object. Messages run on the scheduler one at
// a time: a mailbox never has two receives running concurrently.
type Mailbox struct {
	scheduler Scheduler

	receiving sync.Mutex

	mu     sync.Mutex
	queue  []func()
	closed bool
}

func NewMailbox(scheduler Scheduler) *Mailbox {
	return &Mailbox{scheduler: scheduler}
}

// Push queues msg. Pushing to a closed mailbox does nothing.
func (m *Mailbox) Push(msg func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, msg)
	first := len(m.queue) == 1
	m.mu.Unlock()
	if first {
		m.scheduler.Schedule(m.receive)
	}
}

func (m *Mailbox) receive() {
	m.receiving.Lock()
	defer m.receiving.Unlock()

	m.mu.Lock()
	if m.closed || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	msg := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	more := len(m.queue) > 0
	m.mu.Unlock()

	// a panicking message must not strand the ones queued after it
	defer func() {
		if more {
			m.scheduler.Schedule(m.receive)
		}
	}()
	msg()
}

// Close drops the queued messages and waits for a running receive to finish. After Close
// returns no message of this mailbox runs anymore. It must not be called from a message of
// the same mailbox.
func (m *Mailbox) Close() {
	m.Abandon()
	m.receiving.Lock()
	defer m.receiving.Unlock()
}

// Abandon drops the queued messages without waiting for a running receive. Use it where
// blocking is not allowed; the running message still completes on its own goroutine.
func (m *Mailbox) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
}

func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Len is the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
