package actor

// Actor owns an object that is only touched by messages from its mailbox.
type Actor[T any] struct {
	mailbox *Mailbox
	object  *T
}

// New builds the object with a reference to itself. build must not send messages to self;
// messages sent to self after New returns are processed in order.
func New[T any](scheduler Scheduler, build func(self Ref[T]) *T) *Actor[T] {
	a := &Actor[T]{mailbox: NewMailbox(scheduler)}
	a.object = build(Ref[T]{actor: a})
	return a
}

func (a *Actor[T]) Self() Ref[T] {
	return Ref[T]{actor: a}
}

func (a *Actor[T]) Mailbox() *Mailbox {
	return a.mailbox
}

// Invoke is a shorthand for Self().Invoke.
func (a *Actor[T]) Invoke(fn func(*T)) {
	a.Self().Invoke(fn)
}

// Close waits for a running message and drops the queued ones.
func (a *Actor[T]) Close() {
	a.mailbox.Close()
}

// Abandon drops the queued messages without waiting.
func (a *Actor[T]) Abandon() {
	a.mailbox.Abandon()
}

// Ref sends messages to an actor. The zero Ref and refs to closed actors drop every message.
type Ref[T any] struct {
	actor *Actor[T]
}

func (r Ref[T]) Invoke(fn func(*T)) {
	if r.actor == nil {
		return
	}
	a := r.actor
	a.mailbox.Push(func() { fn(a.object) })
}

func (r Ref[T]) Valid() bool {
	return r.actor != nil && !r.actor.mailbox.Closed()
}
