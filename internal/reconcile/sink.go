package reconcile

// Sink receives functional state updates. The host may apply an
// update immediately or queue it and apply later, so an updater must
// derive everything it needs from the prior state it is handed, at
// application time.
type Sink[T any] interface {
	Apply(update func(prior T) T)
}

// Direct applies updates immediately. Production wiring.
type Direct[T any] struct {
	state T
}

func NewDirect[T any](initial T) *Direct[T] {
	return &Direct[T]{state: initial}
}

func (d *Direct[T]) Apply(update func(T) T) {
	d.state = update(d.state)
}

func (d *Direct[T]) State() T {
	return d.state
}

// Batched queues updates until Flush. It models a host that defers
// state application, which is the delivery environment the handlers
// are written to survive.
type Batched[T any] struct {
	state   T
	pending []func(T) T
}

func NewBatched[T any](initial T) *Batched[T] {
	return &Batched[T]{state: initial}
}

func (b *Batched[T]) Apply(update func(T) T) {
	b.pending = append(b.pending, update)
}

// Flush applies queued updates in order. Updates enqueued while
// flushing run in the same pass.
func (b *Batched[T]) Flush() {
	for len(b.pending) > 0 {
		queued := b.pending
		b.pending = nil
		for _, update := range queued {
			b.state = update(b.state)
		}
	}
}

func (b *Batched[T]) State() T {
	return b.state
}

func (b *Batched[T]) PendingCount() int {
	return len(b.pending)
}
