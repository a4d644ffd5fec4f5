package boundedqueue

import (
	"fmt"
	"sync"

	"github.com/ChrisGora/semaphore"
)

// ring is the leaf storage: fixed-capacity circular slots with an explicit
// occupancy counter. It carries no synchronization of its own; Queue guards
// every access with its mutex.
type ring[T any] struct {
	slots    []T
	head     int // next read position
	tail     int // next write position
	occupied int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{slots: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	if r.occupied == len(r.slots) {
		panic("boundedqueue: push into a full ring")
	}
	r.slots[r.tail] = item
	r.tail = (r.tail + 1) % len(r.slots)
	r.occupied++
}

func (r *ring[T]) pop() T {
	if r.occupied == 0 {
		panic("boundedqueue: pop from an empty ring")
	}
	var zero T
	item := r.slots[r.head]
	r.slots[r.head] = zero
	r.head = (r.head + 1) % len(r.slots)
	r.occupied--
	return item
}

// Queue is a bounded multi-producer/multi-consumer queue with coordinated
// shutdown. Producers block in Put while the buffer is full, consumers block
// in Take while it is empty, and once every producer has called Done and the
// buffer has drained, every blocked and future Take returns false.
//
// Two counting semaphores gate entry (space for producers, items for
// consumers) and a single mutex guards the ring together with the active
// producer count. Both operations wait on their semaphore before taking the
// mutex, so the lock is never held while blocked.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  *ring[T]
	full *sync.Cond // buffer full or production over, used by DrainBatch

	space semaphore.Semaphore // free slots, starts at capacity
	items semaphore.Semaphore // filled slots plus pending shutdown wake-ups

	active    int // producers that have not yet called Done
	consumers int
}

// New creates a queue for the given number of producers and consumers. The
// counts are fixed up front: producers bounds the Done calls, and consumers
// sizes the shutdown wake-up fan-out. Invalid counts are configuration
// errors and are rejected here, never discovered mid-run.
func New[T any](capacity, producers, consumers int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("boundedqueue: capacity must be positive, got %d", capacity)
	}
	if producers <= 0 {
		return nil, fmt.Errorf("boundedqueue: producer count must be positive, got %d", producers)
	}
	if consumers <= 0 {
		return nil, fmt.Errorf("boundedqueue: consumer count must be positive, got %d", consumers)
	}

	q := &Queue[T]{
		buf:   newRing[T](capacity),
		space: semaphore.Init(capacity, capacity),
		// The item semaphore peaks at one permit per buffered item plus one
		// shutdown wake-up per consumer; consumers that wake on an empty
		// buffer re-post before exiting, which is wait-then-post and never
		// grows the count.
		items:     semaphore.Init(capacity+consumers, 0),
		active:    producers,
		consumers: consumers,
	}
	q.full = sync.NewCond(&q.mu)
	return q, nil
}

// Put inserts item at the tail, blocking while the buffer is full. It never
// overwrites an unread slot.
func (q *Queue[T]) Put(item T) {
	q.space.Wait()

	q.mu.Lock()
	q.buf.push(item)
	if q.buf.occupied == len(q.buf.slots) {
		q.full.Signal()
	}
	q.mu.Unlock()

	q.items.Post()
}

// Take removes and returns the item at the head, blocking while nothing is
// available. It returns false once production has ended and the buffer has
// drained; a wake-up that finds the queue in that state is a shutdown signal
// rather than a real item, and is re-posted so it reaches every other
// blocked consumer in turn.
func (q *Queue[T]) Take() (T, bool) {
	q.items.Wait()

	q.mu.Lock()
	if q.active == 0 && q.buf.occupied == 0 {
		q.mu.Unlock()
		q.items.Post()
		var zero T
		return zero, false
	}
	item := q.buf.pop()
	q.mu.Unlock()

	q.space.Post()
	return item, true
}

// DrainBatch blocks until the buffer is full or production has ended, then
// removes everything buffered in one critical section. It returns nil once
// production has ended and nothing is left. Intended for a single draining
// consumer; it absorbs the item permits of the batch itself, so it must not
// be mixed with Take on the same queue.
func (q *Queue[T]) DrainBatch() []T {
	q.mu.Lock()
	for q.buf.occupied < len(q.buf.slots) && q.active > 0 {
		q.full.Wait()
	}
	n := q.buf.occupied
	if n == 0 {
		q.mu.Unlock()
		return nil
	}
	batch := make([]T, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, q.buf.pop())
	}
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		q.items.Wait()
		q.space.Post()
	}
	return batch
}

// Done announces the completion of one producer. The producer that brings
// the count to zero posts one wake-up per consumer so nobody stays blocked
// on an empty buffer; Take's re-post on empty carries the wake-up to
// consumers that block later.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	if q.active == 0 {
		q.mu.Unlock()
		panic("boundedqueue: Done called more times than there are producers")
	}
	q.active--
	last := q.active == 0
	if last {
		q.full.Broadcast()
	}
	q.mu.Unlock()

	if last {
		for i := 0; i < q.consumers; i++ {
			q.items.Post()
		}
	}
}

// Len returns the current occupancy.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.occupied
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf.slots)
}

// ActiveProducers returns the number of producers that have not yet
// announced completion.
func (q *Queue[T]) ActiveProducers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}
