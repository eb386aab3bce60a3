// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package umq

import (
	"iter"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// Queue is an unbounded multi-producer single-consumer FIFO queue.
//
// The queue is a Michael–Scott style linked list with one dummy node
// at rest: head is the most recently enqueued node and is touched only
// by producers; tail is the current dummy and belongs to the single
// consumer. Nodes come from the shared pool for (T, chunk size), so
// steady-state operation allocates nothing.
//
// FIFO order is the order of the producers' head exchanges. Two items
// enqueued by one goroutine reach the consumer in program order; a
// dequeued value happens-after its enqueue.
//
// Memory: grows by doubling slab pages; node memory is recycled
// through the pool and returned only at pool teardown (last Close).
type Queue[T any] struct {
	_    pad
	head atomix.Uintptr // most recently enqueued node; producers exchange here
	_    pad
	tail *node[T] // current dummy; consumer-owned
	_    pad
	pool   *pool[T]
	closed atomix.Int32
}

// New creates a queue backed by the shared pool for T with
// DefaultChunkSize.
func New[T any]() *Queue[T] {
	return NewWithChunk[T](DefaultChunkSize)
}

// NewWithChunk creates a queue whose pool transfers nodes in chunks of
// the given size. All queues with the same element type and chunk size
// share one pool; their consumers may be different goroutines.
//
// Panics if chunk is not a power of 2 or is less than 2.
func NewWithChunk[T any](chunk int) *Queue[T] {
	checkChunkSize(chunk)
	p := poolFor[T](chunk)
	p.retain()
	dummy := p.allocate()
	q := &Queue[T]{pool: p, tail: dummy}
	q.head.StoreRelease(nref(dummy))
	return q
}

// exchangeHead claims the next position in the FIFO order. The CAS
// carries acq_rel: release publishes the node's value write, acquire
// orders this producer's later reads after the previous holder's
// writes. The winning CAS is the enqueue's linearization point.
func (q *Queue[T]) exchangeHead(n *node[T]) *node[T] {
	sw := spin.Wait{}
	for {
		old := q.head.LoadRelaxed()
		if q.head.CompareAndSwapAcqRel(old, nref(n)) {
			return nptr[T](old)
		}
		sw.Once()
	}
}

// Enqueue appends an element to the queue (multiple producers safe).
// It never blocks and never fails. The value is copied out of *elem;
// the caller may reuse the storage afterwards.
func (q *Queue[T]) Enqueue(elem *T) {
	n := q.pool.allocate()
	n.val = *elem
	prev := q.exchangeHead(n)
	prev.next.StoreRelease(nref(n))
}

// EnqueueBulk appends all elements of elems in order as one batch.
// The chain is built privately and published with a single head
// exchange and a single release store, so the consumer observes the
// whole batch or none of it. No-op for an empty slice.
func (q *Queue[T]) EnqueueBulk(elems []T) {
	if len(elems) == 0 {
		return
	}
	first := q.pool.allocate()
	first.val = elems[0]
	last := first
	for i := 1; i < len(elems); i++ {
		n := q.pool.allocate()
		n.val = elems[i]
		last.next.StoreRelaxed(nref(n))
		last = n
	}
	prev := q.exchangeHead(last)
	prev.next.StoreRelease(nref(first))
}

// EnqueueRepeat appends n copies of *elem as one atomic batch.
// No-op for n <= 0.
func (q *Queue[T]) EnqueueRepeat(elem *T, n int) {
	if n <= 0 {
		return
	}
	first := q.pool.allocate()
	first.val = *elem
	last := first
	for i := 1; i < n; i++ {
		nd := q.pool.allocate()
		nd.val = *elem
		last.next.StoreRelaxed(nref(nd))
		last = nd
	}
	prev := q.exchangeHead(last)
	prev.next.StoreRelease(nref(first))
}

// EnqueueSeq drains seq into the queue as one atomic batch and
// returns the number of elements appended.
func (q *Queue[T]) EnqueueSeq(seq iter.Seq[T]) int {
	var first, last *node[T]
	count := 0
	for v := range seq {
		n := q.pool.allocate()
		n.val = v
		if last == nil {
			first = n
		} else {
			last.next.StoreRelaxed(nref(n))
		}
		last = n
		count++
	}
	if last == nil {
		return 0
	}
	prev := q.exchangeHead(last)
	prev.next.StoreRelease(nref(first))
	return count
}

// Dequeue removes and returns the oldest element (single consumer
// only). Returns (zero-value, ErrWouldBlock) if the queue is empty.
//
// The acquire load of tail.next pairs with the producer's release
// store, carrying the value write. The previous dummy goes back to
// the pool; the dequeued slot is zeroed so referenced objects can be
// collected.
func (q *Queue[T]) Dequeue() (T, error) {
	next := nptr[T](q.tail.next.LoadAcquire())
	if next == nil {
		var zero T
		return zero, ErrWouldBlock
	}
	elem := next.val
	var zero T
	next.val = zero
	prev := q.tail
	q.tail = next
	q.pool.deallocate(prev)
	return elem, nil
}

// DequeueBulk removes up to len(buf) elements into buf and returns
// the number removed. Stops early when the queue drains.
func (q *Queue[T]) DequeueBulk(buf []T) int {
	for i := range buf {
		v, err := q.Dequeue()
		if err != nil {
			return i
		}
		buf[i] = v
	}
	return len(buf)
}

// DequeueWait removes and returns the oldest element, waiting for a
// producer if the queue is empty. A short spin covers the publication
// window of an in-flight enqueue; after that the consumer parks with
// adaptive backoff and re-checks, so spurious wakeups are harmless.
//
// There is no cancellation; enqueue a sentinel value to shut the
// consumer down.
func (q *Queue[T]) DequeueWait() T {
	sw := spin.Wait{}
	for range 64 {
		if v, err := q.Dequeue(); err == nil {
			return v
		}
		sw.Once()
	}
	backoff := iox.Backoff{}
	for {
		v, err := q.Dequeue()
		if err == nil {
			return v
		}
		backoff.Wait()
	}
}

// DequeueWaitBulk fills buf completely, waiting for producers as
// needed.
func (q *Queue[T]) DequeueWaitBulk(buf []T) {
	filled := 0
	for filled < len(buf) {
		filled += q.DequeueBulk(buf[filled:])
		if filled < len(buf) {
			buf[filled] = q.DequeueWait()
			filled++
		}
	}
}

// Empty reports whether the queue looked empty (consumer side).
// Approximate under concurrent enqueues: a producer that has exchanged
// head but not yet stored the link is not visible, which is correct
// linearizable behavior.
func (q *Queue[T]) Empty() bool {
	return q.tail.next.LoadAcquire() == 0
}

// ChunkSize returns the pool's chunk size.
func (q *Queue[T]) ChunkSize() int {
	return q.pool.chunk
}

// ReserveChunks pre-warms the shared pool until it holds at least k
// chunks' worth of nodes, taking the pool mutex briefly. Useful before
// a latency-sensitive phase so no producer pays for slab growth.
func (q *Queue[T]) ReserveChunks(k int) {
	q.pool.reserve(k)
}

// NodeCount returns the number of nodes the shared pool has grown.
// Informational; it counts all nodes regardless of where they
// currently live.
func (q *Queue[T]) NodeCount() int {
	return int(q.pool.nodeCount.Load())
}

// Close releases this instance's claim on the shared pool. The last
// Close across all instances of the pool tears the pool down and
// frees all node memory.
//
// Close is idempotent. It does not drain: values still enqueued are
// dropped with their nodes and the memory returns only at teardown.
// Drain explicitly before Close when element cleanup matters. After
// the last Close, no goroutine may touch any queue of the pool.
func (q *Queue[T]) Close() {
	if !q.closed.CompareAndSwapAcqRel(0, 1) {
		return
	}
	q.pool.release()
}

var (
	_ Producer[int] = (*Queue[int])(nil)
	_ Consumer[int] = (*Queue[int])(nil)
)
