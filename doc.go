// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package umq provides an unbounded multi-producer single-consumer
// FIFO queue with pooled, amortized-allocation-free nodes.
//
// The package complements code.hybscloud.com/lfq: where lfq offers
// bounded lock-free rings that apply backpressure when full, umq
// offers a linked queue that never rejects an enqueue. It is meant for
// hot ingress paths — command dispatchers, log pipelines, event
// aggregation — where producers must not stall and a single consumer
// drains at its own pace.
//
// # Quick Start
//
//	q := umq.New[Event]()
//	defer q.Close()
//
//	// Producers (any number of goroutines)
//	ev := Event{...}
//	q.Enqueue(&ev)
//
//	// Consumer (exactly one goroutine)
//	for {
//	    ev, err := q.Dequeue()
//	    if err != nil {
//	        break // empty
//	    }
//	    handle(ev)
//	}
//
// # Architecture
//
// Each queue is a linked list with one dummy node: producers exchange
// the head pointer to claim FIFO positions and publish links with
// release stores; the consumer walks tail.next with acquire loads.
// Enqueue and dequeue are O(1) and take no lock in steady state; only
// slab growth and a P's first contact with the pool take its mutex.
//
// Nodes come from a pool shared by every queue with the same element
// type and chunk size:
//
//	producer/consumer
//	      │  O(1), no shared atomics
//	per-P cache (up to one chunk of nodes)
//	      │  one pointer swap per chunk
//	global chunk stack (lock-free, ABA-tagged)
//	      │  mutex, O(log N) times ever
//	slab pages (chunk, chunk, 2·chunk, 4·chunk, ...)
//
// A chunk is a fixed group of nodes (DefaultChunkSize, configurable
// via NewWithChunk) linked for bulk transfer; chunks need not be
// contiguous and freely remix nodes from different pages over time.
// Pages are never freed individually: node memory returns to the
// system only when the last queue instance of the pool is closed.
//
// # Common Patterns
//
// Log pipeline (many writers, one flusher):
//
//	q := umq.New[LogEntry]()
//
//	// Any goroutine
//	func Log(e LogEntry) { q.Enqueue(&e) }
//
//	// Flusher
//	go func() {
//	    buf := make([]LogEntry, 64)
//	    for {
//	        n := q.DequeueBulk(buf)
//	        if n == 0 {
//	            buf[0] = q.DequeueWait()
//	            n = 1 + q.DequeueBulk(buf[1:])
//	        }
//	        flush(buf[:n])
//	    }
//	}()
//
// Command dispatch (game loop, actor mailbox):
//
//	q := umq.New[Command]()
//
//	// Producers
//	q.Enqueue(&Command{Type: MoveEntity, ID: 7})
//
//	// Dispatcher drains without blocking the frame
//	for {
//	    cmd, err := q.Dequeue()
//	    if err != nil {
//	        break
//	    }
//	    apply(cmd)
//	}
//
// Shutdown uses a sentinel, since blocking dequeues have no
// cancellation:
//
//	q.Enqueue(&Command{Type: Quit})
//	...
//	if cmd := q.DequeueWait(); cmd.Type == Quit {
//	    return
//	}
//
// # Pool Lifecycle
//
// Queues with the same element type and chunk size share one pool;
// their consumers may be different goroutines. Creating an instance
// counts it in; Close counts it out. The last Close tears the pool
// down: all pages are released, every per-P cache is reset, and the
// next instance starts from an empty pool (its first allocation grows
// exactly one chunk).
//
// The hard contract of shared pooling: after the last Close of a pool,
// no goroutine may touch any queue instance of that pool. ReserveChunks
// pre-warms the pool before a latency-sensitive phase; NodeCount
// reports how far it has grown.
//
// Close does not drain. Values still enqueued are dropped with their
// nodes; drain explicitly first when element cleanup matters.
//
// # Blocking
//
// Dequeue and DequeueBulk are non-blocking: Dequeue returns
// [ErrWouldBlock] on empty, following the iox convention, and
// DequeueBulk returns the number of elements removed (0 on empty).
// DequeueWait and
// DequeueWaitBulk park the consumer with a short spin followed by
// [iox.Backoff]; producers need no wake call, the consumer's acquire
// re-check observes the published link.
//
// # Race Detection
//
// Go's race detector cannot observe happens-before relationships
// established through atomix memory orderings, so concurrent use of
// the queue reports false positives under -race. The algorithms are
// the standard Michael–Scott MPSC list and Treiber stack arguments;
// verify with stress tests without the detector, or formal tools.
// Tests incompatible with race detection check [RaceEnabled] or carry
// //go:build !race.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors and
// backoff, [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, and [code.hybscloud.com/spin] for CPU
// pause instructions in retry loops.
package umq
