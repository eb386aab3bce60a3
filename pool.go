// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package umq

import (
	"reflect"
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// node is the fixed-size cell circulating between queues, per-P caches
// and the global chunk stack. A node is in exactly one state at a
// time: live in a queue (carrying a value or serving as the dummy), in
// a per-P cache, or part of a chunk on the global stack.
type node[T any] struct {
	val T

	// next links the node into a queue, a per-P cache, or a chunk.
	// 0 means end of list. Queue publication goes through this field
	// with release/acquire ordering; free-list traffic is relaxed.
	next atomix.Uintptr

	// nextChunk links chunk heads on the global stack. Only meaningful
	// while the node is the head of a stacked chunk.
	nextChunk atomix.Uintptr
}

// nref converts a node pointer to its address word for atomix fields.
// Nodes live in pool pages, which the pool retains until teardown, so
// the address stays valid for as long as it can be observed.
func nref[T any](n *node[T]) uintptr {
	return uintptr(unsafe.Pointer(n))
}

func nptr[T any](p uintptr) *node[T] {
	return (*node[T])(unsafe.Pointer(p))
}

// pool is the state shared by every queue instance with the same
// element type and chunk size: the chunk stack, the slab pages, the
// per-P caches and the lifecycle counter.
//
// Steady-state enqueue/dequeue never touches mu; it serializes only
// slab growth, cache registration and teardown.
type pool[T any] struct {
	chunk int // nodes per chunk, power of 2

	// top is the chunk stack head: lo = tag, hi = address of the top
	// chunk's first node (0 = empty). The tag increments on every
	// successful update, so a CAS fails whenever any other push or pop
	// touched the stack in between (ABA defense).
	top atomix.Uint128

	instances atomix.Int64  // live queue instances
	nodeCount atomix.Uint64 // total nodes ever grown; informational

	// caches is the current per-P cache array (*cacheSet[T]).
	caches atomix.Uintptr

	mu    sync.Mutex     // guards growth, regs, pages, teardown
	regs  []*cacheSet[T] // every cache array ever published
	pages [][]node[T]    // slab pages; retained until teardown
}

// poolKey identifies a pool by element type and chunk size.
type poolKey struct {
	typ   reflect.Type
	chunk int
}

var (
	poolsMu sync.Mutex
	pools   = map[poolKey]any{} // value is *pool[T]
)

// poolFor returns the shared pool for (T, chunk), creating it on first
// use. The pool object is permanent; teardown resets its contents but
// keeps it registered, so a later instance starts from an empty pool.
func poolFor[T any](chunk int) *pool[T] {
	key := poolKey{typ: reflect.TypeFor[T](), chunk: chunk}
	poolsMu.Lock()
	defer poolsMu.Unlock()
	if p, ok := pools[key]; ok {
		return p.(*pool[T])
	}
	p := &pool[T]{chunk: chunk}
	pools[key] = p
	return p
}

// pushChunk adds a chunk (exactly p.chunk nodes linked through next,
// last one null-terminated) to the global stack. Lock-free; safe to
// call pinned.
func (p *pool[T]) pushChunk(head *node[T]) {
	sw := spin.Wait{}
	for {
		tag, top := p.top.LoadAcquire()
		head.nextChunk.StoreRelaxed(uintptr(top))
		if p.top.CompareAndSwapAcqRel(tag, top, tag+1, uint64(nref(head))) {
			return
		}
		sw.Once()
	}
}

// popChunk removes and returns the top chunk, or nil if the stack is
// empty. The nextChunk read may observe a node already popped and
// reinstalled elsewhere; the value is garbage then, but the CAS fails
// (the tag advanced) and the garbage is never published.
func (p *pool[T]) popChunk() *node[T] {
	sw := spin.Wait{}
	for {
		tag, top := p.top.LoadAcquire()
		if top == 0 {
			return nil
		}
		next := nptr[T](uintptr(top)).nextChunk.LoadRelaxed()
		if p.top.CompareAndSwapAcqRel(tag, top, tag+1, uint64(next)) {
			return nptr[T](uintptr(top))
		}
		sw.Once()
	}
}

// refill grows the pool when a popChunk found the stack empty.
// Re-checks under the lock: another goroutine may have refilled while
// this one waited.
func (p *pool[T]) refill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, top := p.top.LoadAcquire(); top != 0 {
		return
	}
	p.growLocked()
}

// growLocked allocates one slab page of max(chunk, total) nodes,
// links every chunk-sized run, and publishes each run on the stack.
// Page sizes double with the pool, so the mutex is taken O(log N)
// times over the pool's lifetime. Caller holds p.mu.
//
// Every run is fully linked with its last node null-terminated, so
// every published chunk holds exactly p.chunk nodes. The push CAS
// publishes the links to concurrent poppers.
func (p *pool[T]) growLocked() {
	n := p.chunk
	if total := int(p.nodeCount.Load()); total > n {
		n = total // always a multiple of chunk
	}
	pg := make([]node[T], n)
	p.pages = append(p.pages, pg)
	for i := 0; i < n; i += p.chunk {
		run := pg[i : i+p.chunk]
		for j := 0; j < p.chunk-1; j++ {
			run[j].next.StoreRelaxed(nref(&run[j+1]))
		}
		run[p.chunk-1].next.StoreRelaxed(0)
		p.pushChunk(&run[0])
	}
	p.nodeCount.Add(uint64(n))
}

// reserve pre-warms the pool until it holds at least k chunks' worth
// of nodes.
func (p *pool[T]) reserve(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := uint64(k) * uint64(p.chunk)
	for p.nodeCount.Load() < want {
		p.growLocked()
	}
}

// retain records a new queue instance.
func (p *pool[T]) retain() {
	p.instances.Add(1)
}

// release records a closed queue instance and tears the pool down if
// it was the last one. The counter is re-checked under the mutex: a
// new instance may have been created while this one waited for the
// lock.
//
// After the last release returns, no goroutine may touch any queue of
// this pool. That is the cost of shared pooling; violating it is
// undefined.
func (p *pool[T]) release() {
	if p.instances.Add(-1) != 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances.Load() != 0 {
		return
	}
	// Null every registered cache so a future instance starts fresh.
	// Arrays orphaned by GOMAXPROCS growth are still in regs; their
	// nodes are reclaimed here along with everything else when the
	// pages go.
	for _, set := range p.regs {
		for i := range set.shards {
			set.shards[i].head = nil
			set.shards[i].count = 0
		}
	}
	p.regs = nil
	p.caches.Store(0)
	p.top.StoreRelaxed(0, 0)
	p.pages = nil
	p.nodeCount.Store(0)
}
