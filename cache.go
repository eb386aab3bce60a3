// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package umq

import (
	"runtime"
	"unsafe"

	"code.hybscloud.com/umq/internal/runtimex"
)

// cache is one P's private free list. The owning P is the only writer
// while pinned, so head and count need no atomics. count always equals
// the list length: allocate decrements, deallocate increments, and at count ==
// chunk the whole list leaves as one chunk.
type cache[T any] struct {
	head  *node[T]
	count int
	_     [64 - 16]byte // keep neighboring shards off this cache line
}

// cacheSet is one published generation of per-P caches. A set is
// immutable in shape once published; when GOMAXPROCS outgrows it, a
// larger set replaces it and the old one stays registered so teardown
// can reclaim its nodes.
type cacheSet[T any] struct {
	shards []cache[T]
}

// pin pins the goroutine and returns the cache of its P. The caller
// must runtimex.ProcUnpin when done with the cache, and must not
// block in between.
func (p *pool[T]) pin() *cache[T] {
	pid := runtimex.ProcPin()
	set := (*cacheSet[T])(unsafe.Pointer(p.caches.LoadAcquire()))
	if set != nil && pid < len(set.shards) {
		return &set.shards[pid]
	}
	runtimex.ProcUnpin()
	return p.pinSlow()
}

// pinSlow publishes a cache array large enough for the current P and
// registers it for teardown. Mirrors the growth discipline of the
// runtime's own per-P pools: the fresh array starts empty, and any
// nodes left in a superseded array wait for teardown.
func (p *pool[T]) pinSlow() *cache[T] {
	p.mu.Lock()
	pid := runtimex.ProcPin()
	set := (*cacheSet[T])(unsafe.Pointer(p.caches.LoadAcquire()))
	if set != nil && pid < len(set.shards) {
		p.mu.Unlock()
		return &set.shards[pid]
	}
	size := runtime.GOMAXPROCS(0)
	if pid >= size {
		size = pid + 1
	}
	fresh := &cacheSet[T]{shards: make([]cache[T], size)}
	p.regs = append(p.regs, fresh)
	p.caches.StoreRelease(uintptr(unsafe.Pointer(fresh)))
	p.mu.Unlock()
	return &fresh.shards[pid]
}

// allocate returns a free node with next cleared. Fast path is one
// list pop on the pinned P's cache, no shared atomics. On a cache
// miss it pops a chunk from the global stack; if the stack is empty
// it unpins (growth takes the pool mutex, which must not happen
// pinned), refills, and retries.
func (p *pool[T]) allocate() *node[T] {
	c := p.pin()
	for c.head == nil {
		if ch := p.popChunk(); ch != nil {
			c.head = ch
			c.count = p.chunk
			break
		}
		runtimex.ProcUnpin()
		p.refill()
		c = p.pin()
	}
	n := c.head
	c.head = nptr[T](n.next.LoadRelaxed())
	c.count--
	n.next.StoreRelaxed(0)
	runtimex.ProcUnpin()
	return n
}

// deallocate returns a node to the pinned P's cache. When the cache
// reaches a full chunk it moves to the global stack in one pointer
// swap and the cache resets, so shared-state contact amortizes to
// once per chunk of operations.
func (p *pool[T]) deallocate(n *node[T]) {
	c := p.pin()
	n.next.StoreRelaxed(nref(c.head))
	c.head = n
	c.count++
	if c.count >= p.chunk {
		head := c.head
		c.head = nil
		c.count = 0
		p.pushChunk(head)
	}
	runtimex.ProcUnpin()
}
