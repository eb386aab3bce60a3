// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package umq_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/umq"
)

// Concurrent tests are skipped under the race detector: it cannot see
// the happens-before edges atomix orderings establish and reports
// false positives. Sequential tests run everywhere.

// TestConcurrentProducers runs 8 producers x 50000 items against one
// consumer and checks the multiset: every tagged value arrives exactly
// once.
func TestConcurrentProducers(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type item int
	const producers = 8
	const perProducer = 50000

	q := umq.New[item]()
	defer q.Close()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range perProducer {
				v := item(id*perProducer + i)
				q.Enqueue(&v)
			}
		}(p)
	}

	seen := make([]bool, producers*perProducer)
	for range producers * perProducer {
		v := q.DequeueWait()
		if v < 0 || int(v) >= len(seen) {
			t.Fatalf("dequeued out-of-range value %d", v)
		}
		if seen[v] {
			t.Fatalf("value %d dequeued twice", v)
		}
		seen[v] = true
	}
	wg.Wait()

	if !q.Empty() {
		t.Fatal("after drain: Empty() = false, want true")
	}
}

// TestPerProducerOrder tags every element with (producer, seq) and
// checks that each producer's subsequence arrives strictly in order
// with no gaps, from 1 through perProducer.
func TestPerProducerOrder(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type msg struct {
		producer int
		seq      uint64
	}
	const producers = 4
	const perProducer = 50000

	q := umq.New[msg]()
	defer q.Close()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for seq := uint64(1); seq <= perProducer; seq++ {
				m := msg{producer: id, seq: seq}
				q.Enqueue(&m)
			}
		}(p)
	}

	var last [producers]uint64
	for range producers * perProducer {
		m := q.DequeueWait()
		if m.seq != last[m.producer]+1 {
			t.Fatalf("producer %d: got seq %d after %d", m.producer, m.seq, last[m.producer])
		}
		last[m.producer] = m.seq
	}
	wg.Wait()

	for p := range producers {
		if last[p] != perProducer {
			t.Fatalf("producer %d: ended at seq %d, want %d", p, last[p], perProducer)
		}
	}
}

// TestBulkBatchAtomicity interleaves bulk batches from several
// producers; each batch must arrive contiguous and in order, never as
// an interleaved prefix.
func TestBulkBatchAtomicity(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type msg struct {
		producer int
		seq      int
	}
	const producers = 4
	const batches = 2000
	const batchLen = 10

	q := umq.New[msg]()
	defer q.Close()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			batch := make([]msg, batchLen)
			for b := range batches {
				for i := range batch {
					batch[i] = msg{producer: id, seq: b*batchLen + i}
				}
				q.EnqueueBulk(batch)
			}
		}(p)
	}

	total := producers * batches * batchLen
	inBatch := 0
	var cur msg
	for range total {
		m := q.DequeueWait()
		if inBatch == 0 {
			if m.seq%batchLen != 0 {
				t.Fatalf("batch starts at seq %d, want multiple of %d", m.seq, batchLen)
			}
			cur = m
			inBatch = 1
			continue
		}
		if m.producer != cur.producer || m.seq != cur.seq+inBatch {
			t.Fatalf("batch of producer %d torn at seq %d by (%d, %d)",
				cur.producer, cur.seq+inBatch, m.producer, m.seq)
		}
		if inBatch++; inBatch == batchLen {
			inBatch = 0
		}
	}
	wg.Wait()
}

// TestDequeueWaitBlocks parks the consumer on an empty queue and
// releases it with a late enqueue.
func TestDequeueWaitBlocks(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type item int
	q := umq.New[item]()
	defer q.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		v := item(7)
		q.Enqueue(&v)
	}()

	start := time.Now()
	if v := q.DequeueWait(); v != 7 {
		t.Fatalf("DequeueWait: got %d, want 7", v)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("DequeueWait returned before the producer ran")
	}
}

// TestDequeueWaitBulkFills checks the blocking bulk form delivers the
// full buffer across staggered production.
func TestDequeueWaitBulkFills(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type item int
	q := umq.New[item]()
	defer q.Close()

	go func() {
		for i := range 100 {
			v := item(i)
			q.Enqueue(&v)
			if i%10 == 9 {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	buf := make([]item, 100)
	q.DequeueWaitBulk(buf)
	for i := range buf {
		if buf[i] != item(i) {
			t.Fatalf("buf[%d]: got %d, want %d", i, buf[i], i)
		}
	}
}

// TestSharedPoolConcurrent runs two queues of one pool with separate
// consumers while producers hammer both, with a tiny chunk size so
// node chunks migrate between Ps through the global stack.
func TestSharedPoolConcurrent(t *testing.T) {
	if umq.RaceEnabled {
		t.Skip("concurrent atomix test: race detector false positives")
	}

	type item int
	const chunk = 8
	const producers = 4
	const perProducer = 20000

	qa := umq.NewWithChunk[item](chunk)
	defer qa.Close()
	qb := umq.NewWithChunk[item](chunk)
	defer qb.Close()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range perProducer {
				v := item(id*perProducer + i)
				if i%2 == 0 {
					qa.Enqueue(&v)
				} else {
					qb.Enqueue(&v)
				}
			}
		}(p)
	}

	var consumers sync.WaitGroup
	drain := func(q *umq.Queue[item], want int) {
		defer consumers.Done()
		for range want {
			q.DequeueWait()
		}
	}
	consumers.Add(2)
	go drain(qa, producers*perProducer/2)
	go drain(qb, producers*perProducer/2)

	wg.Wait()
	consumers.Wait()

	if !qa.Empty() || !qb.Empty() {
		t.Fatal("after drain: both queues should be empty")
	}
}
