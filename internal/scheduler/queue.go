package scheduler

import (
	"container/heap"
	"sync"
)

// queueItem is one pending job reference in the in-memory queue.
type queueItem struct {
	jobID    string
	priority int
	seq      uint64
}

// itemHeap orders by priority ascending (lower number runs first), then
// by submission order so equal priorities stay FIFO.
type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// jobQueue is a blocking priority queue of job ids. Dequeue parks the
// caller until an item arrives or the queue is closed.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	seq    uint64
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job id. Returns false after Close.
func (q *jobQueue) Enqueue(jobID string, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.seq++
	heap.Push(&q.items, &queueItem{jobID: jobID, priority: priority, seq: q.seq})
	q.cond.Signal()
	return true
}

// Dequeue blocks until an item is available or the queue is closed.
// The second return is false only when the queue is closed and drained.
func (q *jobQueue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.jobID, true
}

// Len returns the number of queued items.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked consumers; queued items remain drainable.
func (q *jobQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
