package scheduler

import (
	"container/heap"
	"sort"
	"time"
)

// QueueEntry is one pending task reference in the priority queue, carrying
// exactly the fields the composite ordering key is derived from.
type QueueEntry struct {
	TaskID      string
	Tier        int
	SubmittedAt time.Time
	Seq         int64

	index int // heap position, maintained by entryHeap
}

// entryHeap orders entries for dispatch: higher tier first, then earlier
// submission, then lower store sequence. The tie-break chain is exact -
// equal-tier tasks are served strictly in submission order.
type entryHeap []*QueueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Tier != h[j].Tier {
		return h[i].Tier > h[j].Tier
	}
	if !h[i].SubmittedAt.Equal(h[j].SubmittedAt) {
		return h[i].SubmittedAt.Before(h[j].SubmittedAt)
	}
	return h[i].Seq < h[j].Seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	entry := x.(*QueueEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// PriorityQueue maintains pending tasks in dispatch order with O(log n)
// insert, pop-highest, and targeted removal.
// Not safe for concurrent use; the owning Scheduler serializes access.
type PriorityQueue struct {
	heap entryHeap
	byID map[string]*QueueEntry
}

// NewPriorityQueue creates an empty priority queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		byID: make(map[string]*QueueEntry),
	}
}

// Len returns the number of queued entries.
func (q *PriorityQueue) Len() int {
	return len(q.heap)
}

// Contains reports whether the task is queued.
func (q *PriorityQueue) Contains(taskID string) bool {
	_, ok := q.byID[taskID]
	return ok
}

// Enqueue inserts an entry. Returns false if the task is already queued.
func (q *PriorityQueue) Enqueue(entry QueueEntry) bool {
	if _, exists := q.byID[entry.TaskID]; exists {
		return false
	}
	e := &entry
	heap.Push(&q.heap, e)
	q.byID[entry.TaskID] = e
	return true
}

// PopHighest removes and returns the best entry: highest tier first,
// earliest submission among ties. Returns false on an empty queue.
func (q *PriorityQueue) PopHighest() (QueueEntry, bool) {
	if len(q.heap) == 0 {
		return QueueEntry{}, false
	}
	e := heap.Pop(&q.heap).(*QueueEntry)
	delete(q.byID, e.TaskID)
	return *e, true
}

// Remove deletes a specific entry (the cancellation path).
// Returns whether it was present.
func (q *PriorityQueue) Remove(taskID string) bool {
	e, ok := q.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.index)
	delete(q.byID, taskID)
	return true
}

// Snapshot returns all entries in dispatch order (rank 1 first).
func (q *PriorityQueue) Snapshot() []QueueEntry {
	ordered := make([]*QueueEntry, len(q.heap))
	copy(ordered, q.heap)
	sort.Slice(ordered, func(i, j int) bool {
		return entryHeap(ordered).Less(i, j)
	})

	out := make([]QueueEntry, len(ordered))
	for i, e := range ordered {
		out[i] = *e
	}
	return out
}
