package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/dgnsrekt/voxkit/tts"
	"github.com/google/uuid"
)

// DefaultCapacity is the queue bound used when none is given.
const DefaultCapacity = 100

// ErrQueueFull is returned when the queue is at capacity and no queued item
// has a lower priority than the incoming request.
var ErrQueueFull = tts.NewError(tts.KindQueueFull, "utterance queue is full", nil)

// Item is a queued request with its generated id and arrival time.
type Item struct {
	ID         string
	Request    tts.Request
	EnqueuedAt time.Time

	seq   uint64
	index int
}

// Priority returns the request priority.
func (i *Item) Priority() tts.Priority {
	return i.Request.Priority()
}

// UtteranceQueue is a bounded, thread-safe priority queue of utterances.
// Items come out highest priority first, then in arrival order.
//
// When full, Enqueue displaces a single strictly lower-priority item instead
// of rebalancing the whole queue, which keeps every insert O(log n) plus one
// scan under sustained overload.
type UtteranceQueue struct {
	items    itemHeap
	byID     map[string]*Item
	capacity int
	seq      uint64

	// Called with each item displaced by Enqueue. Runs under the queue
	// lock and must not call back into the queue.
	onEvict func(Item)

	mu    sync.Mutex
	stats Stats
	now   func() time.Time
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalEvicted  int64
	TotalRejected int64
	TotalRemoved  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// Option configures an UtteranceQueue.
type Option func(*UtteranceQueue)

// WithEvictionHandler registers a callback for items displaced on insert.
func WithEvictionHandler(fn func(Item)) Option {
	return func(q *UtteranceQueue) { q.onEvict = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *UtteranceQueue) { q.now = now }
}

// New creates a queue holding at most capacity items. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int, opts ...Option) *UtteranceQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &UtteranceQueue{
		items:    make(itemHeap, 0, capacity),
		byID:     make(map[string]*Item, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	heap.Init(&q.items)
	return q
}

// Enqueue inserts a request and returns its generated id.
func (q *UtteranceQueue) Enqueue(req tts.Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		victim := q.evictionCandidate(req.Priority())
		if victim == nil {
			q.stats.TotalRejected++
			return "", ErrQueueFull
		}
		q.removeLocked(victim)
		q.stats.TotalEvicted++
		if q.onEvict != nil {
			q.onEvict(*victim)
		}
	}

	q.seq++
	item := &Item{
		ID:         uuid.NewString(),
		Request:    req,
		EnqueuedAt: q.now(),
		seq:        q.seq,
	}
	heap.Push(&q.items, item)
	q.byID[item.ID] = item

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = item.EnqueuedAt
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	return item.ID, nil
}

// evictionCandidate returns the lowest-priority item strictly below p.
// Among equals the most recent arrival is chosen so older work survives.
func (q *UtteranceQueue) evictionCandidate(p tts.Priority) *Item {
	var victim *Item
	for _, it := range q.items {
		if it.Priority() >= p {
			continue
		}
		if victim == nil ||
			it.Priority() < victim.Priority() ||
			(it.Priority() == victim.Priority() && it.seq > victim.seq) {
			victim = it
		}
	}
	return victim
}

// Dequeue removes and returns the head of the queue. It never blocks.
func (q *UtteranceQueue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}

	item := heap.Pop(&q.items).(*Item)
	delete(q.byID, item.ID)

	q.stats.TotalDequeued++
	q.stats.LastDequeue = q.now()

	return *item, true
}

// Peek returns the head of the queue without removing it.
func (q *UtteranceQueue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	return *q.items[0], true
}

// Remove deletes the item with the given id.
func (q *UtteranceQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok {
		return false
	}
	q.removeLocked(item)
	q.stats.TotalRemoved++
	return true
}

// ClearBelow removes every item whose priority is strictly lower than p and
// returns them in queue order.
func (q *UtteranceQueue) ClearBelow(p tts.Priority) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make(itemHeap, 0, len(q.items))
	var removed []*Item
	for _, it := range q.items {
		if it.Priority() < p {
			removed = append(removed, it)
			delete(q.byID, it.ID)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		return nil
	}

	q.items = kept
	heap.Init(&q.items)
	q.stats.TotalRemoved += int64(len(removed))

	return sortedCopy(removed)
}

// Clear empties the queue and returns the removed items in queue order.
func (q *UtteranceQueue) Clear() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := []*Item(q.items)
	q.items = make(itemHeap, 0, q.capacity)
	q.byID = make(map[string]*Item, q.capacity)
	q.stats.TotalRemoved += int64(len(removed))

	return sortedCopy(removed)
}

// Size returns the number of queued items.
func (q *UtteranceQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Contains reports whether an item with the given id is queued.
func (q *UtteranceQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[id]
	return ok
}

// Capacity returns the queue bound.
func (q *UtteranceQueue) Capacity() int {
	return q.capacity
}

// Snapshot returns the queued items in dequeue order.
func (q *UtteranceQueue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sortedCopy(q.items)
}

// GetStats returns current queue statistics.
func (q *UtteranceQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

func (q *UtteranceQueue) removeLocked(item *Item) {
	heap.Remove(&q.items, item.index)
	delete(q.byID, item.ID)
}

// sortedCopy clones the items so ordering them leaves the live heap
// indices untouched.
func sortedCopy(items []*Item) []Item {
	h := make(itemHeap, len(items))
	for i, it := range items {
		c := *it
		h[i] = &c
	}
	heap.Init(&h)

	out := make([]Item, 0, len(items))
	for h.Len() > 0 {
		out = append(out, *heap.Pop(&h).(*Item))
	}
	return out
}

// itemHeap orders by priority descending, then arrival ascending.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	pi, pj := h[i].Priority(), h[j].Priority()
	if pi != pj {
		return pi > pj
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	*h = old[0 : n-1]
	return item
}
