package queue

import (
	"sync"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Queue is a FIFO of items awaiting classification, deduplicated by identity.
// An identity is recorded as seen when first enqueued and stays seen after it
// is taken, so an item is never queued twice within one session.
type Queue struct {
	mu    sync.Mutex
	items []models.Item
	seen  map[string]struct{}
}

// New creates an empty queue
func New() *Queue {
	return &Queue{seen: make(map[string]struct{})}
}

// EnqueueIfNew appends every item whose identity has not been seen, in the
// order given, and returns how many were added.
func (q *Queue) EnqueueIfNew(items []models.Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, item := range items {
		id := item.Identity()
		if _, ok := q.seen[id]; ok {
			continue
		}
		q.seen[id] = struct{}{}
		q.items = append(q.items, item)
		added++
	}
	return added
}

// Seed marks identities as seen without queueing them
func (q *Queue) Seed(identities []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range identities {
		q.seen[id] = struct{}{}
	}
}

// Take removes and returns up to n items from the head of the queue
func (q *Queue) Take(n int) []models.Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	n = min(n, len(q.items))

	batch := make([]models.Item, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

// Seen reports whether identity has been enqueued or seeded
func (q *Queue) Seen(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.seen[identity]
	return ok
}

// Len returns the number of items waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset empties the queue and forgets every seen identity
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.seen = make(map[string]struct{})
}
