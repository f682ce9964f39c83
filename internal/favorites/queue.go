package favorites

import (
	"sync"

	"github.com/alexivanou/citysearch/internal/model"
)

// delivery is a snapshot bound either for every observer or for one
type delivery struct {
	seq       uint64
	broadcast bool
	target    string
	cities    []model.City
}

// deliveryQueue is an unbounded FIFO so that committing a change never
// waits on a slow observer.
type deliveryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []delivery
	closed bool
}

func newDeliveryQueue() *deliveryQueue {
	q := &deliveryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *deliveryQueue) push(d delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, d)
	q.cond.Signal()
}

// pop blocks until an item is available. It reports false once the queue
// is closed and drained.
func (q *deliveryQueue) pop() (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return delivery{}, false
	}

	d := q.items[0]
	q.items[0] = delivery{}
	q.items = q.items[1:]
	return d, true
}

func (q *deliveryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
