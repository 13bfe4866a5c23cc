package journal

import "sync"

// queue is a FIFO ring buffer that doubles once 70% full, up to a ceiling.
// Push never blocks; Ready is signalled whenever items are available.
type queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	max      int
	closed   bool
	ready    chan struct{}

	resizeCount int
}

func newQueue[T any](initialCapacity, max int) *queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if max < initialCapacity {
		max = initialCapacity
	}
	return &queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		max:      max,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends item. Returns false if the queue is closed or at its ceiling.
func (q *queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.count >= q.max {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold && q.capacity < q.max {
		q.grow()
	}
	if q.count == q.capacity {
		return false
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after a push. A receive does not guarantee items remain.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns up to max items (all if max <= 0).
func (q *queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = zero // Clear reference for GC
		q.head = (q.head + 1) % q.capacity
		q.count--
	}
	return out
}

// Close stops further pushes. Queued items can still be drained.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// grow doubles the capacity, bounded by max. Must be called with mu held.
func (q *queue[T]) grow() {
	newCapacity := q.capacity * 2
	if newCapacity > q.max {
		newCapacity = q.max
	}
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
