package workerpool

// taskQueue is a fixed-capacity FIFO ring buffer. It is not safe for
// concurrent use; the pool guards it with its mutex. push on a full queue and
// pop on an empty one are programming errors and panic.
type taskQueue struct {
	items []queuedTask
	head  int
	tail  int
	size  int
}

func newTaskQueue(capacity int) *taskQueue {
	return &taskQueue{items: make([]queuedTask, capacity)}
}

func (q *taskQueue) push(t queuedTask) {
	if q.size == len(q.items) {
		panic("workerpool: push on full queue")
	}
	q.items[q.tail] = t
	q.tail = (q.tail + 1) % len(q.items)
	q.size++
}

func (q *taskQueue) pop() queuedTask {
	if q.size == 0 {
		panic("workerpool: pop on empty queue")
	}
	t := q.items[q.head]
	q.items[q.head] = queuedTask{}
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return t
}

func (q *taskQueue) len() int { return q.size }

func (q *taskQueue) cap() int { return len(q.items) }

func (q *taskQueue) empty() bool { return q.size == 0 }

func (q *taskQueue) full() bool { return q.size == len(q.items) }

// clear drops every queued task and returns how many were dropped.
func (q *taskQueue) clear() int {
	n := q.size
	for q.size > 0 {
		q.pop()
	}
	q.head, q.tail = 0, 0
	return n
}
