package connect

// Scheduler runs a consumer's render after a store change.
// A consumer notifies its descendants only once the scheduled render has run.
type Scheduler interface {
	Schedule(render func())
}

// ImmediateScheduler renders synchronously inside the notification.
type ImmediateScheduler struct{}

// Schedule runs render now.
func (ImmediateScheduler) Schedule(render func()) {
	render()
}

// QueueScheduler defers renders until Flush, like a host that batches
// updates into its own frame.
type QueueScheduler struct {
	queue []func()
}

// Schedule appends render to the queue.
func (q *QueueScheduler) Schedule(render func()) {
	q.queue = append(q.queue, render)
}

// Len returns the number of queued renders.
func (q *QueueScheduler) Len() int {
	return len(q.queue)
}

// Flush runs queued renders in FIFO order, including any scheduled while
// flushing, until the queue is empty. It returns how many ran.
func (q *QueueScheduler) Flush() int {
	n := 0
	for len(q.queue) > 0 {
		next := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		next()
		n++
	}
	return n
}
