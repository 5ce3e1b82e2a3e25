package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
)

// DropFunc is called with every event the queue rejects.
type DropFunc func(entities.StreamEvent)

type QueueOption func(*Queue)

func WithDropFunc(fn DropFunc) QueueOption {
	return func(q *Queue) {
		q.onDrop = fn
	}
}

func WithQueueMetrics(metrics *Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = metrics
	}
}

// Queue is a bounded FIFO between the stream callbacks and the pipeline.
// When full, the incoming event is dropped and already queued events are kept.
type Queue struct {
	events  chan entities.StreamEvent
	dropped atomic.Uint64
	onDrop  DropFunc
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
}

func NewQueue(capacity int, options ...QueueOption) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{events: make(chan entities.StreamEvent, capacity)}
	for _, option := range options {
		option(q)
	}
	return q
}

// Enqueue never blocks. It reports whether the event was queued.
func (q *Queue) Enqueue(event entities.StreamEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.events <- event:
		q.metrics.recordEnqueued(event.Name, len(q.events))
		return true
	default:
	}

	q.dropped.Add(1)
	q.metrics.recordDropped()
	if q.onDrop != nil {
		q.onDrop(event)
	}
	return false
}

// Events is drained by a single consumer.
func (q *Queue) Events() <-chan entities.StreamEvent {
	return q.events
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Capacity() int {
	return cap(q.events)
}

// Close stops intake. Events already queued stay readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}
