package telemetry

import (
	"fmt"
	"testing"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(i int) entities.StreamEvent {
	return entities.StreamEvent{Name: fmt.Sprintf("event-%d", i)}
}

func TestQueueDropsIncomingWhenFull(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	var dropped []entities.StreamEvent
	queue := NewQueue(3, WithQueueMetrics(metrics), WithDropFunc(func(e entities.StreamEvent) {
		dropped = append(dropped, e)
	}))

	for i := 1; i <= 3; i++ {
		assert.True(t, queue.Enqueue(event(i)))
	}
	assert.False(t, queue.Enqueue(event(4)))

	assert.Equal(t, uint64(1), queue.Dropped())
	assert.Equal(t, []entities.StreamEvent{event(4)}, dropped)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.dropped))
	assert.Equal(t, 3, queue.Len())
	assert.Equal(t, 3, queue.Capacity())

	for i := 1; i <= 3; i++ {
		assert.Equal(t, event(i), <-queue.Events())
	}
}

func TestQueueClosedRejectsEvents(t *testing.T) {
	queue := NewQueue(2)
	require.True(t, queue.Enqueue(event(1)))
	queue.Close()
	queue.Close()

	assert.False(t, queue.Enqueue(event(2)))
	assert.Equal(t, uint64(0), queue.Dropped())

	received, ok := <-queue.Events()
	assert.True(t, ok)
	assert.Equal(t, event(1), received)
	_, ok = <-queue.Events()
	assert.False(t, ok)
}

func TestQueueWithoutMetrics(t *testing.T) {
	metrics, err := NewMetrics(nil)
	assert.NoError(t, err)
	assert.Nil(t, metrics)

	queue := NewQueue(0, WithQueueMetrics(metrics))
	assert.Equal(t, 1, queue.Capacity())
	assert.True(t, queue.Enqueue(event(1)))
	assert.False(t, queue.Enqueue(event(2)))
}

func TestQueueLabelsUnrecognisedEventsAsOther(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	queue := NewQueue(10, WithQueueMetrics(metrics))

	for _, name := range []string{EventWorkflowState, "gcode:load", "feeder:status", EventWorkflowState, "x" + EventSenderStatus} {
		require.True(t, queue.Enqueue(entities.StreamEvent{Name: name}))
	}

	assert.Equal(t, 2, testutil.CollectAndCount(metrics.received))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.received.WithLabelValues(EventWorkflowState)))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.received.WithLabelValues(otherEventLabel)))
}
