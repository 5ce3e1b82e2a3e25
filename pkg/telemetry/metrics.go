package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	received      *prometheus.CounterVec // by event, unrecognised events share otherEventLabel
	dropped       prometheus.Counter
	queueDepth    prometheus.Gauge
	published     *prometheus.CounterVec // by kind: gui, bulk
	suppressed    prometheus.Counter
	publishErrors *prometheus.CounterVec // by kind
}

// NewMetrics creates the pipeline collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		return nil, nil
	}

	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Stream events accepted into the ingestion queue",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Stream events dropped because the ingestion queue was full",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cncbridge",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events waiting in the ingestion queue",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "pipeline",
			Name:      "published_total",
			Help:      "Metrics published to the bus",
		}, []string{"kind"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "pipeline",
			Name:      "throttled_total",
			Help:      "Metrics suppressed by the publish throttle",
		}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "pipeline",
			Name:      "publish_errors_total",
			Help:      "Metrics the bus refused to publish",
		}, []string{"kind"}),
	}

	for _, collector := range []prometheus.Collector{
		m.received, m.dropped, m.queueDepth, m.published, m.suppressed, m.publishErrors,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// otherEventLabel keeps the label set bounded; event names are chosen by the stream server.
const otherEventLabel = "other"

func eventLabel(event string) string {
	if _, ok := eventShapes[event]; ok {
		return event
	}
	return otherEventLabel
}

func (m *Metrics) recordEnqueued(event string, depth int) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(eventLabel(event)).Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) recordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) recordDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) recordPublished(kind string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

func (m *Metrics) recordPublishError(kind string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(kind).Inc()
}
