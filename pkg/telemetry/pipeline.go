package telemetry

import (
	"context"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/sirupsen/logrus"
)

const (
	kindGUI  = "gui"
	kindBulk = "bulk"
)

// MetricPublisher delivers normalized metrics to the bus.
type MetricPublisher interface {
	PublishMetric(metric entities.NormalizedMetric) error
	PublishBulk(metric entities.NormalizedMetric) error
}

// Pipeline is the single consumer of the ingestion queue.
type Pipeline struct {
	queue      *Queue
	normalizer *Normalizer
	throttle   *Throttle
	publisher  MetricPublisher
	metrics    *Metrics
	announcer  *eventAnnouncer
	now        func() time.Time
	log        *logrus.Entry
}

type PipelineOption func(*Pipeline)

// WithBulkEventFilter sizes the filter used to log each unrecognised event name once.
func WithBulkEventFilter(capacity uint, probability float64) PipelineOption {
	return func(p *Pipeline) {
		p.announcer = newEventAnnouncer(capacity, probability)
	}
}

func NewPipeline(queue *Queue, normalizer *Normalizer, throttle *Throttle, publisher MetricPublisher, metrics *Metrics, log *logrus.Entry, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		queue:      queue,
		normalizer: normalizer,
		throttle:   throttle,
		publisher:  publisher,
		metrics:    metrics,
		announcer:  newEventAnnouncer(defaultBulkFilterCapacity, defaultBulkFilterProbability),
		now:        time.Now,
		log:        log,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run drains the queue until ctx is done or the queue is closed.
func (p *Pipeline) Run(ctx context.Context) {
	p.log.Info("Telemetry pipeline started")
	defer p.log.Info("Telemetry pipeline stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.queue.Events():
			if !ok {
				return
			}
			p.metrics.recordDepth(p.queue.Len())
			p.Process(event)
		}
	}
}

// Process normalizes one event and publishes every metric the throttle lets through.
// Publish failures are logged and do not stop the loop.
func (p *Pipeline) Process(event entities.StreamEvent) {
	for _, metric := range p.normalizer.Normalize(event.Name, event.Payload) {
		if metric.Bulk {
			if p.announcer.firstSeen(metric.Name) {
				p.log.Infof("Forwarding unrecognised event %s to the bulk topic", metric.Name)
			}
			p.publish(kindBulk, metric, p.publisher.PublishBulk)
			continue
		}
		if !p.throttle.ShouldPublish(metric.Name, p.now()) {
			p.metrics.recordSuppressed()
			p.log.Debugf("Metric %s throttled", metric.Name)
			continue
		}
		p.publish(kindGUI, metric, p.publisher.PublishMetric)
	}
}

func (p *Pipeline) publish(kind string, metric entities.NormalizedMetric, publish func(entities.NormalizedMetric) error) {
	if err := publish(metric); err != nil {
		p.metrics.recordPublishError(kind)
		p.log.Errorf("Failed to publish %s metric %s: %v", kind, metric.Name, err)
		return
	}
	p.metrics.recordPublished(kind)
}
