package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/auth"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/gateways/bus"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/gateways/cncjs"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/logging"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/supervisor"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/telemetry"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Bridge connects the bus credential topics, the sign-in gateway, the CNCjs stream
// and the telemetry pipeline.
type Bridge struct {
	conf       entities.BridgeConfig
	log        *logrus.Entry
	messaging  bus.Messaging
	subscriber bus.Subscriber
	store      *auth.TokenStore
	aggregator *auth.Aggregator
	queue      *telemetry.Queue
	pipeline   *telemetry.Pipeline
	socket     *cncjs.Socket
	supervisor *supervisor.Supervisor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMessaging returns the bus driver named by the configuration.
func NewMessaging(conf entities.BusConfig, log *logrus.Entry) (bus.Messaging, error) {
	switch conf.Driver {
	case entities.BusDriverMQTT:
		return bus.NewMQTT(conf, log), nil
	case entities.BusDriverAMQP:
		return bus.NewAMQP(conf, log), nil
	}
	return nil, errors.Errorf("unknown bus driver %q", conf.Driver)
}

func NewBridge(conf entities.BridgeConfig, messaging bus.Messaging, logger *logging.Logrus, registerer prometheus.Registerer) (*Bridge, error) {
	required, err := conf.RequiredCredentialFields()
	if err != nil {
		return nil, err
	}
	pipelineMetrics, err := telemetry.NewMetrics(registerer)
	if err != nil {
		return nil, errors.Wrap(err, "register pipeline metrics")
	}
	supervisorMetrics, err := supervisor.NewMetrics(registerer)
	if err != nil {
		return nil, errors.Wrap(err, "register stream metrics")
	}

	topics := entities.NewTopics(conf.TopicRoot)
	publisher := bus.NewMsgPublisher(messaging, topics)
	store := auth.NewTokenStore()
	gateway := auth.NewGateway(store, publisher, conf.Auth, logger.Get("AuthGateway"))

	queueLog := logger.Get("Queue")
	queue := telemetry.NewQueue(conf.Pipeline.QueueCapacity,
		telemetry.WithQueueMetrics(pipelineMetrics),
		telemetry.WithDropFunc(func(event entities.StreamEvent) {
			queueLog.Debugf("Queue full, dropping %s", event.Name)
		}))
	socket := cncjs.NewSocket(conf.Stream, logger.Get("Stream"))

	b := &Bridge{
		conf:       conf,
		log:        logger.Get("Bridge"),
		messaging:  messaging,
		subscriber: bus.NewMsgSubscriber(messaging, topics, logger.Get("Bus")),
		store:      store,
		aggregator: auth.NewAggregator(required, gateway, logger.Get("Aggregator")),
		queue:      queue,
		pipeline: telemetry.NewPipeline(
			queue,
			telemetry.NewNormalizer(logger.Get("Normalizer")),
			telemetry.NewThrottle(conf.Pipeline.ThrottleInterval),
			publisher,
			pipelineMetrics,
			logger.Get("Pipeline"),
			telemetry.WithBulkEventFilter(conf.Pipeline.BulkEventFilterCapacity, conf.Pipeline.BulkEventFilterProbability),
		),
		socket:     socket,
		supervisor: supervisor.NewSupervisor(socket, gateway, store, queue, conf.Stream, supervisorMetrics, logger.Get("Supervisor")),
	}
	return b, nil
}

// Start subscribes to the bus, connects to it and starts the pipeline.
// The stream opens once a token is known.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	b.socket.OnEvent(b.supervisor.HandleEvent)
	b.socket.OnError(func(err error) {
		b.supervisor.HandleError(ctx, err)
	})

	if err := b.subscriber.SubscribeToCredentials(b.aggregator.Ingest); err != nil {
		return errors.Wrap(err, "subscribe to credentials")
	}
	if err := b.subscriber.SubscribeToToken(func(token entities.Token) {
		b.handleToken(ctx, token)
	}); err != nil {
		return errors.Wrap(err, "subscribe to token")
	}
	if err := b.messaging.Start(ctx); err != nil {
		return errors.Wrap(err, "start bus")
	}
	if err := b.seedCredentials(); err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pipeline.Run(ctx)
	}()
	b.log.Info("Bridge started")
	return nil
}

// seedCredentials feeds the configured credentials file through the aggregator,
// as if each field had arrived on its topic.
func (b *Bridge) seedCredentials() error {
	path := b.conf.Auth.CredentialsFile
	if path == "" {
		return nil
	}
	credentials, err := utils.LoadCredentials(path)
	if err != nil {
		return errors.Wrapf(err, "load credentials from %s", path)
	}
	for _, field := range entities.AllCredentialFields {
		value := credentials.Get(field)
		if value == "" {
			continue
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return errors.Wrapf(err, "encode %s", field)
		}
		b.aggregator.Ingest(field, payload)
	}
	b.log.Infof("Credentials seeded from %s", path)
	return nil
}

// handleToken accepts tokens seen on the bus, including the bridge's own publications
// and retained values from an earlier run.
func (b *Bridge) handleToken(ctx context.Context, token entities.Token) {
	if b.store.SetToken(token) {
		b.log.Debug("Token received from the bus")
	}
	b.supervisor.HandleToken(ctx, token)
}

// Stop closes the stream and the pipeline, then disconnects from the bus.
func (b *Bridge) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.supervisor.Stop()
	b.queue.Close()
	b.wg.Wait()
	b.aggregator.Wait()
	b.log.Info("Bridge stopped")
	return b.messaging.Stop()
}

func (b *Bridge) State() entities.ConnectionState {
	return b.supervisor.State()
}

func (b *Bridge) Token() entities.Token {
	return b.store.Token()
}

func (b *Bridge) DroppedEvents() uint64 {
	return b.queue.Dropped()
}
