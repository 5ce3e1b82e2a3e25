package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeTypeTopic = "topic"
	durable           = true
	deleteWhenUnused  = false
	autoDelete        = true
	exclusive         = true
	noWait            = false
	internal          = false
	autoAck           = true
	noLocal           = false
	consumerTag       = ""
	reservedPrefix    = "amq."
)

// AMQP is the Messaging driver for brokers reached over AMQP 0-9-1, such as a RabbitMQ
// instance whose MQTT plugin shares the amq.topic exchange.
// Retained publications are sent persistent; QoS levels are not mapped.
type AMQP struct {
	conf          entities.BusConfig
	log           *logrus.Entry
	conn          *amqp.Connection
	channel       *amqp.Channel
	subscriptions []subscription
	mu            sync.Mutex
	stopped       bool
	// ctx bounds the initial connect and every later reconnect loop.
	ctx           context.Context
}

func NewAMQP(conf entities.BusConfig, log *logrus.Entry) *AMQP {
	return &AMQP{conf: conf, log: log}
}

// RoutingKey maps an MQTT style topic onto an AMQP topic routing key.
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// TopicFromRoutingKey is the inverse of RoutingKey.
func TopicFromRoutingKey(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

func (a *AMQP) Start(ctx context.Context) error {
	a.ctx = ctx
	err := backoff.Retry(a.connect, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		return errors.Wrap(err, "amqp connect")
	}
	go a.notifyWhenClosed()
	return nil
}

func (a *AMQP) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn.Close()
	}
	return nil
}

func (a *AMQP) connect() error {
	conn, err := amqp.DialConfig(a.conf.URL, amqp.Config{Dial: amqp.DefaultDial(a.conf.ConnectTimeout)})
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := declareExchange(channel, a.conf.Exchange); err != nil {
		_ = conn.Close()
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.channel = channel
	subs := make([]subscription, len(a.subscriptions))
	copy(subs, a.subscriptions)
	a.mu.Unlock()

	for _, sub := range subs {
		if err := a.consume(channel, sub); err != nil {
			return err
		}
	}
	return nil
}

func declareExchange(channel *amqp.Channel, name string) error {
	if strings.HasPrefix(name, reservedPrefix) {
		return channel.ExchangeDeclarePassive(name, exchangeTypeTopic, durable, deleteWhenUnused, internal, noWait, nil)
	}
	return channel.ExchangeDeclare(name, exchangeTypeTopic, durable, deleteWhenUnused, internal, noWait, nil)
}

func (a *AMQP) notifyWhenClosed() {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	errReason := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if errReason == nil || stopped {
		return
	}
	a.log.Warnf("AMQP connection closed: %v", errReason)

	reconnectionBackOff := backoff.NewExponentialBackOff()
	reconnectionBackOff.InitialInterval = time.Second
	reconnectionBackOff.MaxInterval = 5 * time.Minute
	reconnectionBackOff.Multiplier = 1.7
	reconnectionBackOff.MaxElapsedTime = 0

	err := backoff.RetryNotify(a.connect, backoff.WithContext(reconnectionBackOff, a.ctx), func(err error, next time.Duration) {
		a.log.Warnf("cannot reconnect to AMQP broker: %v, retrying in %s", err, next)
	})
	if err != nil {
		return
	}
	a.log.Info("reconnection to AMQP broker was successful")
	go a.notifyWhenClosed()
}

func (a *AMQP) Publish(topic string, qos byte, retained bool, payload []byte) error {
	a.mu.Lock()
	channel := a.channel
	a.mu.Unlock()
	if channel == nil {
		return errors.New("amqp channel not open")
	}
	deliveryMode := amqp.Transient
	if retained {
		deliveryMode = amqp.Persistent
	}
	err := channel.Publish(
		a.conf.Exchange,
		RoutingKey(topic),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	return errors.Wrapf(err, "publish %s", topic)
}

func (a *AMQP) Subscribe(topic string, qos byte, handler MessageHandler) error {
	sub := subscription{topic: topic, qos: qos, handler: handler}
	a.mu.Lock()
	a.subscriptions = append(a.subscriptions, sub)
	channel := a.channel
	a.mu.Unlock()
	if channel == nil {
		return nil
	}
	return a.consume(channel, sub)
}

func (a *AMQP) consume(channel *amqp.Channel, sub subscription) error {
	queue, err := channel.QueueDeclare(
		a.conf.ClientID+"."+uuid.NewString(),
		!durable,
		autoDelete,
		exclusive,
		noWait,
		nil, // arguments
	)
	if err != nil {
		return errors.Wrap(err, "declare queue")
	}
	if err := channel.QueueBind(queue.Name, RoutingKey(sub.topic), a.conf.Exchange, noWait, nil); err != nil {
		return errors.Wrapf(err, "bind %s", sub.topic)
	}
	deliveries, err := channel.Consume(queue.Name, consumerTag, autoAck, exclusive, noLocal, noWait, nil)
	if err != nil {
		return errors.Wrapf(err, "consume %s", sub.topic)
	}
	go convertDeliveryToInMsg(deliveries, sub.handler)
	return nil
}

func convertDeliveryToInMsg(deliveries <-chan amqp.Delivery, handler MessageHandler) {
	for d := range deliveries {
		handler(InMsg{
			Topic:    TopicFromRoutingKey(d.RoutingKey),
			Payload:  d.Body,
			Retained: d.DeliveryMode == amqp.Persistent,
		})
	}
}
