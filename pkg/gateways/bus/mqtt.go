package bus

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const disconnectQuiesceMillis = 250

// MQTT is the Messaging driver for an MQTT broker.
type MQTT struct {
	conf          entities.BusConfig
	log           *logrus.Entry
	client        mqtt.Client
	subscriptions []subscription
	mu            sync.Mutex
}

func NewMQTT(conf entities.BusConfig, log *logrus.Entry) *MQTT {
	return &MQTT{conf: conf, log: log}
}

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.conf.URL)
	opts.SetClientID(m.conf.ClientID + "-" + uuid.NewString()[:8])
	opts.SetUsername(m.conf.Username)
	opts.SetPassword(m.conf.Password)
	opts.SetConnectTimeout(m.conf.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// Handlers must not block the client router while the bridge publishes from inside them.
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warnf("MQTT connection lost: %v", err)
	})
	return opts
}

func (m *MQTT) Start(ctx context.Context) error {
	m.client = mqtt.NewClient(m.clientOptions())
	connect := func() error {
		token := m.client.Connect()
		if !token.WaitTimeout(m.conf.ConnectTimeout) {
			return errors.Errorf("timeout connecting to %s", m.conf.URL)
		}
		return token.Error()
	}
	if err := backoff.Retry(connect, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return errors.Wrap(err, "mqtt connect")
	}
	m.log.Infof("connected to MQTT broker %s", m.conf.URL)
	return nil
}

func (m *MQTT) Stop() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(disconnectQuiesceMillis)
	}
	return nil
}

func (m *MQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if m.client == nil {
		return errors.New("mqtt client not started")
	}
	token := m.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(m.conf.ConnectTimeout) {
		return errors.Errorf("timeout publishing to %s", topic)
	}
	return errors.Wrapf(token.Error(), "publish %s", topic)
}

func (m *MQTT) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, subscription{topic: topic, qos: qos, handler: handler})
	m.mu.Unlock()
	if m.client == nil || !m.client.IsConnected() {
		// onConnect subscribes once the session is up.
		return nil
	}
	return m.subscribe(m.client, subscription{topic: topic, qos: qos, handler: handler})
}

func (m *MQTT) subscribe(client mqtt.Client, sub subscription) error {
	token := client.Subscribe(sub.topic, sub.qos, func(_ mqtt.Client, msg mqtt.Message) {
		sub.handler(InMsg{Topic: msg.Topic(), Payload: msg.Payload(), Retained: msg.Retained()})
	})
	if !token.WaitTimeout(m.conf.ConnectTimeout) {
		return errors.Errorf("timeout subscribing to %s", sub.topic)
	}
	return errors.Wrapf(token.Error(), "subscribe %s", sub.topic)
}

// onConnect restores subscriptions; a clean session forgets them on every reconnect.
func (m *MQTT) onConnect(client mqtt.Client) {
	m.mu.Lock()
	subs := make([]subscription, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.mu.Unlock()
	for _, sub := range subs {
		if err := m.subscribe(client, sub); err != nil {
			m.log.Errorln(err)
		}
	}
}
