package entities

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	BusDriverMQTT = "mqtt"
	BusDriverAMQP = "amqp"
)

// BridgeConfig is the top-level YAML configuration.
type BridgeConfig struct {
	TopicRoot string         `yaml:"topicRoot"`
	Log       LogConfig      `yaml:"log"`
	Bus       BusConfig      `yaml:"bus"`
	Auth      AuthConfig     `yaml:"auth"`
	Stream    StreamConfig   `yaml:"stream"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BusConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Exchange is only used by the AMQP driver.
	Exchange       string        `yaml:"exchange"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

type AuthConfig struct {
	RequiredFields []string      `yaml:"requiredFields"`
	SigninPath     string        `yaml:"signinPath"`
	Timeout        time.Duration `yaml:"timeout"`
	// CredentialsFile optionally seeds credentials from a YAML file before any bus delivery.
	CredentialsFile string `yaml:"credentialsFile"`
}

type StreamConfig struct {
	SocketPath       string        `yaml:"socketPath"`
	EngineIOVersion  int           `yaml:"engineIOVersion"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	PingInterval     time.Duration `yaml:"pingInterval"`
	MaxReconnectWait time.Duration `yaml:"maxReconnectWait"`
	// MaxMessageSize bounds a single websocket message in bytes; larger ones end the connection.
	MaxMessageSize int64 `yaml:"maxMessageSize"`
}

type PipelineConfig struct {
	QueueCapacity    int           `yaml:"queueCapacity"`
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
	// BulkEventFilterCapacity sizes the bloom filter remembering which unknown events were already announced.
	BulkEventFilterCapacity    uint    `yaml:"bulkEventFilterCapacity"`
	BulkEventFilterProbability float64 `yaml:"bulkEventFilterProbability"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ApplyDefaults fills every unset option.
func (c *BridgeConfig) ApplyDefaults() {
	if c.TopicRoot == "" {
		c.TopicRoot = "CNC"
	}
	c.TopicRoot = strings.TrimRight(c.TopicRoot, "/")
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = BusDriverMQTT
	}
	if c.Bus.URL == "" {
		c.Bus.URL = "tcp://127.0.0.1:1883"
	}
	if c.Bus.ClientID == "" {
		c.Bus.ClientID = "cnc-bridge"
	}
	if c.Bus.Exchange == "" {
		c.Bus.Exchange = "amq.topic"
	}
	if c.Bus.ConnectTimeout == 0 {
		c.Bus.ConnectTimeout = 10 * time.Second
	}
	if len(c.Auth.RequiredFields) == 0 {
		for _, field := range DefaultRequiredFields {
			c.Auth.RequiredFields = append(c.Auth.RequiredFields, string(field))
		}
	}
	if c.Auth.SigninPath == "" {
		c.Auth.SigninPath = "/api/signin"
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = 10 * time.Second
	}
	if c.Stream.SocketPath == "" {
		c.Stream.SocketPath = "/socket.io/"
	}
	if c.Stream.EngineIOVersion == 0 {
		c.Stream.EngineIOVersion = 3
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = 15 * time.Second
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = 25 * time.Second
	}
	if c.Stream.MaxReconnectWait == 0 {
		c.Stream.MaxReconnectWait = time.Minute
	}
	if c.Stream.MaxMessageSize == 0 {
		c.Stream.MaxMessageSize = 16 << 20
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = 1000
	}
	if c.Pipeline.ThrottleInterval == 0 {
		c.Pipeline.ThrottleInterval = 500 * time.Millisecond
	}
	if c.Pipeline.BulkEventFilterCapacity == 0 {
		c.Pipeline.BulkEventFilterCapacity = 1000
	}
	if c.Pipeline.BulkEventFilterProbability == 0 {
		c.Pipeline.BulkEventFilterProbability = 0.001
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c *BridgeConfig) Validate() error {
	if c.Bus.Driver != BusDriverMQTT && c.Bus.Driver != BusDriverAMQP {
		return errors.Errorf("bus.driver must be %q or %q, got %q", BusDriverMQTT, BusDriverAMQP, c.Bus.Driver)
	}
	if _, err := c.RequiredCredentialFields(); err != nil {
		return err
	}
	if c.Pipeline.QueueCapacity < 0 {
		return errors.New("pipeline.queueCapacity must be positive")
	}
	if c.Stream.EngineIOVersion != 3 && c.Stream.EngineIOVersion != 4 {
		return errors.New("stream.engineIOVersion must be 3 or 4")
	}
	if p := c.Pipeline.BulkEventFilterProbability; p <= 0 || p >= 1 {
		return errors.New("pipeline.bulkEventFilterProbability must be between 0 and 1")
	}
	return nil
}

// RequiredCredentialFields parses auth.requiredFields.
func (c *BridgeConfig) RequiredCredentialFields() ([]CredentialField, error) {
	fields := make([]CredentialField, 0, len(c.Auth.RequiredFields))
	for _, name := range c.Auth.RequiredFields {
		field, ok := ParseCredentialField(strings.TrimSpace(name))
		if !ok {
			return nil, errors.Errorf("auth.requiredFields: unknown field %q", name)
		}
		fields = append(fields, field)
	}
	return fields, nil
}
