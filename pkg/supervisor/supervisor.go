package supervisor

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/sirupsen/logrus"
)

const (
	eventListPorts  = "list"
	eventPortList   = "serialport:list"
	eventOpenPort   = "open"
	defaultPortWait = 15 * time.Second
)

// Stream is the transport the supervisor drives.
type Stream interface {
	Connect(ctx context.Context, token entities.Token, params entities.ConnectionParameters) error
	Disconnect() error
	Emit(event string, args ...interface{}) error
	Request(ctx context.Context, event, response string, args ...interface{}) (json.RawMessage, error)
}

// Refresher obtains a new token and broadcasts it.
type Refresher interface {
	RefreshAndRepublish(ctx context.Context) (entities.Token, error)
}

// ParameterSource provides where and how to reach the controller.
type ParameterSource interface {
	ConnectionParameters() entities.ConnectionParameters
}

// EventSink accepts stream events without blocking.
type EventSink interface {
	Enqueue(event entities.StreamEvent) bool
}

// Supervisor owns the stream connection state. It opens the stream when a token
// arrives and swaps the token for a fresh one when the stream rejects it.
type Supervisor struct {
	stream    Stream
	refresher Refresher
	params    ParameterSource
	sink      EventSink
	metrics   *Metrics
	portWait  time.Duration
	log       *logrus.Entry

	mu      sync.Mutex
	token   entities.Token
	stopped bool

	state            atomic.Int32
	reauthenticating atomic.Bool
}

func NewSupervisor(stream Stream, refresher Refresher, params ParameterSource, sink EventSink, conf entities.StreamConfig, metrics *Metrics, log *logrus.Entry) *Supervisor {
	portWait := conf.HandshakeTimeout
	if portWait <= 0 {
		portWait = defaultPortWait
	}
	s := &Supervisor{
		stream:    stream,
		refresher: refresher,
		params:    params,
		sink:      sink,
		metrics:   metrics,
		portWait:  portWait,
		log:       log,
	}
	s.metrics.recordState(entities.Disconnected)
	return s
}

func (s *Supervisor) State() entities.ConnectionState {
	return entities.ConnectionState(s.state.Load())
}

func (s *Supervisor) setState(state entities.ConnectionState) {
	previous := entities.ConnectionState(s.state.Swap(int32(state)))
	s.metrics.recordState(state)
	if previous != state {
		s.log.Infof("Stream %s -> %s", previous, state)
	}
}

// HandleToken sets the token used for the next connection and connects when idle.
func (s *Supervisor) HandleToken(ctx context.Context, token entities.Token) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	if s.stopped {
		return
	}
	if s.State() != entities.Disconnected {
		s.log.Debug("Token updated for the next stream connection")
		return
	}
	s.connect(ctx)
}

// HandleError reacts to transport errors. Authorization errors while connected trigger a
// token refresh and a clean reconnect; concurrent ones are coalesced into the running refresh.
func (s *Supervisor) HandleError(ctx context.Context, err error) {
	if !IsAuthorizationError(err) {
		s.log.Warnf("Stream error: %v", err)
		return
	}
	if !s.reauthenticating.CompareAndSwap(false, true) {
		s.log.Debugf("Reauthentication already running, ignoring: %v", err)
		return
	}
	defer s.reauthenticating.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if state := s.State(); state != entities.Connected || s.stopped {
		s.log.Warnf("Authorization error while %s, ignoring: %v", state, err)
		return
	}
	s.log.Warnf("Stream authorization rejected: %v", err)
	s.reauthenticate(ctx)
}

// HandleEvent queues an event while the stream is connected.
func (s *Supervisor) HandleEvent(name string, payload json.RawMessage) {
	if s.State() != entities.Connected {
		s.metrics.recordIgnored()
		s.log.Debugf("Ignoring event %s while %s", name, s.State())
		return
	}
	s.sink.Enqueue(entities.StreamEvent{Name: name, Payload: payload, ReceivedAt: time.Now()})
}

// Stop closes the stream. Later tokens no longer open it.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if err := s.stream.Disconnect(); err != nil {
		s.log.Warnf("Failed to disconnect stream: %v", err)
	}
	s.setState(entities.Disconnected)
}

func (s *Supervisor) reauthenticate(ctx context.Context) {
	s.setState(entities.Reauthenticating)
	s.metrics.recordReauthentication()

	token, err := s.refresher.RefreshAndRepublish(ctx)
	if err != nil {
		s.log.Errorf("Token refresh failed: %v", err)
		if err := s.stream.Disconnect(); err != nil {
			s.log.Warnf("Failed to disconnect stream: %v", err)
		}
		s.setState(entities.Disconnected)
		return
	}
	s.token = token

	if err := s.stream.Disconnect(); err != nil {
		s.log.Warnf("Failed to disconnect stream: %v", err)
	}
	s.connect(ctx)
}

func (s *Supervisor) connect(ctx context.Context) {
	params := s.params.ConnectionParameters()
	if params.Host == "" {
		s.log.Warn("No CNCjs host known yet, waiting for credentials")
		s.setState(entities.Disconnected)
		return
	}
	s.setState(entities.Connecting)
	if err := s.stream.Connect(ctx, s.token, params); err != nil {
		s.metrics.recordConnectFailure()
		s.log.Errorf("Stream connection to %s failed: %v", params.Host, err)
		s.setState(entities.Disconnected)
		return
	}
	s.setState(entities.Connected)

	if params.SerialPort != "" {
		s.openPort(ctx, params)
	}
}

func (s *Supervisor) openPort(ctx context.Context, params entities.ConnectionParameters) {
	requestCtx, cancel := context.WithTimeout(ctx, s.portWait)
	defer cancel()

	payload, err := s.stream.Request(requestCtx, eventListPorts, eventPortList)
	if err != nil {
		s.log.Warnf("Failed to list serial ports: %v", err)
		return
	}
	if !portListed(payload, params.SerialPort) {
		s.log.Warnf("Serial port %s is not available, skipping open", params.SerialPort)
		return
	}

	options := map[string]interface{}{
		"controllerType": params.ControllerType,
		"baudrate":       baudRate(params.BaudRate),
	}
	if err := s.stream.Emit(eventOpenPort, params.SerialPort, options); err != nil {
		s.log.Warnf("Failed to open serial port %s: %v", params.SerialPort, err)
		return
	}
	s.log.Infof("Opened serial port %s", params.SerialPort)
}

// portListed accepts the event arguments, whose first element is the port list, or the list itself.
func portListed(payload json.RawMessage, port string) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return false
	}
	if len(items) > 0 {
		var nested []json.RawMessage
		if err := json.Unmarshal(items[0], &nested); err == nil {
			items = nested
		}
	}
	for _, item := range items {
		var entry struct {
			Port string `json:"port"`
		}
		if err := json.Unmarshal(item, &entry); err == nil && entry.Port == port {
			return true
		}
		var name string
		if err := json.Unmarshal(item, &name); err == nil && name == port {
			return true
		}
	}
	return false
}

func baudRate(value string) interface{} {
	if rate, err := strconv.Atoi(value); err == nil {
		return rate
	}
	return value
}
