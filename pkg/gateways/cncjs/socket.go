package cncjs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout        = 10 * time.Second
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second

	defaultHandshakeTimeout = 15 * time.Second
	defaultReconnectWait    = time.Minute
	defaultMaxMessageSize   = 16 << 20
)

var ErrNotConnected = errors.New("stream not connected")

// EventHandler receives every named event with its arguments as a JSON array.
type EventHandler func(name string, payload json.RawMessage)

// ErrorHandler receives transport failures. Errors wrapping
// entities.ErrTransportAuthExpired end the session; others are followed by a reconnect.
type ErrorHandler func(err error)

// Socket is a Socket.IO client for the CNCjs server over a websocket transport.
type Socket struct {
	conf   entities.StreamConfig
	dialer *websocket.Dialer
	log    *logrus.Entry

	onEvent EventHandler
	onError ErrorHandler

	mu      sync.Mutex
	current *session

	waitersMu sync.Mutex
	waiters   map[string][]chan json.RawMessage
}

type session struct {
	token  entities.Token
	params entities.ConnectionParameters
	ctx    context.Context
	cancel context.CancelFunc

	pingInterval time.Duration
	pingTimeout  time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSocket(conf entities.StreamConfig, log *logrus.Entry) *Socket {
	if conf.HandshakeTimeout <= 0 {
		conf.HandshakeTimeout = defaultHandshakeTimeout
	}
	if conf.EngineIOVersion == 0 {
		conf.EngineIOVersion = 3
	}
	if conf.MaxReconnectWait <= 0 {
		conf.MaxReconnectWait = defaultReconnectWait
	}
	if conf.MaxMessageSize <= 0 {
		conf.MaxMessageSize = defaultMaxMessageSize
	}
	return &Socket{
		conf: conf,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: conf.HandshakeTimeout,
		},
		log:     log,
		waiters: make(map[string][]chan json.RawMessage),
	}
}

// OnEvent must be called before Connect.
func (s *Socket) OnEvent(handler EventHandler) {
	s.onEvent = handler
}

// OnError must be called before Connect.
func (s *Socket) OnError(handler ErrorHandler) {
	s.onError = handler
}

// StreamURL builds the websocket endpoint of a CNCjs host.
func StreamURL(host, socketPath string, engineIOVersion int) (string, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	endpoint, err := url.Parse(host)
	if err != nil {
		return "", errors.Wrapf(err, "parse host %s", host)
	}
	switch endpoint.Scheme {
	case "http", "ws":
		endpoint.Scheme = "ws"
	case "https", "wss":
		endpoint.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported scheme %s", endpoint.Scheme)
	}
	path := strings.Trim(socketPath, "/")
	if path == "" {
		path = "socket.io"
	}
	endpoint.Path = "/" + path + "/"
	query := url.Values{}
	query.Set("EIO", strconv.Itoa(engineIOVersion))
	query.Set("transport", "websocket")
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// Connect opens the stream with token and returns once the server accepted the
// Socket.IO connection. The session then reconnects on its own after transport
// failures until Disconnect is called or the server rejects the token.
func (s *Socket) Connect(ctx context.Context, token entities.Token, params entities.ConnectionParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return errors.New("stream already connected")
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	sess := &session{token: token, params: params, ctx: sessionCtx, cancel: cancel}
	if err := s.open(ctx, sess); err != nil {
		cancel()
		return err
	}
	s.current = sess
	go s.run(sess)
	s.log.Infof("Stream connected to %s", params.Host)
	return nil
}

// Disconnect closes the current session. It is a no-op without one.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.cancel()
	_ = sess.write([]byte{engineMessage, socketDisconnect})
	return sess.close()
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Emit sends a named event with arguments.
func (s *Socket) Emit(event string, args ...interface{}) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	data, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}
	return sess.write(data)
}

// Request emits event and waits for the next event named response.
func (s *Socket) Request(ctx context.Context, event, response string, args ...interface{}) (json.RawMessage, error) {
	reply := make(chan json.RawMessage, 1)
	s.addWaiter(response, reply)
	defer s.removeWaiter(response, reply)

	if err := s.Emit(event, args...); err != nil {
		return nil, err
	}
	select {
	case payload := <-reply:
		return payload, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting for %s", response)
	}
}

func (s *Socket) open(ctx context.Context, sess *session) error {
	endpoint, err := StreamURL(sess.params.Host, s.conf.SocketPath, s.conf.EngineIOVersion)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(sess.token))

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return errors.Wrapf(entities.ErrTransportAuthExpired, "dial %s", endpoint)
		}
		return errors.Wrapf(err, "dial %s", endpoint)
	}
	conn.SetReadLimit(s.conf.MaxMessageSize)
	if err := s.handshake(conn, sess); err != nil {
		conn.Close()
		return err
	}
	return sess.setConn(conn)
}

func (s *Socket) handshake(conn *websocket.Conn, sess *session) error {
	if err := conn.SetReadDeadline(time.Now().Add(s.conf.HandshakeTimeout)); err != nil {
		return errors.Wrap(err, "handshake")
	}

	p, err := readPacket(conn)
	if err != nil {
		return errors.Wrap(err, "read open packet")
	}
	if p.engine != engineOpen {
		return errors.Errorf("unexpected packet %q before open", p.engine)
	}
	var open openPayload
	if err := json.Unmarshal(p.data, &open); err != nil {
		return errors.Wrap(err, "decode open packet")
	}
	sess.pingInterval = millisOr(open.PingInterval, s.conf.PingInterval)
	if sess.pingInterval <= 0 {
		sess.pingInterval = defaultPingInterval
	}
	sess.pingTimeout = millisOr(open.PingTimeout, defaultPingTimeout)

	if s.conf.EngineIOVersion >= 4 {
		if err := conn.WriteMessage(websocket.TextMessage, []byte{engineMessage, socketConnect}); err != nil {
			return errors.Wrap(err, "send connect packet")
		}
	}

	for {
		p, err := readPacket(conn)
		if err != nil {
			return errors.Wrap(err, "read connect packet")
		}
		switch {
		case p.engine == enginePing:
			if err := conn.WriteMessage(websocket.TextMessage, []byte{enginePong}); err != nil {
				return errors.Wrap(err, "send pong")
			}
		case p.engine == engineClose:
			return errors.New("stream closed during handshake")
		case p.engine == engineMessage && p.socket == socketConnect:
			return errors.Wrap(conn.SetReadDeadline(time.Time{}), "handshake")
		case p.engine == engineMessage && p.socket == socketConnectError:
			return errors.Wrap(entities.ErrTransportAuthExpired, connectErrorMessage(p.data))
		}
	}
}

func (s *Socket) run(sess *session) {
	for {
		err := s.serve(sess)
		if sess.ctx.Err() != nil {
			return
		}
		if errors.Is(err, entities.ErrTransportAuthExpired) {
			s.release(sess)
			s.report(err)
			return
		}

		s.log.Warnf("Stream connection lost: %v", err)
		s.report(err)
		if err := s.reconnect(sess); err != nil {
			if sess.ctx.Err() != nil {
				return
			}
			s.release(sess)
			s.report(err)
			return
		}
		s.log.Infof("Stream reconnected to %s", sess.params.Host)
	}
}

func (s *Socket) serve(sess *session) error {
	conn := sess.connection()
	if conn == nil {
		return ErrNotConnected
	}
	defer sess.close()

	stopPing := make(chan struct{})
	defer close(stopPing)
	if s.conf.EngineIOVersion < 4 {
		go s.ping(sess, stopPing)
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(sess.pingInterval + sess.pingTimeout)); err != nil {
			return errors.Wrap(err, "read stream")
		}
		p, err := readPacket(conn)
		if err != nil {
			return errors.Wrap(err, "read stream")
		}

		switch p.engine {
		case enginePing:
			if err := sess.write([]byte{enginePong}); err != nil {
				return errors.Wrap(err, "send pong")
			}
		case engineClose:
			return errors.New("stream closed by server")
		case engineMessage:
			switch p.socket {
			case socketEvent:
				s.dispatch(sess, p.data)
			case socketConnectError:
				return errors.Wrap(entities.ErrTransportAuthExpired, connectErrorMessage(p.data))
			case socketDisconnect:
				return errors.New("stream disconnected by server")
			}
		}
	}
}

// ping keeps an Engine.IO 3 connection alive; version 4 servers ping the client instead.
func (s *Socket) ping(sess *session, stop <-chan struct{}) {
	ticker := time.NewTicker(sess.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if err := sess.write([]byte{enginePing}); err != nil {
				s.log.Debugf("Stream ping failed: %v", err)
				return
			}
		}
	}
}

func (s *Socket) reconnect(sess *session) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = s.conf.MaxReconnectWait
	policy.MaxElapsedTime = 0

	attempt := func() error {
		err := s.open(sess.ctx, sess)
		if errors.Is(err, entities.ErrTransportAuthExpired) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warnf("Stream reconnect failed: %v, retrying in %s", err, wait)
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(policy, sess.ctx), notify)
}

func (s *Socket) dispatch(sess *session, data []byte) {
	name, args, err := parseEvent(data)
	if err != nil {
		s.log.Warnf("Dropping stream packet: %v", err)
		return
	}
	if sess.ctx.Err() != nil {
		return
	}
	s.notifyWaiters(name, args)
	if s.onEvent != nil {
		s.onEvent(name, args)
	}
}

func (s *Socket) report(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Socket) release(sess *session) {
	s.mu.Lock()
	if s.current == sess {
		s.current = nil
	}
	s.mu.Unlock()
	sess.cancel()
	sess.close()
}

func (s *Socket) addWaiter(event string, reply chan json.RawMessage) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	s.waiters[event] = append(s.waiters[event], reply)
}

func (s *Socket) removeWaiter(event string, reply chan json.RawMessage) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	waiting := s.waiters[event]
	for i, candidate := range waiting {
		if candidate == reply {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(s.waiters, event)
		return
	}
	s.waiters[event] = waiting
}

func (s *Socket) notifyWaiters(event string, payload json.RawMessage) {
	s.waitersMu.Lock()
	waiting := s.waiters[event]
	delete(s.waiters, event)
	s.waitersMu.Unlock()
	for _, reply := range waiting {
		select {
		case reply <- payload:
		default:
		}
	}
}

func (sess *session) setConn(conn *websocket.Conn) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ctx.Err() != nil {
		conn.Close()
		return sess.ctx.Err()
	}
	sess.conn = conn
	return nil
}

func (sess *session) connection() *websocket.Conn {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.conn
}

func (sess *session) write(data []byte) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.conn == nil {
		return ErrNotConnected
	}
	if err := sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return sess.conn.WriteMessage(websocket.TextMessage, data)
}

func (sess *session) close() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.conn == nil {
		return nil
	}
	_ = sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := sess.conn.Close()
	sess.conn = nil
	return err
}

func readPacket(conn *websocket.Conn) (packet, error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return packet{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return parsePacket(data)
	}
}

func millisOr(millis int64, fallback time.Duration) time.Duration {
	if millis <= 0 {
		return fallback
	}
	return time.Duration(millis) * time.Millisecond
}
