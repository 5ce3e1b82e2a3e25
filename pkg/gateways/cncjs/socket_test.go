package cncjs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validToken = "valid"

type receivedEvent struct {
	name    string
	payload json.RawMessage
}

// fakeCNCjs speaks just enough Engine.IO to exercise the client.
type fakeCNCjs struct {
	server       *httptest.Server
	version      int
	connectError string

	mu       sync.Mutex
	conn     *websocket.Conn
	received chan string
	dials    chan string
}

func newFakeCNCjs(t *testing.T, version int, connectError string) *fakeCNCjs {
	f := &fakeCNCjs{version: version, connectError: connectError, received: make(chan string, 100), dials: make(chan string, 10)}
	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.dials <- r.URL.String()
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.serve(conn)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCNCjs) serve(conn *websocket.Conn) {
	defer conn.Close()
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.send(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`)
	if f.version >= 4 {
		_, data, err := conn.ReadMessage()
		if err != nil || string(data) != "40" {
			return
		}
	}
	if f.connectError != "" {
		f.send(`44{"message":"` + f.connectError + `"}`)
		return
	}
	f.send(`40`)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		message := string(data)
		f.received <- message
		switch {
		case message == "2":
			f.send("3")
		case strings.HasPrefix(message, `42["list"`):
			f.send(`42["serialport:list",[{"port":"/dev/ttyUSB0"}]]`)
		}
	}
}

func (f *fakeCNCjs) send(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.TextMessage, []byte(message))
	}
}

func (f *fakeCNCjs) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *fakeCNCjs) params() entities.ConnectionParameters {
	return entities.ConnectionParameters{Host: f.server.URL}
}

type socketFixture struct {
	socket *Socket
	events chan receivedEvent
	errs   chan error
}

func newSocketFixture(version int) *socketFixture {
	logger, _ := test.NewNullLogger()
	conf := entities.StreamConfig{
		SocketPath:       "/socket.io/",
		EngineIOVersion:  version,
		HandshakeTimeout: 2 * time.Second,
		PingInterval:     25 * time.Second,
		MaxReconnectWait: 100 * time.Millisecond,
	}
	f := &socketFixture{
		socket: NewSocket(conf, logrus.NewEntry(logger)),
		events: make(chan receivedEvent, 100),
		errs:   make(chan error, 10),
	}
	f.socket.OnEvent(func(name string, payload json.RawMessage) {
		f.events <- receivedEvent{name: name, payload: payload}
	})
	f.socket.OnError(func(err error) {
		f.errs <- err
	})
	return f
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestSocketDeliversEvents(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)

	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))
	defer fixture.socket.Disconnect()
	assert.True(t, fixture.socket.Connected())
	assert.Contains(t, waitFor(t, server.dials), "EIO=3&transport=websocket")

	server.send(`42["controller:state","Grbl",{"status":{"activeState":"Idle"}}]`)

	event := waitFor(t, fixture.events)
	assert.Equal(t, "controller:state", event.name)
	assert.JSONEq(t, `["Grbl",{"status":{"activeState":"Idle"}}]`, string(event.payload))
}

func TestSocketRejectsExpiredToken(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)

	err := fixture.socket.Connect(context.Background(), "expired", server.params())

	assert.True(t, errors.Is(err, entities.ErrTransportAuthExpired))
	assert.False(t, fixture.socket.Connected())
}

func TestSocketConnectErrorPacketIsAuthorizationError(t *testing.T) {
	server := newFakeCNCjs(t, 4, "jwt expired")
	fixture := newSocketFixture(4)

	err := fixture.socket.Connect(context.Background(), validToken, server.params())

	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrTransportAuthExpired))
	assert.Contains(t, err.Error(), "jwt expired")
}

func TestSocketEngineIO4AnswersServerPing(t *testing.T) {
	server := newFakeCNCjs(t, 4, "")
	fixture := newSocketFixture(4)

	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))
	defer fixture.socket.Disconnect()

	server.send("2")
	assert.Equal(t, "3", waitFor(t, server.received))
}

func TestSocketRequestWaitsForResponseEvent(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)
	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))
	defer fixture.socket.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	payload, err := fixture.socket.Request(ctx, "list", "serialport:list")

	require.NoError(t, err)
	assert.JSONEq(t, `[[{"port":"/dev/ttyUSB0"}]]`, string(payload))
}

func TestSocketEmitWithoutConnection(t *testing.T) {
	fixture := newSocketFixture(3)

	assert.Equal(t, ErrNotConnected, fixture.socket.Emit("list"))
	assert.NoError(t, fixture.socket.Disconnect())
}

func TestSocketReportsAuthorizationErrorDuringSession(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)
	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))

	server.send(`44{"message":"401 Unauthorized"}`)

	err := waitFor(t, fixture.errs)
	assert.True(t, errors.Is(err, entities.ErrTransportAuthExpired))
	assert.Eventually(t, func() bool { return !fixture.socket.Connected() }, 3*time.Second, 10*time.Millisecond)
}

func TestSocketReconnectsAfterTransportFailure(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)
	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))
	defer fixture.socket.Disconnect()
	waitFor(t, server.dials)

	server.drop()

	err := waitFor(t, fixture.errs)
	assert.False(t, errors.Is(err, entities.ErrTransportAuthExpired))
	waitFor(t, server.dials)
	assert.True(t, fixture.socket.Connected())
}

func TestSocketDisconnectIsSilent(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)
	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))

	require.NoError(t, fixture.socket.Disconnect())

	assert.False(t, fixture.socket.Connected())
	select {
	case err := <-fixture.errs:
		t.Fatalf("unexpected error after disconnect: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSocketReconnectsAfterOversizedMessage(t *testing.T) {
	server := newFakeCNCjs(t, 3, "")
	fixture := newSocketFixture(3)
	fixture.socket.conf.MaxMessageSize = 1024
	require.NoError(t, fixture.socket.Connect(context.Background(), validToken, server.params()))
	defer fixture.socket.Disconnect()
	waitFor(t, server.dials)

	server.send(`42["gcode:load","` + strings.Repeat("G0 X1\\n", 500) + `"]`)

	err := waitFor(t, fixture.errs)
	assert.True(t, errors.Is(err, websocket.ErrReadLimit))
	waitFor(t, server.dials)
	assert.Empty(t, fixture.events)
}
