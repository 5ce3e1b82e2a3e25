package cncjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePacket(t *testing.T) {
	cases := []struct {
		raw    string
		engine byte
		socket byte
		data   string
	}{
		{raw: `0{"sid":"x"}`, engine: engineOpen, data: `{"sid":"x"}`},
		{raw: `2`, engine: enginePing},
		{raw: `3`, engine: enginePong},
		{raw: `40`, engine: engineMessage, socket: socketConnect},
		{raw: `42["workflow:state","idle"]`, engine: engineMessage, socket: socketEvent, data: `["workflow:state","idle"]`},
		{raw: `4217["serialport:list",[]]`, engine: engineMessage, socket: socketEvent, data: `["serialport:list",[]]`},
		{raw: `42/cnc,5["a"]`, engine: engineMessage, socket: socketEvent, data: `["a"]`},
		{raw: `44{"message":"jwt expired"}`, engine: engineMessage, socket: socketConnectError, data: `{"message":"jwt expired"}`},
	}
	for _, c := range cases {
		p, err := parsePacket([]byte(c.raw))
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.engine, p.engine, c.raw)
		assert.Equal(t, c.socket, p.socket, c.raw)
		assert.Equal(t, c.data, string(p.data), c.raw)
	}
}

func TestParsePacketErrors(t *testing.T) {
	_, err := parsePacket(nil)
	assert.Error(t, err)
	_, err = parsePacket([]byte("4"))
	assert.Error(t, err)
}

func TestParseEvent(t *testing.T) {
	name, args, err := parseEvent([]byte(`["controller:state","Grbl",{"status":{"activeState":"Idle"}}]`))
	require.NoError(t, err)
	assert.Equal(t, "controller:state", name)
	assert.JSONEq(t, `["Grbl",{"status":{"activeState":"Idle"}}]`, string(args))

	name, args, err = parseEvent([]byte(`["startup"]`))
	require.NoError(t, err)
	assert.Equal(t, "startup", name)
	assert.Equal(t, "[]", string(args))

	_, _, err = parseEvent([]byte(`[]`))
	assert.Error(t, err)
	_, _, err = parseEvent([]byte(`[1,2]`))
	assert.Error(t, err)
	_, _, err = parseEvent([]byte(`{}`))
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent("open", "/dev/ttyUSB0", map[string]interface{}{"controllerType": "Grbl", "baudrate": 115200})
	require.NoError(t, err)
	assert.Equal(t, `42["open","/dev/ttyUSB0",{"baudrate":115200,"controllerType":"Grbl"}]`, string(data))

	data, err = encodeEvent("list")
	require.NoError(t, err)
	assert.Equal(t, `42["list"]`, string(data))
}

func TestConnectErrorMessage(t *testing.T) {
	assert.Equal(t, "jwt expired", connectErrorMessage([]byte(`{"message":"jwt expired"}`)))
	assert.Equal(t, "Not authorized", connectErrorMessage([]byte(`"Not authorized"`)))
	assert.Equal(t, "connection refused", connectErrorMessage(nil))
	assert.Equal(t, "oops", connectErrorMessage([]byte(`oops`)))
}

func TestStreamURL(t *testing.T) {
	cases := map[string]string{
		"localhost:8000":          "ws://localhost:8000/socket.io/?EIO=3&transport=websocket",
		"http://cnc.local:8000":   "ws://cnc.local:8000/socket.io/?EIO=3&transport=websocket",
		"https://cnc.example.com": "wss://cnc.example.com/socket.io/?EIO=3&transport=websocket",
	}
	for host, expected := range cases {
		endpoint, err := StreamURL(host, "/socket.io/", 3)
		require.NoError(t, err, host)
		assert.Equal(t, expected, endpoint)
	}

	endpoint, err := StreamURL("localhost", "", 4)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost/socket.io/?EIO=4&transport=websocket", endpoint)

	_, err = StreamURL("ftp://localhost", "/socket.io/", 3)
	assert.Error(t, err)
}
