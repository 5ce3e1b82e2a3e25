package cncjs

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Engine.IO packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO packet types, carried inside Engine.IO messages.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

type packet struct {
	engine byte
	socket byte
	data   []byte
}

type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// parsePacket splits a frame into its packet types and data. The namespace and
// acknowledgement id of Socket.IO packets are dropped.
func parsePacket(raw []byte) (packet, error) {
	if len(raw) == 0 {
		return packet{}, errors.New("empty packet")
	}
	p := packet{engine: raw[0], data: raw[1:]}
	if p.engine != engineMessage {
		return p, nil
	}
	if len(p.data) == 0 {
		return packet{}, errors.New("message packet without socket type")
	}
	p.socket = p.data[0]
	data := p.data[1:]
	if len(data) > 0 && data[0] == '/' {
		if comma := bytes.IndexByte(data, ','); comma >= 0 {
			data = data[comma+1:]
		} else {
			data = nil
		}
	}
	digits := 0
	for digits < len(data) && data[digits] >= '0' && data[digits] <= '9' {
		digits++
	}
	p.data = data[digits:]
	return p, nil
}

// parseEvent reads an event packet body `["name", arg...]` and returns the name
// together with the argument list as a JSON array.
func parseEvent(data []byte) (string, json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, errors.Wrap(err, "decode event packet")
	}
	if len(items) == 0 {
		return "", nil, errors.New("event packet without name")
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, errors.Wrap(err, "decode event name")
	}
	args, err := json.Marshal(items[1:])
	if err != nil {
		return "", nil, errors.Wrap(err, "encode event arguments")
	}
	return name, args, nil
}

func encodeEvent(name string, args ...interface{}) ([]byte, error) {
	body, err := json.Marshal(append([]interface{}{name}, args...))
	if err != nil {
		return nil, errors.Wrapf(err, "encode event %s", name)
	}
	return append([]byte{engineMessage, socketEvent}, body...), nil
}

// connectErrorMessage extracts the reason from a connect error body, which is
// either a JSON string or an object with a message property.
func connectErrorMessage(data []byte) string {
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &detail); err == nil && detail.Message != "" {
		return detail.Message
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil && text != "" {
		return text
	}
	if len(data) == 0 {
		return "connection refused"
	}
	return string(data)
}
