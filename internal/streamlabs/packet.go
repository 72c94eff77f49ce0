package streamlabs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.io v3 packet types
const (
	packetOpen    byte = '0'
	packetClose   byte = '1'
	packetPing    byte = '2'
	packetPong    byte = '3'
	packetMessage byte = '4'
)

// Socket.io packet types, carried inside engine.io messages
const (
	socketConnect    byte = '0'
	socketDisconnect byte = '1'
	socketEvent      byte = '2'
	socketError      byte = '4'
)

var errEmptyPacket = errors.New("empty packet")

// packet is one decoded engine.io frame
type packet struct {
	typ     byte
	sioType byte // only for packetMessage
	data    []byte
}

func parsePacket(msg []byte) (packet, error) {
	if len(msg) == 0 {
		return packet{}, errEmptyPacket
	}

	p := packet{typ: msg[0], data: msg[1:]}
	switch p.typ {
	case packetOpen, packetClose, packetPing, packetPong:
		return p, nil
	case packetMessage:
		if len(p.data) == 0 {
			return packet{}, fmt.Errorf("message packet without socket.io type")
		}
		p.sioType = p.data[0]
		p.data = p.data[1:]
		return p, nil
	default:
		return packet{}, fmt.Errorf("unknown packet type %q", p.typ)
	}
}

// handshake is the engine.io open packet body
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // ms
	PingTimeout  int    `json:"pingTimeout"`  // ms
}

func parseHandshake(data []byte) (handshake, error) {
	var h handshake
	if err := json.Unmarshal(data, &h); err != nil {
		return handshake{}, fmt.Errorf("invalid open packet: %w", err)
	}
	if h.PingInterval <= 0 {
		h.PingInterval = 25000
	}
	if h.PingTimeout <= 0 {
		h.PingTimeout = 5000
	}
	return h, nil
}

func (h handshake) interval() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

func (h handshake) timeout() time.Duration {
	return time.Duration(h.PingTimeout) * time.Millisecond
}

// parseEvent splits a socket.io event body into its name and first argument.
// The body may carry a namespace ("/ns,") and an ack id before the JSON array.
func parseEvent(data []byte) (string, json.RawMessage, error) {
	start := bytes.IndexByte(data, '[')
	if start < 0 {
		return "", nil, fmt.Errorf("event without arguments")
	}

	var args []json.RawMessage
	if err := json.Unmarshal(data[start:], &args); err != nil {
		return "", nil, fmt.Errorf("invalid event arguments: %w", err)
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("event without name")
	}

	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("invalid event name: %w", err)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}
