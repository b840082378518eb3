// Package protocol defines the gateway wire format: opcodes, frames,
// event payloads, and the streaming codec that turns socket bytes into
// frames. All frames are JSON documents with the short field names the
// gateway uses on the wire (op/s/t/d).
package protocol

import (
	"encoding/json"
	"fmt"
)

// Opcode identifies the kind of frame in the gateway protocol.
type Opcode int

const (
	OpDispatch       Opcode = 0  // Server → client application event.
	OpHeartbeat      Opcode = 1  // Client → server liveness ping, d = last sequence.
	OpIdentify       Opcode = 2  // Client → server credentials and metadata.
	OpStatusUpdate   Opcode = 3  // Client → server presence change.
	OpInvalidSession Opcode = 9  // Server → client session teardown.
	OpHello          Opcode = 10 // Server → client handshake opener.
	OpHeartbeatAck   Opcode = 11 // Server → client heartbeat acknowledgment.
)

// String returns the conventional name for the opcode.
func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpStatusUpdate:
		return "status_update"
	case OpInvalidSession:
		return "invalid_session"
	case OpHello:
		return "hello"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	default:
		return fmt.Sprintf("opcode(%d)", int(o))
	}
}

// Frame is one protocol-level message unit exchanged over the gateway
// socket. Sequence and Event are only present on Dispatch frames.
// A Frame is immutable once decoded.
type Frame struct {
	Op    Opcode          `json:"op"`
	Seq   *int64          `json:"s,omitempty"`
	Event string          `json:"t,omitempty"`
	Data  json.RawMessage `json:"d,omitempty"`
}

// NewFrame creates a frame with the given opcode and JSON-encoded payload.
func NewFrame(op Opcode, payload any) (*Frame, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", op, err)
		}
		raw = data
	}
	return &Frame{Op: op, Data: raw}, nil
}

// DecodePayload unmarshals the frame's payload into the given target.
func (f *Frame) DecodePayload(target any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Op)
	}
	return json.Unmarshal(f.Data, target)
}

// Sequence returns the frame's sequence number, or 0 when absent.
func (f *Frame) Sequence() int64 {
	if f.Seq == nil {
		return 0
	}
	return *f.Seq
}

// HelloPayload is carried by the Hello frame that opens the handshake.
type HelloPayload struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// IdentifyPayload is sent with OpIdentify to authenticate the session.
type IdentifyPayload struct {
	Token          string             `json:"token"`
	Properties     IdentifyProperties `json:"properties"`
	LargeThreshold int                `json:"large_threshold"`
	Compress       bool               `json:"compress"`
}

// StatusGame is the activity part of a presence update.
type StatusGame struct {
	Name string `json:"name"`
}

// StatusUpdatePayload is sent with OpStatusUpdate to change presence.
type StatusUpdatePayload struct {
	IdleSince *int64     `json:"idle_since"`
	Game      StatusGame `json:"game"`
}
