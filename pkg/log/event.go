package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the transport connection (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the device address (IP:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Connect     *ConnectEvent     `cbor:"6,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"7,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"9,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryConnect indicates a connect or disconnect.
	CategoryConnect Category = 0
	// CategoryMessage indicates a published or received topic message.
	CategoryMessage Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnect:
		return "CONNECT"
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ConnectEvent captures a connection attempt or teardown.
// Credentials are never captured; only the kind in use is recorded.
type ConnectEvent struct {
	// CredentialKind names the credential class the connection authenticates
	// with ("pairing", "access-token", "refresh-token").
	CredentialKind string `cbor:"1,keyasint"`

	// ClientID is the MQTT client identifier.
	ClientID string `cbor:"2,keyasint,omitempty"`

	// Disconnect is true for teardown events.
	Disconnect bool `cbor:"3,keyasint,omitempty"`
}

// maxCapturedPayload bounds the payload bytes stored per message event.
const maxCapturedPayload = 4096

// MessageEvent captures a topic message.
type MessageEvent struct {
	// Topic the message was published or received on.
	Topic string `cbor:"1,keyasint"`

	// Payload bytes (may be truncated for large messages).
	Payload []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent, truncating oversized payloads.
func NewMessageEvent(topic string, payload []byte) *MessageEvent {
	ev := &MessageEvent{Topic: topic}
	if len(payload) > maxCapturedPayload {
		ev.Payload = append([]byte(nil), payload[:maxCapturedPayload]...)
		ev.Truncated = true
	} else {
		ev.Payload = append([]byte(nil), payload...)
	}
	return ev
}

// StateChangeEvent captures pairing, session and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityPairing indicates a pairing handshake state change.
	StateEntityPairing StateEntity = 1
	// StateEntitySession indicates a session/credential state change.
	StateEntitySession StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityPairing:
		return "PAIRING"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what was being attempted.
	Context string `cbor:"2,keyasint,omitempty"`
}
