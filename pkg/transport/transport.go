package transport

import (
	"context"
	"errors"
	"time"

	"github.com/enbacode/better-hisense-tv/pkg/log"
)

// Transport errors.
var (
	// ErrConnectTimeout indicates the broker never acknowledged the connection
	// within the configured timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrNotConnected indicates an operation was attempted without a live
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Connect was called on a live connection.
	ErrAlreadyConnected = errors.New("already connected")
)

// Default connection parameters fixed by the device protocol.
const (
	// DefaultPort is the TV's control broker port.
	DefaultPort = 36669

	// DefaultConnectTimeout bounds the wait for a connection acknowledgment.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultKeepAlive is the MQTT keepalive interval.
	DefaultKeepAlive = 60 * time.Second

	// messageBuffer is the inbound message channel capacity. Messages nobody
	// drains in time are dropped, matching the protocol's cache-miss rule.
	messageBuffer = 64
)

// CredentialKind classifies the credentials a connection authenticates with.
type CredentialKind uint8

const (
	// CredentialNone means no connection is active.
	CredentialNone CredentialKind = iota
	// CredentialPairing means derived transient pairing credentials.
	CredentialPairing
	// CredentialAccessToken means the long-lived access token.
	CredentialAccessToken
	// CredentialRefreshToken means the refresh token substituting for the
	// password, used only during token refresh.
	CredentialRefreshToken
)

// String returns the credential kind name.
func (k CredentialKind) String() string {
	switch k {
	case CredentialNone:
		return "none"
	case CredentialPairing:
		return "pairing"
	case CredentialAccessToken:
		return "access-token"
	case CredentialRefreshToken:
		return "refresh-token"
	default:
		return "unknown"
	}
}

// Auth carries the per-phase authentication triple for one connection.
type Auth struct {
	Username string
	Password string
	ClientID string

	// Kind records what the password field actually is.
	Kind CredentialKind
}

// Message is one inbound topic message.
type Message struct {
	Topic   string
	Payload []byte
}

// Config configures a transport session.
type Config struct {
	// Host is the device address. Required.
	Host string

	// Port is the control broker port (default 36669).
	Port int

	// ConnectTimeout bounds the wait for the connection acknowledgment.
	ConnectTimeout time.Duration

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration

	// ClientCertPEM and ClientKeyPEM hold the vendor client certificate pair
	// presented during the TLS handshake. Optional; some firmware revisions
	// accept connections without it.
	ClientCertPEM []byte
	ClientKeyPEM  []byte

	// Logger receives protocol events. Nil disables capture.
	Logger log.Logger
}

// DefaultConfig returns a config for the given device host with protocol
// defaults applied.
func DefaultConfig(host string) Config {
	return Config{
		Host:           host,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		KeepAlive:      DefaultKeepAlive,
	}
}

// Session is one connection to the device's broker at a time.
//
// Implementations must be safe for concurrent use. Exactly one connection is
// active per Session; Connect on a live session fails with
// ErrAlreadyConnected and Disconnect is always safe to call.
type Session interface {
	// Connect opens a connection authenticated with the given credentials.
	// It returns ErrConnectTimeout if the broker never acknowledges.
	Connect(ctx context.Context, auth Auth) error

	// Publish sends a payload to a topic. A nil payload publishes an empty
	// message. Fails with ErrNotConnected while disconnected.
	Publish(topic string, payload []byte) error

	// Subscribe registers interest in a topic. Subscribing twice to the same
	// topic is a no-op. Fails with ErrNotConnected while disconnected.
	Subscribe(topic string) error

	// Disconnect tears the connection down. Idempotent, safe to call even if
	// never connected.
	Disconnect()

	// IsConnected reports whether a connection is live.
	IsConnected() bool

	// CredentialKind reports the credential class of the live connection, or
	// CredentialNone while disconnected.
	CredentialKind() CredentialKind

	// Messages yields every inbound message for the lifetime of the Session,
	// across reconnects. The channel is never closed.
	Messages() <-chan Message
}
