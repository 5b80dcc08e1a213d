// Package faketv provides a scripted in-memory TV implementing the transport
// session interface. Tests script how the TV answers published requests and
// drive the real pairing and session code against it.
package faketv

import (
	"context"
	"sync"

	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// Handler produces the messages the TV emits in response to a publication.
type Handler func(payload []byte) []transport.Message

// TV is a scripted in-memory device.
type TV struct {
	msgs chan transport.Message

	mu         sync.Mutex
	connected  bool
	kind       transport.CredentialKind
	connects   int
	connectErr error
	auths      []transport.Auth
	subs       map[string]struct{}
	published  []transport.Message
	handlers   map[string]Handler
}

// New creates a disconnected fake TV with no script.
func New() *TV {
	return &TV{
		msgs:     make(chan transport.Message, 64),
		subs:     make(map[string]struct{}),
		handlers: make(map[string]Handler),
	}
}

// OnPublish scripts the TV's reaction to publications on a topic.
func (tv *TV) OnPublish(topic string, handler Handler) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.handlers[topic] = handler
}

// Reply builds a one-message response for OnPublish scripts.
func Reply(topic string, payload string) []transport.Message {
	return []transport.Message{{Topic: topic, Payload: []byte(payload)}}
}

// FailConnect makes subsequent Connect calls fail with err.
func (tv *TV) FailConnect(err error) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.connectErr = err
}

// Emit delivers a message to the client if it subscribed to the topic.
func (tv *TV) Emit(topic string, payload []byte) {
	tv.mu.Lock()
	_, subscribed := tv.subs[topic]
	tv.mu.Unlock()
	if !subscribed {
		return
	}
	select {
	case tv.msgs <- transport.Message{Topic: topic, Payload: payload}:
	default:
	}
}

// ConnectCount reports how many connections were opened in total.
func (tv *TV) ConnectCount() int {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return tv.connects
}

// Auths returns the credentials of every connection in order.
func (tv *TV) Auths() []transport.Auth {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]transport.Auth(nil), tv.auths...)
}

// Published returns every publication in order.
func (tv *TV) Published() []transport.Message {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]transport.Message(nil), tv.published...)
}

// PublishedTo reports whether anything was published to the topic.
func (tv *TV) PublishedTo(topic string) bool {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	for _, msg := range tv.published {
		if msg.Topic == topic {
			return true
		}
	}
	return false
}

// Subscribed reports whether the client currently subscribes to the topic.
func (tv *TV) Subscribed(topic string) bool {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	_, ok := tv.subs[topic]
	return ok
}

// Connect implements transport.Session.
func (tv *TV) Connect(_ context.Context, auth transport.Auth) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if tv.connected {
		return transport.ErrAlreadyConnected
	}
	if tv.connectErr != nil {
		return tv.connectErr
	}
	tv.connected = true
	tv.kind = auth.Kind
	tv.connects++
	tv.auths = append(tv.auths, auth)
	tv.subs = make(map[string]struct{})
	return nil
}

// Publish implements transport.Session. Scripted replies are delivered only
// on subscribed topics, like a real broker.
func (tv *TV) Publish(topic string, payload []byte) error {
	tv.mu.Lock()
	if !tv.connected {
		tv.mu.Unlock()
		return transport.ErrNotConnected
	}
	tv.published = append(tv.published, transport.Message{Topic: topic, Payload: payload})
	handler := tv.handlers[topic]
	tv.mu.Unlock()

	if handler == nil {
		return nil
	}
	for _, msg := range handler(payload) {
		tv.Emit(msg.Topic, msg.Payload)
	}
	return nil
}

// Subscribe implements transport.Session.
func (tv *TV) Subscribe(topic string) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if !tv.connected {
		return transport.ErrNotConnected
	}
	tv.subs[topic] = struct{}{}
	return nil
}

// Disconnect implements transport.Session.
func (tv *TV) Disconnect() {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.connected = false
	tv.kind = transport.CredentialNone
	tv.subs = make(map[string]struct{})
}

// IsConnected implements transport.Session.
func (tv *TV) IsConnected() bool {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return tv.connected
}

// CredentialKind implements transport.Session.
func (tv *TV) CredentialKind() transport.CredentialKind {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if !tv.connected {
		return transport.CredentialNone
	}
	return tv.kind
}

// Messages implements transport.Session.
func (tv *TV) Messages() <-chan transport.Message {
	return tv.msgs
}

// Compile-time interface satisfaction check.
var _ transport.Session = (*TV)(nil)
