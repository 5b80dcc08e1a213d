package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/enbacode/better-hisense-tv/pkg/log"
)

// MQTTSession is the MQTT implementation of Session backed by paho.
type MQTTSession struct {
	config Config
	msgCh  chan Message

	mu        sync.Mutex
	client    mqtt.Client
	kind      CredentialKind
	sessionID string
	subs      map[string]struct{}
}

// NewMQTTSession creates a disconnected session for the configured device.
func NewMQTTSession(config Config) *MQTTSession {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = DefaultKeepAlive
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	return &MQTTSession{
		config: config,
		msgCh:  make(chan Message, messageBuffer),
		subs:   make(map[string]struct{}),
	}
}

// BrokerURL returns the ssl:// URL the session dials.
func (s *MQTTSession) BrokerURL() string {
	return fmt.Sprintf("ssl://%s:%d", s.config.Host, s.config.Port)
}

// Connect opens a connection authenticated with the given credentials.
func (s *MQTTSession) Connect(ctx context.Context, auth Auth) error {
	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}

	tlsConf, err := s.tlsConfig()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	sessionID := uuid.NewString()

	// MQTT 3.1.1 with a clean session; the TV rejects other protocol levels.
	opts := mqtt.NewClientOptions().
		AddBroker(s.BrokerURL()).
		SetClientID(auth.ClientID).
		SetUsername(auth.Username).
		SetPassword(auth.Password).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetKeepAlive(s.config.KeepAlive).
		SetAutoReconnect(false).
		SetConnectTimeout(s.config.ConnectTimeout).
		SetTLSConfig(tlsConf)

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		s.deliver(m.Topic(), m.Payload())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.config.Logger.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  sessionID,
			Direction:  log.DirectionIn,
			Category:   log.CategoryError,
			RemoteAddr: s.remoteAddr(),
			Error:      &log.ErrorEventData{Message: err.Error(), Context: "connection lost"},
		})
	})

	client := mqtt.NewClient(opts)
	s.mu.Unlock()

	token := client.Connect()

	timeout := s.config.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: no acknowledgment from %s within %s", ErrConnectTimeout, s.BrokerURL(), timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s failed: %w", s.BrokerURL(), err)
	}

	s.mu.Lock()
	s.client = client
	s.kind = auth.Kind
	s.sessionID = sessionID
	s.subs = make(map[string]struct{})
	s.mu.Unlock()

	s.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Direction:  log.DirectionOut,
		Category:   log.CategoryConnect,
		RemoteAddr: s.remoteAddr(),
		Connect:    &log.ConnectEvent{CredentialKind: auth.Kind.String(), ClientID: auth.ClientID},
	})
	return nil
}

// Publish sends a payload to a topic at QoS 0.
func (s *MQTTSession) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	client := s.client
	sessionID := s.sessionID
	s.mu.Unlock()
	if client == nil {
		return fmt.Errorf("%w: publish to %s", ErrNotConnected, topic)
	}

	token := client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, token.Error())
	}

	s.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Direction:  log.DirectionOut,
		Category:   log.CategoryMessage,
		RemoteAddr: s.remoteAddr(),
		Message:    log.NewMessageEvent(topic, payload),
	})
	return nil
}

// Subscribe registers interest in a topic at QoS 0. Idempotent.
func (s *MQTTSession) Subscribe(topic string) error {
	s.mu.Lock()
	client := s.client
	if client == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: subscribe to %s", ErrNotConnected, topic)
	}
	if _, ok := s.subs[topic]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	token := client.Subscribe(topic, 0, nil)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s failed: %w", topic, token.Error())
	}

	s.mu.Lock()
	s.subs[topic] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Disconnect tears the connection down. Idempotent.
func (s *MQTTSession) Disconnect() {
	s.mu.Lock()
	client := s.client
	kind := s.kind
	sessionID := s.sessionID
	s.client = nil
	s.kind = CredentialNone
	s.sessionID = ""
	s.subs = make(map[string]struct{})
	s.mu.Unlock()

	if client == nil {
		return
	}
	client.Disconnect(250)

	s.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Direction:  log.DirectionOut,
		Category:   log.CategoryConnect,
		RemoteAddr: s.remoteAddr(),
		Connect:    &log.ConnectEvent{CredentialKind: kind.String(), Disconnect: true},
	})
}

// IsConnected reports whether a connection is live.
func (s *MQTTSession) IsConnected() bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	return client != nil && client.IsConnected()
}

// CredentialKind reports the credential class of the live connection.
func (s *MQTTSession) CredentialKind() CredentialKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return CredentialNone
	}
	return s.kind
}

// Messages yields every inbound message for the lifetime of the session.
func (s *MQTTSession) Messages() <-chan Message {
	return s.msgCh
}

// deliver hands an inbound message to the channel. If nobody drains the
// channel in time the message is dropped; a reply with no waiter carries no
// information for anyone.
func (s *MQTTSession) deliver(topic string, payload []byte) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	s.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Direction:  log.DirectionIn,
		Category:   log.CategoryMessage,
		RemoteAddr: s.remoteAddr(),
		Message:    log.NewMessageEvent(topic, payload),
	})

	select {
	case s.msgCh <- Message{Topic: topic, Payload: append([]byte(nil), payload...)}:
	default:
	}
}

func (s *MQTTSession) remoteAddr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// tlsConfig builds the handshake config. Server verification is disabled:
// the TV presents a self-signed vendor certificate that no CA validates.
func (s *MQTTSession) tlsConfig() (*tls.Config, error) {
	conf := &tls.Config{InsecureSkipVerify: true}
	if len(s.config.ClientCertPEM) > 0 || len(s.config.ClientKeyPEM) > 0 {
		cert, err := tls.X509KeyPair(s.config.ClientCertPEM, s.config.ClientKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// Compile-time interface satisfaction check.
var _ Session = (*MQTTSession)(nil)
