// Package session owns the long-lived credentials of a paired TV and exposes
// the command and query surface built on top of them.
//
// A Session guarantees that every operation runs over a connection
// authenticated with a currently valid access token: expiry is checked before
// each operation and an expired token is refreshed transparently. The device
// protocol cannot re-authenticate a live connection, so a credential change
// always means a reconnect.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/enbacode/better-hisense-tv/pkg/correlate"
	"github.com/enbacode/better-hisense-tv/pkg/log"
	"github.com/enbacode/better-hisense-tv/pkg/topics"
	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// Session errors.
var (
	// ErrRefreshFailed indicates a token refresh could not complete. The
	// prior credentials are left untouched; the caller must re-pair once the
	// refresh token itself is spent.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrMalformedPayload indicates a reply was not valid JSON where JSON
	// was expected.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrClosed indicates an operation on a closed session.
	ErrClosed = errors.New("session closed")
)

// DefaultOperationTimeout bounds each awaited reply.
const DefaultOperationTimeout = 60 * time.Second

// Config configures a session over existing credentials.
type Config struct {
	// Transport is the connection to the device. Required. The session owns
	// it until Close.
	Transport transport.Session

	// Credentials is the credential set from pairing or the caller's store.
	// Required; ClientID must be set.
	Credentials Credentials

	// OperationTimeout bounds each awaited reply (default 60s).
	OperationTimeout time.Duration

	// Logger receives protocol events. Nil disables capture.
	Logger log.Logger

	// Now supplies the clock for expiry checks. Nil means time.Now.
	Now func() time.Time
}

// Session is an authenticated control session for one device.
// Methods are safe for concurrent use; operations serialize around the
// single underlying connection.
type Session struct {
	config Config
	ns     topics.Namespace
	table  *correlate.Table

	mu     sync.Mutex
	creds  Credentials
	closed bool
}

// Open creates a session from stored credentials. No connection is opened
// until the first operation needs one.
func Open(config Config) (*Session, error) {
	if config.Transport == nil {
		return nil, errors.New("session: Transport is required")
	}
	if config.Credentials.ClientID == "" {
		return nil, errors.New("session: Credentials.ClientID is required")
	}
	if config.OperationTimeout == 0 {
		config.OperationTimeout = DefaultOperationTimeout
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Session{
		config: config,
		ns:     topics.Build(config.Credentials.ClientID),
		table:  correlate.NewTable(config.Transport),
		creds:  config.Credentials,
	}, nil
}

// Credentials returns a copy of the current credential set. The set changes
// only when a refresh succeeds; callers persisting credentials should re-read
// after operations.
func (s *Session) Credentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Close tears down the connection. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.table.Close()
	s.config.Transport.Disconnect()
}

// ensureValidSession refreshes the token if it has expired. Call with the
// operation lock held. A valid token issues no network calls.
func (s *Session) ensureValidSession(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.creds.AccessTokenValid(s.config.Now()) {
		return nil
	}
	return s.refresh(ctx)
}

// refresh exchanges the refresh token for a new token pair. On any failure
// the prior credentials stay untouched. Call with the operation lock held.
func (s *Session) refresh(ctx context.Context) error {
	s.logState("Authenticated", "Refreshing", "access token expired")

	// The refresh connection authenticates with the refresh token in the
	// password field.
	s.config.Transport.Disconnect()
	err := s.config.Transport.Connect(ctx, transport.Auth{
		Username: s.creds.Username,
		Password: s.creds.RefreshToken,
		ClientID: s.creds.ClientID,
		Kind:     transport.CredentialRefreshToken,
	})
	if err != nil {
		s.logState("Refreshing", "Authenticated", "refresh connect failed")
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	pending, err := s.table.Register(s.ns.Mobile + topics.TokenIssuance)
	if err != nil {
		s.config.Transport.Disconnect()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	body, _ := json.Marshal(map[string]string{"refreshtoken": s.creds.RefreshToken})
	if err := s.config.Transport.Publish(s.ns.TVPlatform+topics.GetToken, body); err != nil {
		s.config.Transport.Disconnect()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	payload, err := pending.Wait(ctx, s.config.OperationTimeout)
	if err != nil {
		s.config.Transport.Disconnect()
		s.logState("Refreshing", "Authenticated", "refresh timed out")
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	reissued, err := DecodeTokenPayload(payload)
	if err != nil {
		s.config.Transport.Disconnect()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Replace the full token quadruple at once; the identity fields change
	// only if the TV reissued them.
	next := s.creds
	next.AccessToken = reissued.AccessToken
	next.AccessTokenTime = reissued.AccessTokenTime
	next.AccessTokenDurationDays = reissued.AccessTokenDurationDays
	next.RefreshToken = reissued.RefreshToken
	next.RefreshTokenTime = reissued.RefreshTokenTime
	next.RefreshTokenDurationDays = reissued.RefreshTokenDurationDays
	if reissued.Username != "" {
		next.Username = reissued.Username
	}
	if reissued.Password != "" {
		next.Password = reissued.Password
	}
	s.creds = next

	// The refresh-token connection is spent; the next operation opens an
	// access-token one.
	s.config.Transport.Disconnect()
	s.logState("Refreshing", "Authenticated", "token reissued")
	return nil
}

// connectForOperation ensures a live access-token connection. Call with the
// operation lock held.
func (s *Session) connectForOperation(ctx context.Context) error {
	t := s.config.Transport
	if t.IsConnected() && t.CredentialKind() == transport.CredentialAccessToken {
		return nil
	}
	t.Disconnect()
	return t.Connect(ctx, transport.Auth{
		Username: s.creds.Username,
		Password: s.creds.AccessToken,
		ClientID: s.creds.ClientID,
		Kind:     transport.CredentialAccessToken,
	})
}

// query runs one request/response exchange. Call with the operation lock held.
func (s *Session) query(ctx context.Context, replyTopic, subscribeTopic, requestTopic string) (json.RawMessage, error) {
	if err := s.ensureValidSession(ctx); err != nil {
		return nil, err
	}
	if err := s.connectForOperation(ctx); err != nil {
		return nil, err
	}
	if err := s.config.Transport.Subscribe(subscribeTopic); err != nil {
		return nil, err
	}

	pending, err := s.table.Register(replyTopic)
	if err != nil {
		return nil, err
	}
	if err := s.config.Transport.Publish(requestTopic, nil); err != nil {
		return nil, err
	}

	payload, err := pending.Wait(ctx, s.config.OperationTimeout)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: reply on %s: %q", ErrMalformedPayload, replyTopic, payload)
	}
	return payload, nil
}

// command publishes a fire-and-forget request. Call with the operation lock
// held.
func (s *Session) command(ctx context.Context, requestTopic string, body []byte) error {
	if err := s.ensureValidSession(ctx); err != nil {
		return err
	}
	if err := s.connectForOperation(ctx); err != nil {
		return err
	}
	return s.config.Transport.Publish(requestTopic, body)
}

func (s *Session) logState(from, to, reason string) {
	s.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
