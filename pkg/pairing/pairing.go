// Package pairing drives the one-time handshake that binds this client to a
// TV and yields long-lived credentials.
//
// The ceremony has a human in the middle: after the app-connect announcement
// the TV displays a 4-digit code on screen, and the flow pauses until the
// caller supplies it. Start runs the handshake up to that pause point;
// SubmitCode finishes it. A rejected code keeps the handshake alive so the
// caller can try again without restarting.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/enbacode/better-hisense-tv/pkg/correlate"
	"github.com/enbacode/better-hisense-tv/pkg/identity"
	"github.com/enbacode/better-hisense-tv/pkg/log"
	"github.com/enbacode/better-hisense-tv/pkg/session"
	"github.com/enbacode/better-hisense-tv/pkg/topics"
	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// Pairing errors.
var (
	// ErrUnexpectedAuthPayload indicates the TV acknowledged the app-connect
	// announcement with something other than the empty-string sentinel.
	ErrUnexpectedAuthPayload = errors.New("unexpected authentication payload")

	// ErrAuthCodeRejected indicates the TV rejected the submitted code.
	// The handshake stays alive; SubmitCode may be called again.
	ErrAuthCodeRejected = errors.New("authentication code rejected")

	// ErrHandshakeTimeout indicates a handshake step got no reply in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrInvalidAuthCode indicates the supplied code is not 4 decimal digits.
	ErrInvalidAuthCode = errors.New("invalid authentication code")

	// ErrWrongState indicates an operation was invoked out of sequence.
	ErrWrongState = errors.New("wrong pairing state")
)

// appConnectPayload is the fixed announcement identifying us as a mobile app.
const appConnectPayload = `{"app_version":2,"connect_result":0,"device_type":"Mobile App"}`

// DefaultStepTimeout bounds each awaited handshake step.
const DefaultStepTimeout = 60 * time.Second

// State is the pairing handshake state.
type State uint8

const (
	// StateIdle means the handshake has not started.
	StateIdle State = iota
	// StateConnecting means the transient-credential connection is opening.
	StateConnecting
	// StateAwaitingAppConnectAck means the announcement is published and the
	// TV's acknowledgment is pending.
	StateAwaitingAppConnectAck
	// StateAwaitingAuthCodeDisplayed means the TV is showing the 4-digit code
	// and the caller must supply it. This is the pause point.
	StateAwaitingAuthCodeDisplayed
	// StateAwaitingCodeVerification means a code is submitted and the verdict
	// is pending.
	StateAwaitingCodeVerification
	// StateAwaitingTokenIssuance means the token request is published and the
	// token payload is pending.
	StateAwaitingTokenIssuance
	// StatePaired is the terminal success state.
	StatePaired
	// StateFailed is the terminal failure state. The connection is torn down.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingAppConnectAck:
		return "AwaitingAppConnectAck"
	case StateAwaitingAuthCodeDisplayed:
		return "AwaitingAuthCodeDisplayed"
	case StateAwaitingCodeVerification:
		return "AwaitingCodeVerification"
	case StateAwaitingTokenIssuance:
		return "AwaitingTokenIssuance"
	case StatePaired:
		return "Paired"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Config configures a pairing handshake.
type Config struct {
	// Transport is the connection to the device. Required. The pairer owns
	// the connection for the duration of the handshake and disconnects it
	// when the handshake ends, in success or failure.
	Transport transport.Session

	// StepTimeout bounds each awaited handshake step (default 60s).
	StepTimeout time.Duration

	// Reauth selects the XOR-mangled username variant of the derived
	// identity. Some devices demand it on re-pairing.
	Reauth bool

	// RandomAddr salts the identity with a random hardware address instead
	// of the machine's own.
	RandomAddr bool

	// HardwareAddr overrides address selection entirely when non-empty.
	HardwareAddr string

	// Logger receives protocol events. Nil disables capture.
	Logger log.Logger

	// Now supplies the pairing timestamp. Nil means time.Now.
	Now func() time.Time
}

// Pairer runs one pairing handshake. Not reusable; a failed or completed
// pairer must be replaced with a fresh one.
type Pairer struct {
	config Config
	table  *correlate.Table

	mu       sync.Mutex
	state    State
	identity identity.Identity
	ns       topics.Namespace
}

// New creates a pairer over the given transport.
func New(config Config) (*Pairer, error) {
	if config.Transport == nil {
		return nil, errors.New("pairing: Transport is required")
	}
	if config.StepTimeout == 0 {
		config.StepTimeout = DefaultStepTimeout
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Pairer{config: config, state: StateIdle}, nil
}

// State returns the current handshake state.
func (p *Pairer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Identity returns the identity derived for this handshake. Valid once Start
// has been called.
func (p *Pairer) Identity() identity.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// Start runs the handshake up to the point where the TV displays the 4-digit
// code. On return the pairer is in StateAwaitingAuthCodeDisplayed and the
// caller must obtain the code from the person in front of the TV.
func (p *Pairer) Start(ctx context.Context) error {
	if s := p.State(); s != StateIdle {
		return fmt.Errorf("%w: Start in %s", ErrWrongState, s)
	}
	p.setState(StateConnecting)

	id, err := identity.Derive(p.config.Now(), identity.Options{
		RandomAddr:   p.config.RandomAddr,
		Reauth:       p.config.Reauth,
		HardwareAddr: p.config.HardwareAddr,
	})
	if err != nil {
		return p.fail(fmt.Errorf("failed to derive identity: %w", err))
	}
	ns := topics.Build(id.ClientID)

	p.mu.Lock()
	p.identity = id
	p.ns = ns
	p.mu.Unlock()

	err = p.config.Transport.Connect(ctx, transport.Auth{
		Username: id.Username,
		Password: id.Password,
		ClientID: id.ClientID,
		Kind:     transport.CredentialPairing,
	})
	if err != nil {
		return p.fail(fmt.Errorf("pairing connect failed: %w", err))
	}
	p.table = correlate.NewTable(p.config.Transport)

	for _, topic := range []string{
		ns.Broadcast + topics.State,
		ns.TVUI + topics.AppConnect,
		ns.Mobile + topics.Authentication,
		ns.Mobile + topics.AuthenticationCode,
		ns.Broadcast + topics.HotelModeChange,
		ns.Mobile + topics.TokenIssuance,
	} {
		if err := p.config.Transport.Subscribe(topic); err != nil {
			return p.fail(fmt.Errorf("pairing subscribe failed: %w", err))
		}
	}

	pending, err := p.table.Register(ns.Mobile + topics.Authentication)
	if err != nil {
		return p.fail(err)
	}
	p.setState(StateAwaitingAppConnectAck)

	if err := p.config.Transport.Publish(ns.TVUI+topics.AppConnect, []byte(appConnectPayload)); err != nil {
		return p.fail(err)
	}

	payload, err := pending.Wait(ctx, p.config.StepTimeout)
	if err != nil {
		return p.fail(p.timeoutOr(err, "app-connect acknowledgment"))
	}
	// The TV acknowledges with the literal JSON empty string.
	if string(payload) != `""` {
		return p.fail(fmt.Errorf("%w: %q", ErrUnexpectedAuthPayload, payload))
	}

	p.setState(StateAwaitingAuthCodeDisplayed)
	return nil
}

// SubmitCode publishes the on-screen code and completes the handshake. On
// success it returns the full credential set and releases the pairing
// connection. On ErrAuthCodeRejected the handshake stays alive and
// SubmitCode may be called again with a corrected code; every other error is
// terminal.
func (p *Pairer) SubmitCode(ctx context.Context, code string) (session.Credentials, error) {
	if s := p.State(); s != StateAwaitingAuthCodeDisplayed {
		return session.Credentials{}, fmt.Errorf("%w: SubmitCode in %s", ErrWrongState, s)
	}

	num, err := parseAuthCode(code)
	if err != nil {
		return session.Credentials{}, err
	}

	p.mu.Lock()
	ns := p.ns
	id := p.identity
	p.mu.Unlock()

	pending, err := p.table.Register(ns.Mobile + topics.AuthenticationCode)
	if err != nil {
		return session.Credentials{}, p.fail(err)
	}
	p.setState(StateAwaitingCodeVerification)

	// The code goes over the wire as a bare JSON number.
	body := fmt.Sprintf(`{"authNum":%d}`, num)
	if err := p.config.Transport.Publish(ns.TVUI+topics.SubmitAuthCode, []byte(body)); err != nil {
		return session.Credentials{}, p.fail(err)
	}

	payload, err := pending.Wait(ctx, p.config.StepTimeout)
	if err != nil {
		return session.Credentials{}, p.fail(p.timeoutOr(err, "code verification"))
	}
	if !verdictAccepted(payload) {
		// Not terminal: the person may simply have mistyped.
		p.setState(StateAwaitingAuthCodeDisplayed)
		return session.Credentials{}, fmt.Errorf("%w: %s", ErrAuthCodeRejected, payload)
	}

	pending, err = p.table.Register(ns.Mobile + topics.TokenIssuance)
	if err != nil {
		return session.Credentials{}, p.fail(err)
	}
	p.setState(StateAwaitingTokenIssuance)

	// First pairing requests a token pair with no prior refresh token, then
	// dismisses the on-screen code.
	if err := p.config.Transport.Publish(ns.TVPlatform+topics.GetToken, []byte(`{"refreshtoken": ""}`)); err != nil {
		return session.Credentials{}, p.fail(err)
	}
	if err := p.config.Transport.Publish(ns.TVUI+topics.CloseAuthCode, nil); err != nil {
		return session.Credentials{}, p.fail(err)
	}

	payload, err = pending.Wait(ctx, p.config.StepTimeout)
	if err != nil {
		return session.Credentials{}, p.fail(p.timeoutOr(err, "token issuance"))
	}

	creds, err := session.DecodeTokenPayload(payload)
	if err != nil {
		return session.Credentials{}, p.fail(err)
	}
	creds.ClientID = id.ClientID
	if creds.Username == "" {
		creds.Username = id.Username
	}
	if creds.Password == "" {
		creds.Password = id.Password
	}

	p.teardown()
	p.setState(StatePaired)
	return creds, nil
}

// parseAuthCode validates a 4-digit code and returns its numeric value.
// Codes with leading zeros are preserved by value ("0123" publishes 123,
// which the TV accepts; it compares numerically).
func parseAuthCode(code string) (int, error) {
	if len(code) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAuthCode, code)
	}
	num, err := strconv.Atoi(code)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAuthCode, code)
	}
	return num, nil
}

// verdictAccepted reports whether a code verification payload carries
// result == 1.
func verdictAccepted(payload []byte) bool {
	var verdict struct {
		Result int `json:"result"`
	}
	if err := json.Unmarshal(payload, &verdict); err != nil {
		return false
	}
	return verdict.Result == 1
}

// timeoutOr maps an await timeout onto the handshake failure taxonomy.
func (p *Pairer) timeoutOr(err error, step string) error {
	if errors.Is(err, correlate.ErrAwaitTimeout) {
		return fmt.Errorf("%w: %s: %v", ErrHandshakeTimeout, step, err)
	}
	return err
}

// fail moves the pairer into the terminal Failed state and tears down the
// connection. Partial pairing state is never kept.
func (p *Pairer) fail(err error) error {
	p.teardown()
	p.setState(StateFailed)
	p.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Context: "pairing"},
	})
	return err
}

func (p *Pairer) teardown() {
	if p.table != nil {
		p.table.Close()
	}
	p.config.Transport.Disconnect()
}

func (p *Pairer) setState(next State) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()

	p.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPairing,
			OldState: prev.String(),
			NewState: next.String(),
		},
	})
}
