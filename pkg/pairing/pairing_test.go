package pairing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enbacode/better-hisense-tv/internal/faketv"
	"github.com/enbacode/better-hisense-tv/pkg/topics"
	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

const (
	testAddr     = "aa:bb:cc:dd:ee:ff"
	testClientID = "aa:bb:cc:dd:ee:ff$his$617E95_vidaacommon_001"
	tokenPayload = `{"accesstoken":"A","accesstoken_time":1000,"accesstoken_duration_day":1,` +
		`"refreshtoken":"R","refreshtoken_time":1000,"refreshtoken_duration_day":30}`
)

func testConfig(tv *faketv.TV) Config {
	return Config{
		Transport:    tv,
		StepTimeout:  time.Second,
		HardwareAddr: testAddr,
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	}
}

// scriptHappyTV wires the standard three-phase script: acknowledge the
// announcement, accept code 1234, issue tokens.
func scriptHappyTV(tv *faketv.TV) topics.Namespace {
	ns := topics.Build(testClientID)
	tv.OnPublish(ns.TVUI+topics.AppConnect, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.Authentication, `""`)
	})
	tv.OnPublish(ns.TVUI+topics.SubmitAuthCode, func(payload []byte) []transport.Message {
		if string(payload) == `{"authNum":1234}` {
			return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":1}`)
		}
		return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":0}`)
	})
	tv.OnPublish(ns.TVPlatform+topics.GetToken, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.TokenIssuance, tokenPayload)
	})
	return ns
}

func TestPairingHappyPath(t *testing.T) {
	tv := faketv.New()
	ns := scriptHappyTV(tv)

	p, err := New(testConfig(tv))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateAwaitingAuthCodeDisplayed, p.State())

	id := p.Identity()
	assert.Equal(t, testClientID, id.ClientID)
	assert.Equal(t, "his$1700000000", id.Username)

	creds, err := p.SubmitCode(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, StatePaired, p.State())

	assert.Equal(t, testClientID, creds.ClientID)
	assert.Equal(t, id.Username, creds.Username)
	assert.Equal(t, id.Password, creds.Password)
	assert.Equal(t, "A", creds.AccessToken)
	assert.Equal(t, int64(1000), creds.AccessTokenTime)
	assert.Equal(t, int64(1), creds.AccessTokenDurationDays)
	assert.Equal(t, "R", creds.RefreshToken)
	assert.Equal(t, int64(1000), creds.RefreshTokenTime)
	assert.Equal(t, int64(30), creds.RefreshTokenDurationDays)

	// The whole ceremony rides one connection, released at the end.
	assert.Equal(t, 1, tv.ConnectCount())
	assert.False(t, tv.IsConnected())

	auths := tv.Auths()
	require.Len(t, auths, 1)
	assert.Equal(t, transport.CredentialPairing, auths[0].Kind)
	assert.Equal(t, id.Password, auths[0].Password)

	// The close signal went out alongside the token request.
	assert.True(t, tv.PublishedTo(ns.TVUI+topics.CloseAuthCode))
}

func TestPairingUnexpectedAuthPayload(t *testing.T) {
	tv := faketv.New()
	ns := topics.Build(testClientID)
	tv.OnPublish(ns.TVUI+topics.AppConnect, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.Authentication, `{"denied":true}`)
	})

	p, err := New(testConfig(tv))
	require.NoError(t, err)

	err = p.Start(context.Background())
	assert.True(t, errors.Is(err, ErrUnexpectedAuthPayload))
	assert.Equal(t, StateFailed, p.State())
	assert.False(t, tv.IsConnected())
}

func TestPairingRejectedCodeIsRetryable(t *testing.T) {
	tv := faketv.New()
	scriptHappyTV(tv)

	p, err := New(testConfig(tv))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	_, err = p.SubmitCode(context.Background(), "9999")
	assert.True(t, errors.Is(err, ErrAuthCodeRejected))

	// The handshake survives a rejection: still connected, still waiting for
	// a code.
	assert.Equal(t, StateAwaitingAuthCodeDisplayed, p.State())
	assert.True(t, tv.IsConnected())

	creds, err := p.SubmitCode(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, "A", creds.AccessToken)
	assert.Equal(t, StatePaired, p.State())
}

func TestPairingHandshakeTimeout(t *testing.T) {
	tv := faketv.New() // no script, TV never answers

	config := testConfig(tv)
	config.StepTimeout = 50 * time.Millisecond
	p, err := New(config)
	require.NoError(t, err)

	err = p.Start(context.Background())
	assert.True(t, errors.Is(err, ErrHandshakeTimeout))
	assert.Equal(t, StateFailed, p.State())
	assert.False(t, tv.IsConnected())
}

func TestPairingConnectFailure(t *testing.T) {
	tv := faketv.New()
	tv.FailConnect(transport.ErrConnectTimeout)

	p, err := New(testConfig(tv))
	require.NoError(t, err)

	err = p.Start(context.Background())
	assert.True(t, errors.Is(err, transport.ErrConnectTimeout))
	assert.Equal(t, StateFailed, p.State())
}

func TestPairingWrongState(t *testing.T) {
	tv := faketv.New()
	scriptHappyTV(tv)

	p, err := New(testConfig(tv))
	require.NoError(t, err)

	_, err = p.SubmitCode(context.Background(), "1234")
	assert.True(t, errors.Is(err, ErrWrongState))

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, errors.Is(p.Start(context.Background()), ErrWrongState))
}

func TestParseAuthCode(t *testing.T) {
	tests := []struct {
		code    string
		want    int
		wantErr bool
	}{
		{"1234", 1234, false},
		{"0123", 123, false},
		{"0000", 0, false},
		{"123", 0, true},
		{"12345", 0, true},
		{"12a4", 0, true},
		{"", 0, true},
		{"-123", 0, true},
	}
	for _, tt := range tests {
		got, err := parseAuthCode(tt.code)
		if tt.wantErr {
			assert.Error(t, err, "code %q", tt.code)
			continue
		}
		require.NoError(t, err, "code %q", tt.code)
		assert.Equal(t, tt.want, got, "code %q", tt.code)
	}
}

func TestVerdictAccepted(t *testing.T) {
	assert.True(t, verdictAccepted([]byte(`{"result":1}`)))
	assert.True(t, verdictAccepted([]byte(`{"result":1,"info":""}`)))
	assert.False(t, verdictAccepted([]byte(`{"result":0}`)))
	assert.False(t, verdictAccepted([]byte(`{}`)))
	assert.False(t, verdictAccepted([]byte(`not json`)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "AwaitingAuthCodeDisplayed", StateAwaitingAuthCodeDisplayed.String())
	assert.Equal(t, "Paired", StatePaired.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", State(99).String())
}
