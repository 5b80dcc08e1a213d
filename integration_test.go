package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enbacode/better-hisense-tv/internal/faketv"
	"github.com/enbacode/better-hisense-tv/pkg/pairing"
	"github.com/enbacode/better-hisense-tv/pkg/session"
	"github.com/enbacode/better-hisense-tv/pkg/topics"
	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// End-to-end: pair with a scripted TV, then run steady-state queries and
// commands over the resulting credentials.
func TestPairThenControl(t *testing.T) {
	const (
		hardwareAddr = "aa:bb:cc:dd:ee:ff"
		clientID     = "aa:bb:cc:dd:ee:ff$his$617E95_vidaacommon_001"
	)
	now := time.Unix(1700000000, 0)
	ns := topics.Build(clientID)

	tv := faketv.New()
	tv.OnPublish(ns.TVUI+topics.AppConnect, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.Authentication, `""`)
	})
	tv.OnPublish(ns.TVUI+topics.SubmitAuthCode, func(payload []byte) []transport.Message {
		if string(payload) != `{"authNum":1234}` {
			return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":0}`)
		}
		return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":1}`)
	})
	tv.OnPublish(ns.TVPlatform+topics.GetToken, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.TokenIssuance,
			`{"accesstoken":"A","accesstoken_time":1700000000,"accesstoken_duration_day":1,`+
				`"refreshtoken":"R","refreshtoken_time":1700000000,"refreshtoken_duration_day":30}`)
	})
	tv.OnPublish(ns.TVUI+topics.GetTVState, func([]byte) []transport.Message {
		return faketv.Reply(ns.Broadcast+topics.State, `{"statetype":"livetv","displayname":"TV"}`)
	})
	tv.OnPublish(ns.TVPlatform+topics.GetVolume, func([]byte) []transport.Message {
		return faketv.Reply(ns.Broadcast+topics.VolumeChange, `{"volume_type":0,"volume_value":20}`)
	})

	// Phase 1: pairing, with the human entering the on-screen code.
	p, err := pairing.New(pairing.Config{
		Transport:    tv,
		StepTimeout:  time.Second,
		HardwareAddr: hardwareAddr,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	creds, err := p.SubmitCode(context.Background(), "1234")
	require.NoError(t, err)

	assert.Equal(t, clientID, creds.ClientID)
	assert.Equal(t, "his$1700000000", creds.Username)
	assert.Equal(t, "30CC23251954D2B965504DC81E944805", creds.Password)
	assert.Equal(t, "A", creds.AccessToken)
	assert.Equal(t, "R", creds.RefreshToken)
	assert.Equal(t, int64(1), creds.AccessTokenDurationDays)
	assert.Equal(t, int64(30), creds.RefreshTokenDurationDays)

	// Phase 2: steady-state control over the paired credentials.
	s, err := session.Open(session.Config{
		Transport:        tv,
		Credentials:      creds,
		OperationTimeout: time.Second,
		Now:              func() time.Time { return now },
	})
	require.NoError(t, err)
	defer s.Close()

	state, err := s.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "livetv", state.StateType)

	vol, err := s.GetVolume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, vol.Value)

	sent, err := s.SendKey(context.Background(), "KEY_VOLUMEUP")
	require.NoError(t, err)
	assert.True(t, sent)

	// The whole flow uses exactly two connections: one pairing connection
	// held across all handshake phases, one access-token connection reused
	// by every operation.
	assert.Equal(t, 2, tv.ConnectCount())

	auths := tv.Auths()
	require.Len(t, auths, 2)
	assert.Equal(t, transport.CredentialPairing, auths[0].Kind)
	assert.Equal(t, transport.CredentialAccessToken, auths[1].Kind)
	assert.Equal(t, "A", auths[1].Password)
}

// A wrong code mid-ceremony does not cost the connection or the handshake.
func TestPairingRecoversFromWrongCode(t *testing.T) {
	const (
		hardwareAddr = "aa:bb:cc:dd:ee:ff"
		clientID     = "aa:bb:cc:dd:ee:ff$his$617E95_vidaacommon_001"
	)
	ns := topics.Build(clientID)

	tv := faketv.New()
	tv.OnPublish(ns.TVUI+topics.AppConnect, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.Authentication, `""`)
	})
	tv.OnPublish(ns.TVUI+topics.SubmitAuthCode, func(payload []byte) []transport.Message {
		if string(payload) != `{"authNum":4321}` {
			return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":0}`)
		}
		return faketv.Reply(ns.Mobile+topics.AuthenticationCode, `{"result":1}`)
	})
	tv.OnPublish(ns.TVPlatform+topics.GetToken, func([]byte) []transport.Message {
		return faketv.Reply(ns.Mobile+topics.TokenIssuance,
			`{"accesstoken":"A","accesstoken_time":1000,"accesstoken_duration_day":1,`+
				`"refreshtoken":"R","refreshtoken_time":1000,"refreshtoken_duration_day":30}`)
	})

	p, err := pairing.New(pairing.Config{
		Transport:    tv,
		StepTimeout:  time.Second,
		HardwareAddr: hardwareAddr,
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	_, err = p.SubmitCode(context.Background(), "1111")
	require.ErrorIs(t, err, pairing.ErrAuthCodeRejected)

	creds, err := p.SubmitCode(context.Background(), "4321")
	require.NoError(t, err)
	assert.Equal(t, "A", creds.AccessToken)
	assert.Equal(t, 1, tv.ConnectCount())
}
