package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenValidBoundaries(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		issuedAt int64
		days     int64
		want     bool
	}{
		{"issued 80000s ago, one day window", now.Unix() - 80000, 1, true},
		{"issued 90000s ago, one day window", now.Unix() - 90000, 1, false},
		{"expires exactly now", now.Unix() - 86400, 1, true},
		{"expired one second ago", now.Unix() - 86401, 1, false},
		{"thirty day window", now.Unix() - 90000, 30, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := Credentials{AccessTokenTime: tt.issuedAt, AccessTokenDurationDays: tt.days}
			assert.Equal(t, tt.want, creds.AccessTokenValid(now))
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	creds := Credentials{
		AccessTokenTime:          1000,
		AccessTokenDurationDays:  1,
		RefreshTokenTime:         1000,
		RefreshTokenDurationDays: 30,
	}
	assert.Equal(t, time.Unix(1000+86400, 0), creds.AccessTokenExpiry())
	assert.Equal(t, time.Unix(1000+30*86400, 0), creds.RefreshTokenExpiry())
}

func TestDecodeTokenPayload(t *testing.T) {
	payload := `{"accesstoken":"A","accesstoken_time":1000,"accesstoken_duration_day":1,` +
		`"refreshtoken":"R","refreshtoken_time":1000,"refreshtoken_duration_day":30}`

	creds, err := DecodeTokenPayload([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "A", creds.AccessToken)
	assert.Equal(t, "R", creds.RefreshToken)
	assert.Equal(t, int64(30), creds.RefreshTokenDurationDays)
	assert.Empty(t, creds.ClientID)

	_, err = DecodeTokenPayload([]byte("not json"))
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	_, err = DecodeTokenPayload([]byte(`{"refreshtoken":"R"}`))
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestCredentialsFileRoundTrip(t *testing.T) {
	creds := Credentials{
		ClientID:                 "c1",
		Username:                 "his$1",
		Password:                 "P",
		AccessToken:              "A",
		AccessTokenTime:          1000,
		AccessTokenDurationDays:  1,
		RefreshToken:             "R",
		RefreshTokenTime:         1000,
		RefreshTokenDurationDays: 30,
	}

	data, err := json.Marshal(creds)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"client_id":"c1"`)
	assert.Contains(t, string(data), `"accesstoken_duration_day":1`)

	var got Credentials
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, creds, got)
}
