package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credentials is the long-lived credential set a successful pairing yields.
// JSON tags match the device's token issuance payload, so the struct both
// decodes wire messages and round-trips through the caller's credential file.
type Credentials struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`

	AccessToken             string `json:"accesstoken"`
	AccessTokenTime         int64  `json:"accesstoken_time"`
	AccessTokenDurationDays int64  `json:"accesstoken_duration_day"`

	RefreshToken             string `json:"refreshtoken"`
	RefreshTokenTime         int64  `json:"refreshtoken_time"`
	RefreshTokenDurationDays int64  `json:"refreshtoken_duration_day"`
}

// DecodeTokenPayload decodes a token issuance payload into Credentials.
// Only the token fields and any reissued username/password are populated.
func DecodeTokenPayload(payload []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: token payload: %v", ErrMalformedPayload, err)
	}
	if creds.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: token payload missing accesstoken", ErrMalformedPayload)
	}
	return creds, nil
}

// AccessTokenExpiry returns the instant the access token stops being valid.
func (c Credentials) AccessTokenExpiry() time.Time {
	return time.Unix(c.AccessTokenTime+c.AccessTokenDurationDays*86400, 0)
}

// RefreshTokenExpiry returns the instant the refresh token stops being valid.
func (c Credentials) RefreshTokenExpiry() time.Time {
	return time.Unix(c.RefreshTokenTime+c.RefreshTokenDurationDays*86400, 0)
}

// AccessTokenValid reports whether the access token is still valid at now.
func (c Credentials) AccessTokenValid(now time.Time) bool {
	return now.Unix() <= c.AccessTokenTime+c.AccessTokenDurationDays*86400
}
