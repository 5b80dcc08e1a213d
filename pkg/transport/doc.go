// Package transport maintains one MQTT connection to a VIDAA TV.
//
// The TV embeds a vendor MQTT broker on port 36669 behind TLS with a
// self-signed certificate. Authentication is a username/password pair whose
// meaning depends on the session phase (derived pairing credentials, access
// token, or refresh token), plus an optional vendor-issued client certificate.
// The protocol offers no re-authentication on a live connection; switching
// credential kinds means disconnecting and connecting again.
package transport
