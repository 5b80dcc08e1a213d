// Package identity derives the per-pairing credentials (username, password,
// client ID) a VIDAA TV expects from a connecting mobile app.
//
// The derivation is a fixed chain of salted MD5 hashes over the pairing
// timestamp and a hardware address. It must match the device firmware
// bit-for-bit: changing the case of a single hex digit changes the hashes
// and the TV will reject the connection.
package identity

import (
	"crypto/md5"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Protocol constants baked into the device firmware.
const (
	// appKey seeds the first hash of the chain. Its MD5 digest is the salt
	// for the client-ID hash.
	appKey = "&vidaa#^app"

	// serviceSecret is interleaved with the timestamp cross sum to form the
	// password salt.
	serviceSecret = "h*i&s%e!r^v0i1c9"

	// usernamePrefix prefixes every derived username.
	usernamePrefix = "his$"

	// clientIDSuffix terminates every derived client ID.
	clientIDSuffix = "_vidaacommon_001"

	// reauthMask is XORed into the timestamp for the re-authentication
	// username variant. Fixed 64-bit constant from the protocol.
	reauthMask int64 = 6239759785777146216

	// hardwareAddrLen is the number of bytes in a hardware address.
	hardwareAddrLen = 6
)

// Identity errors.
var (
	ErrNoHardwareAddr      = errors.New("no usable hardware address found")
	ErrInvalidHardwareAddr = errors.New("invalid hardware address")
)

// Identity is a derived pairing identity. It is immutable once derived; the
// client ID is embedded in every topic path and pins the topic namespace for
// the lifetime of the pairing.
type Identity struct {
	// Timestamp is the pairing time in Unix seconds.
	Timestamp int64

	// HardwareAddr is the colon-separated hardware address the hashes were
	// salted with.
	HardwareAddr string

	// Username is the session username ("his$<timestamp>", XOR-mangled for
	// the re-auth variant).
	Username string

	// Password is the derived session password (uppercase MD5 hex).
	Password string

	// ClientID is the derived client identifier.
	ClientID string
}

// Options controls identity derivation.
type Options struct {
	// RandomAddr salts the hashes with a freshly generated random hardware
	// address instead of the machine's own.
	RandomAddr bool

	// Reauth selects the XOR-mangled username variant. The condition under
	// which a device requires it is undocumented, so it is an explicit
	// caller choice rather than a guess.
	Reauth bool

	// HardwareAddr overrides address selection entirely when non-empty.
	// The string is hashed exactly as given; case matters.
	HardwareAddr string
}

// Derive derives a pairing identity for the given time.
// The result is deterministic for a fixed (time, address, Reauth) triple.
func Derive(now time.Time, opts Options) (Identity, error) {
	addr := opts.HardwareAddr
	if addr == "" {
		var err error
		if opts.RandomAddr {
			addr, err = RandomHardwareAddr()
		} else {
			addr, err = LocalHardwareAddr()
		}
		if err != nil {
			return Identity{}, err
		}
	}

	ts := now.Unix()

	// MD5(appKey) yields the static salt the firmware embeds in the
	// client-ID hash input.
	appHash := md5Upper(appKey)
	clientHash := md5Upper(appHash + "$" + addr)

	digit := crossSum(ts) % 10
	serviceHash := md5Upper(fmt.Sprintf("his%d%s", digit, serviceSecret))
	password := md5Upper(fmt.Sprintf("%d$%s", ts, serviceHash[:6]))

	username := fmt.Sprintf("%s%d", usernamePrefix, ts)
	if opts.Reauth {
		username = fmt.Sprintf("%s%d", usernamePrefix, ts^reauthMask)
	}

	return Identity{
		Timestamp:    ts,
		HardwareAddr: addr,
		Username:     username,
		Password:     password,
		ClientID:     addr + "$his$" + clientHash[:6] + clientIDSuffix,
	}, nil
}

// RandomHardwareAddr generates a random hardware address formatted as
// lowercase colon-separated hex pairs.
func RandomHardwareAddr() (string, error) {
	buf := make([]byte, hardwareAddrLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate hardware address: %w", err)
	}
	parts := make([]string, hardwareAddrLen)
	for i, b := range buf {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":"), nil
}

// LocalHardwareAddr returns the machine's hardware address formatted as
// uppercase colon-separated hex pairs, matching the persistent-address
// variant of the derivation. The first non-loopback interface with a 6-byte
// address wins.
func LocalHardwareAddr() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) != hardwareAddrLen {
			continue
		}
		return strings.ToUpper(iface.HardwareAddr.String()), nil
	}
	return "", ErrNoHardwareAddr
}

// ValidateHardwareAddr checks that addr looks like six colon-separated hex
// pairs. Case is not normalized: it feeds a hash as-is.
func ValidateHardwareAddr(addr string) error {
	parts := strings.Split(addr, ":")
	if len(parts) != hardwareAddrLen {
		return fmt.Errorf("%w: %q", ErrInvalidHardwareAddr, addr)
	}
	for _, p := range parts {
		if len(p) != 2 {
			return fmt.Errorf("%w: %q", ErrInvalidHardwareAddr, addr)
		}
		for _, c := range p {
			if !isHexDigit(c) {
				return fmt.Errorf("%w: %q", ErrInvalidHardwareAddr, addr)
			}
		}
	}
	return nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// crossSum sums the decimal digits of n.
func crossSum(n int64) int {
	if n < 0 {
		n = -n
	}
	sum := 0
	for n > 0 {
		sum += int(n % 10)
		n /= 10
	}
	return sum
}

// md5Upper returns the uppercase hex MD5 digest of s.
func md5Upper(s string) string {
	return fmt.Sprintf("%X", md5.Sum([]byte(s)))
}
