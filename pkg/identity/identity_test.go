package identity

import (
	"strings"
	"testing"
	"time"
)

// Golden vectors fixed against the reference derivation.
func TestDeriveGolden(t *testing.T) {
	tests := []struct {
		name     string
		now      int64
		addr     string
		reauth   bool
		username string
		password string
		clientID string
	}{
		{
			name:     "random-address variant",
			now:      1700000000,
			addr:     "aa:bb:cc:dd:ee:ff",
			username: "his$1700000000",
			password: "30CC23251954D2B965504DC81E944805",
			clientID: "aa:bb:cc:dd:ee:ff$his$617E95_vidaacommon_001",
		},
		{
			name:     "reauth variant mangles only the username",
			now:      1700000000,
			addr:     "aa:bb:cc:dd:ee:ff",
			reauth:   true,
			username: "his$6239759786369374312",
			password: "30CC23251954D2B965504DC81E944805",
			clientID: "aa:bb:cc:dd:ee:ff$his$617E95_vidaacommon_001",
		},
		{
			name:     "persistent-address variant keeps uppercase",
			now:      1234567890,
			addr:     "AA:BB:CC:DD:EE:FF",
			username: "his$1234567890",
			password: "DD2DA0B64BC58C2417272C20BFE43389",
			clientID: "AA:BB:CC:DD:EE:FF$his$637064_vidaacommon_001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Derive(time.Unix(tt.now, 0), Options{HardwareAddr: tt.addr, Reauth: tt.reauth})
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			if id.Timestamp != tt.now {
				t.Errorf("Timestamp = %d, want %d", id.Timestamp, tt.now)
			}
			if id.Username != tt.username {
				t.Errorf("Username = %q, want %q", id.Username, tt.username)
			}
			if id.Password != tt.password {
				t.Errorf("Password = %q, want %q", id.Password, tt.password)
			}
			if id.ClientID != tt.clientID {
				t.Errorf("ClientID = %q, want %q", id.ClientID, tt.clientID)
			}
		})
	}
}

func TestDeriveDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	opts := Options{HardwareAddr: "aa:bb:cc:dd:ee:ff"}

	a, err := Derive(now, opts)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	b, err := Derive(now, opts)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if a != b {
		t.Errorf("repeated derivation differs: %+v vs %+v", a, b)
	}
}

func TestDeriveInputsChangeOutputs(t *testing.T) {
	base, _ := Derive(time.Unix(1700000000, 0), Options{HardwareAddr: "aa:bb:cc:dd:ee:ff"})

	laterTime, _ := Derive(time.Unix(1700000001, 0), Options{HardwareAddr: "aa:bb:cc:dd:ee:ff"})
	if laterTime.Password == base.Password {
		t.Error("changing timestamp did not change password")
	}

	otherAddr, _ := Derive(time.Unix(1700000000, 0), Options{HardwareAddr: "11:22:33:44:55:66"})
	if otherAddr.ClientID == base.ClientID {
		t.Error("changing hardware address did not change client ID")
	}

	// Case feeds the hash, so it must change the client-ID hash portion.
	upper, _ := Derive(time.Unix(1700000000, 0), Options{HardwareAddr: "AA:BB:CC:DD:EE:FF"})
	if upper.ClientID == base.ClientID {
		t.Error("changing address case did not change client ID")
	}
}

func TestRandomHardwareAddr(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		addr, err := RandomHardwareAddr()
		if err != nil {
			t.Fatalf("RandomHardwareAddr failed: %v", err)
		}
		if err := ValidateHardwareAddr(addr); err != nil {
			t.Errorf("generated address %q invalid: %v", addr, err)
		}
		if addr != strings.ToLower(addr) {
			t.Errorf("generated address %q is not lowercase", addr)
		}
		seen[addr] = true
	}
	if len(seen) < 45 {
		t.Errorf("expected more unique addresses, got %d", len(seen))
	}
}

func TestValidateHardwareAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"aa:bb:cc:dd:ee:ff", false},
		{"AA:BB:CC:DD:EE:FF", false},
		{"00:00:00:00:00:00", false},
		{"aa:bb:cc:dd:ee", true},       // too few groups
		{"aa:bb:cc:dd:ee:ff:00", true}, // too many groups
		{"aabbccddeeff", true},         // no separators
		{"aa:bb:cc:dd:ee:f", true},     // short group
		{"aa:bb:cc:dd:ee:fg", true},    // non-hex
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateHardwareAddr(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHardwareAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
		}
	}
}

func TestCrossSum(t *testing.T) {
	tests := []struct {
		n    int64
		want int
	}{
		{1700000000, 8},
		{1234567890, 45},
		{9, 9},
		{999999999, 81},
	}

	for _, tt := range tests {
		if got := crossSum(tt.n); got != tt.want {
			t.Errorf("crossSum(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
