package password

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T, memory, time uint32, maxBytes int) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Config{
		Memory:           memory,
		Time:             time,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: maxBytes,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := testHasher(t, 8192, 1, 0)
	hash, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %s", hash)
	}

	for secret, want := range map[string]bool{
		"correct horse battery": true,
		"correct horse battery ": false,
		"wrong password!":       false,
	} {
		ok, err := h.Verify(secret, hash)
		if err != nil {
			t.Fatalf("Verify(%q): %v", secret, err)
		}
		if ok != want {
			t.Fatalf("Verify(%q) = %v, want %v", secret, ok, want)
		}
	}
}

func TestInputLimits(t *testing.T) {
	h := testHasher(t, 8192, 1, 64)
	tests := []struct {
		name   string
		secret string
		want   error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"short", "short", ErrPasswordTooShort},
		{"at max", strings.Repeat("b", 64), nil},
		{"over max", strings.Repeat("a", 65), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		_, err := h.Hash(tt.secret)
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: Hash error %v, want %v", tt.name, err, tt.want)
		}
	}

	hash, _ := h.Hash("a valid password")
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to reject long input, got %v", err)
	}
}

func TestDefaultMaxPasswordBytes(t *testing.T) {
	h := testHasher(t, 8192, 1, 0)
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong over %d bytes, got %v", DefaultMaxPasswordBytes, err)
	}
}

func TestInvalidStoredHash(t *testing.T) {
	h := testHasher(t, 8192, 1, 0)
	good, err := h.Hash("a valid password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	for _, stored := range []string{
		"",
		"not-a-phc-hash",
		"$2y$10$legacybcrypthash",
		strings.Replace(good, "$v=19$", "$v=18$", 1),
	} {
		if _, err := h.Verify("a valid password", stored); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", stored, err)
		}
		if _, err := h.NeedsUpgrade(stored); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("NeedsUpgrade(%q): expected ErrInvalidHash, got %v", stored, err)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := testHasher(t, 8192, 1, 0)
	strong := testHasher(t, 16384, 2, 0)
	hash, err := weak.Hash("a valid password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if up, err := strong.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected weaker hash to need upgrade, got %v %v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected same parameters to be current, got %v %v", up, err)
	}
	if ok, err := strong.Verify("a valid password", hash); err != nil || !ok {
		t.Fatalf("stronger hasher must still verify old hashes: %v %v", ok, err)
	}
}

func TestVerifyDummyToleratesAnyInput(t *testing.T) {
	h := testHasher(t, 8192, 1, 0)
	h.VerifyDummy("")
	h.VerifyDummy("unknown user password")
	h.VerifyDummy(strings.Repeat("x", DefaultMaxPasswordBytes+1))
}
