package internal

import (
	"bytes"
	"errors"
	"testing"
)

func failing(b []byte) error { return errors.New("unavailable") }

func TestReadRandomUsesFirstWorkingSource(t *testing.T) {
	fixed := func(b []byte) error {
		for i := range b {
			b[i] = 0xAB
		}
		return nil
	}
	b := make([]byte, 8)
	degraded, err := ReadRandom(b, []RandomSource{failing, fixed, CryptoSource}, InsecureSource)
	if err != nil {
		t.Fatalf("ReadRandom: %v", err)
	}
	if degraded {
		t.Fatal("expected a secure source to be used")
	}
	if !bytes.Equal(b, bytes.Repeat([]byte{0xAB}, 8)) {
		t.Fatalf("expected second source output, got %x", b)
	}
}

func TestReadRandomFallsBackToInsecure(t *testing.T) {
	b := make([]byte, 16)
	degraded, err := ReadRandom(b, []RandomSource{failing, failing}, InsecureSource)
	if err != nil {
		t.Fatalf("ReadRandom: %v", err)
	}
	if !degraded {
		t.Fatal("expected degraded flag")
	}
}

func TestReadRandomWithoutFallbackFails(t *testing.T) {
	_, err := ReadRandom(make([]byte, 4), []RandomSource{failing}, nil)
	if !errors.Is(err, ErrNoRandomSource) {
		t.Fatalf("expected ErrNoRandomSource, got %v", err)
	}
}

func TestCryptoSourceFillsBuffer(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	if err := CryptoSource(a); err != nil {
		t.Fatalf("crypto source: %v", err)
	}
	if err := CryptoSource(b); err != nil {
		t.Fatalf("crypto source: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two crypto reads returned identical bytes")
	}
}
