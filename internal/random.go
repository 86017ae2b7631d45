package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"time"
)

// RandomSource fills b completely or returns an error.
type RandomSource func(b []byte) error

// ErrNoRandomSource is returned by [ReadRandom] when every source failed and no
// insecure fallback was allowed.
var ErrNoRandomSource = errors.New("no usable random source")

// CryptoSource reads from crypto/rand.
func CryptoSource(b []byte) error {
	_, err := io.ReadFull(rand.Reader, b)
	return err
}

// DeviceSource reads from /dev/urandom directly.
func DeviceSource(b []byte) error {
	f, err := os.Open("/dev/urandom")
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.ReadFull(f, b)
	return err
}

// InsecureSource is a PCG generator seeded from the wall clock and pid. It is
// only ever used after every secure source failed.
func InsecureSource(b []byte) error {
	now := uint64(time.Now().UnixNano())
	r := mrand.New(mrand.NewPCG(now, uint64(os.Getpid())<<32|now>>32))
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return nil
}

// DefaultSources is the secure-first fallback chain.
var DefaultSources = []RandomSource{CryptoSource, DeviceSource}

// ReadRandom fills b from the first source that succeeds. When all sources fail
// and insecure is non-nil, the insecure source is used and degraded is true.
func ReadRandom(b []byte, sources []RandomSource, insecure RandomSource) (degraded bool, err error) {
	var errs []error
	for _, src := range sources {
		if src == nil {
			continue
		}
		if err := src(b); err == nil {
			return false, nil
		} else {
			errs = append(errs, err)
		}
	}
	if insecure == nil {
		return false, fmt.Errorf("%w: %v", ErrNoRandomSource, errors.Join(errs...))
	}
	if err := insecure(b); err != nil {
		return true, fmt.Errorf("%w: %v", ErrNoRandomSource, err)
	}
	return true, nil
}
