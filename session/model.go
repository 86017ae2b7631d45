package session

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/MrEthical07/cmsauth/internal"
)

// Client is the request origin a session is bound to.
type Client struct {
	IP        string
	UserAgent string
}

// Record is one row of the sessions table.
//
// Data holds the encrypted payload exactly as stored; it is never cleartext.
type Record struct {
	SessionID    string
	IPAddress    string
	UserAgent    string
	LastActivity int64
	Timeout      int64
	Fixed        bool
	Data         string
}

// Valid reports whether the record is usable at now (unix seconds) for client.
// An expired record or one bound to a different IP or user agent is not.
func (r *Record) Valid(now int64, c Client) bool {
	if r == nil {
		return false
	}
	if now-r.LastActivity >= r.Timeout {
		return false
	}
	return r.IPAddress == c.IP && r.UserAgent == c.UserAgent
}

// Remaining returns the seconds left before expiry, never negative.
func (r *Record) Remaining(now int64) int64 {
	if r == nil {
		return 0
	}
	left := r.Timeout - (now - r.LastActivity)
	if left < 0 {
		return 0
	}
	return left
}

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NewID derives a fresh 32-character session id from a random seed and the
// client IP.
func NewID(ip string) (string, error) {
	seed, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("session id seed: %w", err)
	}
	var extra [16]byte
	if _, err := internal.ReadRandom(extra[:], internal.DefaultSources, nil); err != nil {
		return "", fmt.Errorf("session id seed: %w", err)
	}

	h := md5.New()
	h.Write(seed[:])
	h.Write(extra[:])
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CookieValue is the value sent to the browser for a session id. The raw id
// never leaves the server.
func CookieValue(sessionID, salt string) string {
	sum := md5.Sum([]byte(sessionID + salt))
	return hex.EncodeToString(sum[:])
}

// wellFormed reports whether v could be a cookie value issued by [CookieValue].
func wellFormed(v string) bool {
	return hex32.MatchString(v)
}
