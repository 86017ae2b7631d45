package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the most likely client address: X-Real-IP, then the first
// parseable X-Forwarded-For entry, then RemoteAddr. The headers come from the
// client unless a proxy overwrites them; see [WithTrustedProxyHeaders].
func ClientIP(r *http.Request) string {
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for part := range strings.SplitSeq(v, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of RemoteAddr, ignoring proxy headers. It is
// the default resolver.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
