package contact

import (
	"net/http"
	"strings"
)

// UnknownClientIP is used when no client address header is present
const UnknownClientIP = "0.0.0.0"

// ClientIP returns the best effort address of the caller. CF-Connecting-IP is set by the
// edge and preferred, then the first X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	return UnknownClientIP
}
