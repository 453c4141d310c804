package contact

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		Name     string
		CF       string
		XFF      string
		Expected string
	}{
		{"cloudflare preferred", "203.0.113.7", "198.51.100.2", "203.0.113.7"},
		{"cloudflare trimmed", "  203.0.113.7 ", "", "203.0.113.7"},
		{"first forwarded hop", "", "198.51.100.2, 10.0.0.1", "198.51.100.2"},
		{"single forwarded hop", "", "198.51.100.2", "198.51.100.2"},
		{"blank cloudflare falls through", "   ", "198.51.100.2", "198.51.100.2"},
		{"empty first hop", "", " , 10.0.0.1", UnknownClientIP},
		{"nothing", "", "", UnknownClientIP},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
			if test.CF != "" {
				r.Header.Set("CF-Connecting-IP", test.CF)
			}
			if test.XFF != "" {
				r.Header.Set("X-Forwarded-For", test.XFF)
			}

			assert.Equal(t, test.Expected, ClientIP(r))
		})
	}
}

func TestClientIP_IgnoresRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	r.RemoteAddr = "192.0.2.1:4321"

	assert.Equal(t, UnknownClientIP, ClientIP(r))
}
