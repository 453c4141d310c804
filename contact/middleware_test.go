package contact

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	h := JSONContentType(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(rr, req)

	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestSetVersionHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	h := SetVersionHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(rr, req)

	assert.Equal(t, version, rr.Header().Get("X-Contact-Kiwi-Version"))
}

func TestRestoreRealIP(t *testing.T) {
	tests := []struct {
		Name       string
		Headers    map[string]string
		RemoteAddr string
		Expected   string
	}{
		{
			Name:       "cloudflare",
			Headers:    map[string]string{"CF-Connecting-IP": "203.0.113.7"},
			RemoteAddr: "10.0.0.1:1234",
			Expected:   "203.0.113.7",
		},
		{
			Name:       "forwarded for",
			Headers:    map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"},
			RemoteAddr: "10.0.0.1:1234",
			Expected:   "198.51.100.2",
		},
		{
			Name:       "no headers",
			RemoteAddr: "10.0.0.1:1234",
			Expected:   "10.0.0.1:1234",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = test.RemoteAddr
			for k, v := range test.Headers {
				req.Header.Set(k, v)
			}

			var got string
			h := RestoreRealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, test.Expected, got)
		})
	}
}

func TestServer_RestoreRealIPEnabled(t *testing.T) {
	mDB, mV, mD, mTG := newMocks()
	cfg := testConfig
	cfg.RestoreRealIP = true
	s := newTestServer(t, cfg, mDB, mV, mD, mTG)

	var got string
	s.Router.HandleFunc("/remote", func(w http.ResponseWriter, r *http.Request) {
		got = r.RemoteAddr
	})

	req := httptest.NewRequest(http.MethodGet, "/remote", nil)
	req.Header.Set("CF-Connecting-IP", testIP)
	serve(s, req)

	assert.Equal(t, testIP, got)
}
