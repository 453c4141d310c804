package turnstile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/metrics"
	log "github.com/sirupsen/logrus"
)

var _ contact.Verifier = &Client{}

// VerifyURL is Cloudflare's siteverify endpoint
const VerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Client checks turnstile tokens against the siteverify api
type Client struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithVerifyURL overrides the siteverify endpoint
func WithVerifyURL(u string) Option {
	return func(c *Client) {
		c.verifyURL = strings.TrimSpace(u)
	}
}

// WithHTTPClient sets the http client used for verification
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a Client using the given site secret
func New(secret string, opts ...Option) *Client {
	c := &Client{
		secret:     secret,
		verifyURL:  VerifyURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether the token is valid. Any failure to reach or understand the
// service is a failed verification.
func (c *Client) Verify(ctx context.Context, token string, remoteIP string) bool {
	ok := c.verify(ctx, token, remoteIP)
	if ok {
		metrics.VerificationRequests.WithLabelValues("passed").Inc()
	} else {
		metrics.VerificationRequests.WithLabelValues("failed").Inc()
	}
	return ok
}

func (c *Client) verify(ctx context.Context, token string, remoteIP string) bool {
	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.WithError(err).Error("Turnstile: failed to build request")
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("Turnstile: failed to call siteverify")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("Turnstile: siteverify returned non success status")
		return false
	}

	var vr verifyResponse
	err = json.NewDecoder(resp.Body).Decode(&vr)
	if err != nil {
		log.WithError(err).Warn("Turnstile: failed to decode siteverify response")
		return false
	}

	if !vr.Success {
		log.WithField("errorCodes", vr.ErrorCodes).Info("Turnstile: token rejected")
	}

	return vr.Success
}
