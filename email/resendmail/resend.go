package resendmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	log "github.com/sirupsen/logrus"
)

var _ contact.Dispatcher = &ResendMail{}

// APIURL is the resend send email endpoint
const APIURL = "https://api.resend.com/emails"

// ResendMail sends notifications through the resend http api
type ResendMail struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// Option configures ResendMail
type Option func(*ResendMail)

// WithAPIURL overrides the send endpoint
func WithAPIURL(u string) Option {
	return func(r *ResendMail) {
		r.apiURL = strings.TrimSpace(u)
	}
}

// WithHTTPClient sets the http client used to call resend
func WithHTTPClient(hc *http.Client) Option {
	return func(r *ResendMail) {
		r.httpClient = hc
	}
}

// NewResendProvider returns a Dispatcher authenticating with apiKey
func NewResendProvider(apiKey string, opts ...Option) *ResendMail {
	r := &ResendMail{
		apiKey:     apiKey,
		apiURL:     APIURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Dispatch implements Dispatcher Dispatch()
func (r *ResendMail) Dispatch(ctx context.Context, e contact.Email) (string, bool) {
	id, err := r.send(ctx, e)
	if err != nil {
		log.WithField("subject", e.Subject).WithError(err).Error("Resend.Dispatch: failed to send message")
		return "", false
	}
	return id, true
}

func (r *ResendMail) send(ctx context.Context, e contact.Email) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Text:    e.Text,
		ReplyTo: e.ReplyTo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var sr sendResponse
	err = json.NewDecoder(resp.Body).Decode(&sr)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if sr.ID == "" {
		return "", fmt.Errorf("response contained no id")
	}

	return sr.ID, nil
}
