package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haydenwoodhead/contact.kiwi/metrics"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes caps the size of a submission body
const maxBodyBytes = 64 << 10

// Pipeline runs contact form submissions through the anti abuse checks, records them
// and notifies the operator
type Pipeline struct {
	cfg        Config
	db         Database
	verifier   Verifier
	dispatcher Dispatcher
	tokens     TokenGenerator

	now   func() time.Time
	newID func() (string, error)
}

// NewPipeline returns a pipeline using the given collaborators
func NewPipeline(cfg Config, db Database, v Verifier, d Dispatcher, tg TokenGenerator) *Pipeline {
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		db:         db,
		verifier:   v,
		dispatcher: d,
		tokens:     tg,
		now:        time.Now,
		newID:      newUUID,
	}
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// submission is the json body posted by the contact form
type submission struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Message        string   `json:"message"`
	MiddleName     jsString `json:"middleName"`
	TurnstileToken jsString `json:"turnstileToken"`
	ElapsedMs      jsNumber `json:"elapsedMs"`
}

// jsString decodes any json scalar as its text so that a bot filling a field with a number
// or bool still gets through to the checks. null leaves it empty.
type jsString string

func (s *jsString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = jsString(v)
	default:
		*s = jsString(b)
	}

	return nil
}

// jsNumber decodes a json value the way a browser's Number() would for the values a form
// can send. Anything that isn't a number or numeric string becomes NaN.
type jsNumber float64

func (n *jsNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = jsNumber(math.NaN())
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		*n = jsNumber(parseNumericString(s))
		return nil
	}

	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = jsNumber(math.NaN())
		return nil
	}

	*n = jsNumber(f)
	return nil
}

// parseNumericString parses s like Number() does for a string: decimal, or unsigned integers
// with a 0x, 0o or 0b prefix. Anything else is NaN.
func parseNumericString(s string) float64 {
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}

		if base != 0 {
			if strings.ContainsAny(s[2:], "+-") {
				return math.NaN()
			}
			i, ok := new(big.Int).SetString(s[2:], base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(i).Float64()
			return f
		}
	}

	// go accepts hex floats and digit separators which Number() doesn't
	if strings.ContainsAny(s, "xXpP_") {
		return math.NaN()
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Submit validates the request and records it. A non nil error means the submission
// passed every check but could not be stored.
func (p *Pipeline) Submit(r *http.Request) (Outcome, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return rejected(CodeInvalidContentType), nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return rejected(CodeInvalidJSON), nil
	}

	sub := submission{ElapsedMs: jsNumber(math.NaN())}
	if err := json.Unmarshal(body, &sub); err != nil {
		return rejected(CodeInvalidJSON), nil
	}

	name := strings.TrimSpace(sub.Name)
	email := strings.TrimSpace(sub.Email)
	message := strings.TrimSpace(sub.Message)
	if name == "" || email == "" || message == "" {
		return rejected(CodeMissingFields), nil
	}

	if strings.TrimSpace(string(sub.MiddleName)) != "" {
		return silently(ReasonHoneypot), nil
	}

	if p.tooFast(float64(sub.ElapsedMs)) {
		return silently(ReasonTiming), nil
	}

	tk := strings.TrimSpace(string(sub.TurnstileToken))
	if tk == "" {
		return rejected(CodeMissingTurnstileToken), nil
	}

	ip := ClientIP(r)
	ctx := r.Context()

	if !p.verifier.Verify(ctx, tk, ip) {
		return rejected(CodeTurnstileFailed), nil
	}

	now := p.now()

	limited, err := p.db.IsRateLimited(ctx, ip, p.cfg.RateLimitWindow, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if limited {
		return rejected(CodeRateLimited), nil
	}

	// committed before persisting so a failure below still closes the window
	if err := p.db.UpsertRateLimit(ctx, ip, now); err != nil {
		return Outcome{}, fmt.Errorf("failed to record rate limit: %w", err)
	}

	c, m, err := p.newRecords(name, email, message, now)
	if err != nil {
		return Outcome{}, err
	}

	if err := p.db.CreateConversationWithMessage(ctx, c, m); err != nil {
		return Outcome{}, fmt.Errorf("failed to save conversation: %w", err)
	}

	return accepted(c, m), nil
}

// tooFast reports whether the client measured fill time is unusable or below the minimum
func (p *Pipeline) tooFast(ms float64) bool {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return true
	}
	return ms < float64(p.cfg.MinElapsed/time.Millisecond)
}

func (p *Pipeline) newRecords(name, email, message string, now time.Time) (Conversation, Message, error) {
	cID, err := p.newID()
	if err != nil {
		return Conversation{}, Message{}, fmt.Errorf("failed to generate conversation id: %w", err)
	}

	mID, err := p.newID()
	if err != nil {
		return Conversation{}, Message{}, fmt.Errorf("failed to generate message id: %w", err)
	}

	tk, err := p.tokens.Generate()
	if err != nil {
		return Conversation{}, Message{}, fmt.Errorf("failed to generate reply token: %w", err)
	}

	c := NewConversation(cID, tk, name, email, now)
	m := NewInboundMessage(mID, c, p.cfg.ContactTo, message)

	return c, m, nil
}

// Delivery reports what happened to the notification for an accepted submission
type Delivery struct {
	Sent              bool
	ProviderMessageID string
	Backfilled        bool
}

// Notify emails the operator about an accepted submission and stores the provider's
// message id against it. Failures are logged and only show up in the returned Delivery.
func (p *Pipeline) Notify(ctx context.Context, c Conversation, m Message) Delivery {
	var d Delivery

	id, ok := p.dispatcher.Dispatch(ctx, Email{
		From:    p.cfg.ReplyFrom,
		To:      []string{p.cfg.ContactTo},
		Subject: c.Subject,
		Text:    notificationText(c, m),
		ReplyTo: p.cfg.ReplyFrom,
	})
	if !ok {
		log.WithField("conversationID", c.ID).Warn("Notify: notification was not sent")
		metrics.Notifications.WithLabelValues("failed").Inc()
		return d
	}

	metrics.Notifications.WithLabelValues("sent").Inc()
	d.Sent = true
	d.ProviderMessageID = id

	if err := p.db.AttachProviderMessageID(ctx, c.ID, id); err != nil {
		log.WithFields(log.Fields{"conversationID": c.ID, "providerID": id}).WithError(err).Error("Notify: failed to save provider message id")
		return d
	}

	d.Backfilled = true
	return d
}

func notificationText(c Conversation, m Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.FromName)
	fmt.Fprintf(&b, "Email: %s\n", c.FromEmail)
	fmt.Fprintf(&b, "Conversation: %s\n\n", c.ID)
	b.WriteString(m.BodyText)
	b.WriteString("\n")
	return b.String()
}
