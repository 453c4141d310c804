package contact

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit_IsLimited(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	window := 5 * time.Minute

	tests := []struct {
		Name       string
		LastSentAt string
		Expected   bool
	}{
		{"just now", FormatTime(now), true},
		{"inside window", FormatTime(now.Add(-4 * time.Minute)), true},
		{"one nanosecond inside", FormatTime(now.Add(-window + time.Nanosecond)), true},
		{"exactly window", FormatTime(now.Add(-window)), false},
		{"outside window", FormatTime(now.Add(-time.Hour)), false},
		{"other offset", now.Add(-time.Minute).In(time.FixedZone("NZDT", 13*60*60)).Format(TimeFormat), true},
		{"unparsable", "yesterday", false},
		{"empty", "", false},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			rl := RateLimit{Key: testIP, LastSentAt: test.LastSentAt}
			assert.Equal(t, test.Expected, rl.IsLimited(window, now))
		})
	}
}

func TestRateLimit_Expired(t *testing.T) {
	cutoff := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

	assert.True(t, RateLimit{LastSentAt: FormatTime(cutoff.Add(-time.Second))}.Expired(cutoff))
	assert.False(t, RateLimit{LastSentAt: FormatTime(cutoff)}.Expired(cutoff))
	assert.False(t, RateLimit{LastSentAt: FormatTime(cutoff.Add(time.Second))}.Expired(cutoff))
	assert.True(t, RateLimit{LastSentAt: "garbage"}.Expired(cutoff))
}

func TestFormatTime(t *testing.T) {
	local := time.Date(2024, 1, 2, 16, 4, 5, 500, time.FixedZone("NZDT", 13*60*60))

	s := FormatTime(local)
	assert.Equal(t, "2024-01-02T03:04:05.0000005Z", s)

	parsed, err := ParseTime(s)
	assert.NoError(t, err)
	assert.True(t, parsed.Equal(local))
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "New contact from Bobby Tables", SubjectFor("Bobby Tables"))
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2024, 1, 2, 16, 4, 5, 0, time.FixedZone("NZDT", 13*60*60))

	c := NewConversation("conv-1", "tok", "Bobby", "bob@example.com", now)

	assert.Equal(t, "conv-1", c.ID)
	assert.Equal(t, "tok", c.Token)
	assert.Equal(t, "Bobby", c.FromName)
	assert.Equal(t, "bob@example.com", c.FromEmail)
	assert.Equal(t, "New contact from Bobby", c.Subject)
	assert.Equal(t, StatusOpen, c.Status)
	assert.Equal(t, time.UTC, c.CreatedAt.Location())
	assert.True(t, c.CreatedAt.Equal(now))
	assert.Equal(t, c.CreatedAt, c.LastActivityAt)
}

func TestNewInboundMessage(t *testing.T) {
	c := NewConversation("conv-1", "tok", "Bobby", "bob@example.com", testNow)

	m := NewInboundMessage("msg-1", c, "contact@example.com", "Hello")

	assert.Equal(t, Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Direction:      DirectionInbound,
		FromEmail:      "bob@example.com",
		ToEmail:        "contact@example.com",
		Subject:        "New contact from Bobby",
		BodyText:       "Hello",
		CreatedAt:      testNow,
	}, m)
}

func TestCode_StatusAndMessage(t *testing.T) {
	tests := []struct {
		Code   Code
		Status int
	}{
		{CodeInvalidContentType, http.StatusUnsupportedMediaType},
		{CodeInvalidJSON, http.StatusBadRequest},
		{CodeMissingFields, http.StatusBadRequest},
		{CodeMissingTurnstileToken, http.StatusBadRequest},
		{CodeTurnstileFailed, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeNotFound, http.StatusNotFound},
		{CodeNotImplemented, http.StatusNotImplemented},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, test := range tests {
		assert.Equal(t, test.Status, test.Code.Status(), string(test.Code))
		assert.NotEmpty(t, test.Code.Message(), string(test.Code))
	}
}

func TestOutcome(t *testing.T) {
	c, m := expectedRecords()

	assert.Equal(t, http.StatusOK, accepted(c, m).Status())
	assert.Equal(t, http.StatusOK, silently(ReasonTiming).Status())
	assert.Equal(t, accepted(c, m).Response(), silently(ReasonHoneypot).Response())

	r := rejected(CodeRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, r.Status())
	assert.Equal(t, Response{OK: false, Code: CodeRateLimited, Message: CodeRateLimited.Message()}, r.Response())

	assert.Equal(t, "accepted", accepted(c, m).metricLabel())
	assert.Equal(t, "silent_timing", silently(ReasonTiming).metricLabel())
	assert.Equal(t, "rate_limited", r.metricLabel())

	assert.Equal(t, "accepted_silently", AcceptedSilently.String())
}
