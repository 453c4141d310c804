package contact

import (
	"fmt"
	"time"
)

// Conversation statuses
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation is a thread started by a contact form submission
type Conversation struct {
	ID             string    `dynamodbav:"id" json:"id" db:"id"`
	Token          string    `dynamodbav:"token" json:"-" db:"token"`
	FromName       string    `dynamodbav:"from_name" json:"from_name" db:"from_name"`
	FromEmail      string    `dynamodbav:"from_email" json:"from_email" db:"from_email"`
	Subject        string    `dynamodbav:"subject" json:"subject" db:"subject"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at" db:"created_at"`
	LastActivityAt time.Time `dynamodbav:"last_activity_at" json:"last_activity_at" db:"last_activity_at"`
	Status         string    `dynamodbav:"status" json:"status" db:"status"`
}

// Message is a single email within a conversation
type Message struct {
	ID             string    `dynamodbav:"id" json:"id" db:"id"`
	ConversationID string    `dynamodbav:"conversation_id" json:"conversation_id" db:"conversation_id"`
	Direction      string    `dynamodbav:"direction" json:"direction" db:"direction"`
	FromEmail      string    `dynamodbav:"from_email" json:"from_email" db:"from_email"`
	ToEmail        string    `dynamodbav:"to_email" json:"to_email" db:"to_email"`
	Subject        string    `dynamodbav:"subject" json:"subject" db:"subject"`
	BodyText       string    `dynamodbav:"body_text" json:"body_text" db:"body_text"`
	BodyHTML       *string   `dynamodbav:"body_html,omitempty" json:"body_html" db:"body_html"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at" db:"created_at"`
	ResendEmailID  *string   `dynamodbav:"resend_email_id,omitempty" json:"resend_email_id" db:"resend_email_id"`
}

// RateLimit holds the last accepted submission for a client. LastSentAt is kept as
// stored so that a corrupt value can be detected rather than failing to load.
type RateLimit struct {
	Key        string `dynamodbav:"key" json:"key" db:"key"`
	LastSentAt string `dynamodbav:"last_sent_at" json:"last_sent_at" db:"last_sent_at"`
}

// TimeFormat is the layout used for every persisted timestamp
const TimeFormat = time.RFC3339Nano

// FormatTime renders t in the persisted timestamp layout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a persisted timestamp
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// IsLimited reports whether now falls inside window of the recorded submission.
// An unparsable timestamp is never limited.
func (rl RateLimit) IsLimited(window time.Duration, now time.Time) bool {
	last, err := ParseTime(rl.LastSentAt)
	if err != nil {
		return false
	}
	return now.Sub(last) < window
}

// Expired reports whether the record was last sent before cutoff. Unreadable records are expired.
func (rl RateLimit) Expired(cutoff time.Time) bool {
	last, err := ParseTime(rl.LastSentAt)
	if err != nil {
		return true
	}
	return last.Before(cutoff)
}

// SubjectFor derives a conversation subject from the submitter's name
func SubjectFor(name string) string {
	return fmt.Sprintf("New contact from %s", name)
}

// NewConversation returns an open conversation created at now
func NewConversation(id, token, name, email string, now time.Time) Conversation {
	now = now.UTC()
	return Conversation{
		ID:             id,
		Token:          token,
		FromName:       name,
		FromEmail:      email,
		Subject:        SubjectFor(name),
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         StatusOpen,
	}
}

// NewInboundMessage returns the first message of c, addressed to the operator
func NewInboundMessage(id string, c Conversation, to, body string) Message {
	return Message{
		ID:             id,
		ConversationID: c.ID,
		Direction:      DirectionInbound,
		FromEmail:      c.FromEmail,
		ToEmail:        to,
		Subject:        c.Subject,
		BodyText:       body,
		CreatedAt:      c.CreatedAt,
	}
}
