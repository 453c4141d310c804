package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/metrics"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

var _ contact.Database = &SQLDatabase{}

// SQLDatabase implements the database interface for sqldb
type SQLDatabase struct {
	*sqlx.DB
}

// GetDatabase returns a new db or panics
func GetDatabase(dbType string, dbURL string) *SQLDatabase {
	return &SQLDatabase{sqlx.MustOpen(dbType, dbURL)}
}

// Start creates the tables and loads the open conversation gauge
func (s *SQLDatabase) Start() error {
	err := s.CreateTables()
	if err != nil {
		return err
	}

	var open int
	err = s.Get(&open, "SELECT COUNT(*) FROM conversations WHERE status = $1", contact.StatusOpen)
	if err != nil {
		log.WithError(err).Warn("SQLDatabase.Start: failed to count open conversations")
		return nil
	}

	metrics.OpenConversations.Set(float64(open))

	return nil
}

// CreateTables creates the database tables. Timestamps are stored as RFC3339 text.
func (s *SQLDatabase) CreateTables() error {
	_, err := s.Exec(`create table if not exists conversations (
		id text not null,
		token text not null unique,
		from_name text not null,
		from_email text not null,
		subject text not null,
		created_at text not null,
		last_activity_at text not null,
		status text not null,
		primary key (id)
	);

	create table if not exists messages (
		id text not null,
		conversation_id text not null references conversations(id) on delete cascade,
		direction text not null,
		from_email text not null,
		to_email text not null,
		subject text not null,
		body_text text not null,
		body_html text,
		created_at text not null,
		resend_email_id text,
		primary key (id)
	);

	create index if not exists messages_conversation_id_idx on messages (conversation_id);

	create table if not exists rate_limits (
		"key" text not null,
		last_sent_at text not null,
		primary key ("key")
	);`)
	if err != nil {
		return fmt.Errorf("SQLDatabase.CreateTables failed with err=%w", err)
	}

	return nil
}

type conversationRow struct {
	ID             string `db:"id"`
	Token          string `db:"token"`
	FromName       string `db:"from_name"`
	FromEmail      string `db:"from_email"`
	Subject        string `db:"subject"`
	CreatedAt      string `db:"created_at"`
	LastActivityAt string `db:"last_activity_at"`
	Status         string `db:"status"`
}

func (r conversationRow) conversation() (contact.Conversation, error) {
	created, err := contact.ParseTime(r.CreatedAt)
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("bad created_at on conversation %v: %w", r.ID, err)
	}

	active, err := contact.ParseTime(r.LastActivityAt)
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("bad last_activity_at on conversation %v: %w", r.ID, err)
	}

	return contact.Conversation{
		ID:             r.ID,
		Token:          r.Token,
		FromName:       r.FromName,
		FromEmail:      r.FromEmail,
		Subject:        r.Subject,
		CreatedAt:      created,
		LastActivityAt: active,
		Status:         r.Status,
	}, nil
}

type messageRow struct {
	ID             string  `db:"id"`
	ConversationID string  `db:"conversation_id"`
	Direction      string  `db:"direction"`
	FromEmail      string  `db:"from_email"`
	ToEmail        string  `db:"to_email"`
	Subject        string  `db:"subject"`
	BodyText       string  `db:"body_text"`
	BodyHTML       *string `db:"body_html"`
	CreatedAt      string  `db:"created_at"`
	ResendEmailID  *string `db:"resend_email_id"`
}

func (r messageRow) message() (contact.Message, error) {
	created, err := contact.ParseTime(r.CreatedAt)
	if err != nil {
		return contact.Message{}, fmt.Errorf("bad created_at on message %v: %w", r.ID, err)
	}

	return contact.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Direction:      r.Direction,
		FromEmail:      r.FromEmail,
		ToEmail:        r.ToEmail,
		Subject:        r.Subject,
		BodyText:       r.BodyText,
		BodyHTML:       r.BodyHTML,
		CreatedAt:      created,
		ResendEmailID:  r.ResendEmailID,
	}, nil
}

// IsRateLimited reports whether key submitted less than window before now
func (s *SQLDatabase) IsRateLimited(ctx context.Context, key string, window time.Duration, now time.Time) (bool, error) {
	rl, err := s.GetRateLimit(ctx, key)
	if err == contact.ErrRateLimitDoesntExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return rl.IsLimited(window, now), nil
}

// UpsertRateLimit records now as the last submission for key
func (s *SQLDatabase) UpsertRateLimit(ctx context.Context, key string, now time.Time) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO rate_limits ("key", last_sent_at) VALUES ($1, $2)
		ON CONFLICT ("key") DO UPDATE SET last_sent_at = excluded.last_sent_at`,
		key, contact.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("SQLDatabase.UpsertRateLimit failed with err=%w", err)
	}
	return nil
}

// GetRateLimit returns the record for key
func (s *SQLDatabase) GetRateLimit(ctx context.Context, key string) (contact.RateLimit, error) {
	var rl contact.RateLimit
	err := s.GetContext(ctx, &rl, `SELECT "key", last_sent_at FROM rate_limits WHERE "key" = $1`, key)
	if err == sql.ErrNoRows {
		return contact.RateLimit{}, contact.ErrRateLimitDoesntExist
	}
	if err != nil {
		return contact.RateLimit{}, fmt.Errorf("SQLDatabase.GetRateLimit failed with err=%w", err)
	}
	return rl, nil
}

// DeleteRateLimitsBefore deletes records which expired before cutoff. Timestamps are compared
// after parsing since RFC3339Nano text doesn't sort lexically.
func (s *SQLDatabase) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var all []contact.RateLimit
	err := s.SelectContext(ctx, &all, `SELECT "key", last_sent_at FROM rate_limits`)
	if err != nil {
		return -1, fmt.Errorf("SQLDatabase.DeleteRateLimitsBefore failed to list with err=%w", err)
	}

	var count int
	for _, rl := range all {
		if !rl.Expired(cutoff) {
			continue
		}

		deleted, err := s.deleteRateLimitIfUnchanged(ctx, rl)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}

	return count, nil
}

// deleteRateLimitIfUnchanged deletes the record only while it still holds the listed timestamp,
// a submission recorded since the listing keeps its record
func (s *SQLDatabase) deleteRateLimitIfUnchanged(ctx context.Context, rl contact.RateLimit) (bool, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM rate_limits WHERE "key" = $1 AND last_sent_at = $2`, rl.Key, rl.LastSentAt)
	if err != nil {
		return false, fmt.Errorf("SQLDatabase.DeleteRateLimitsBefore failed to delete %v with err=%w", rl.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SQLDatabase.DeleteRateLimitsBefore failed to count deleted rows with err=%w", err)
	}

	return n > 0, nil
}

// CreateConversationWithMessage saves a conversation and its first message in one transaction
func (s *SQLDatabase) CreateConversationWithMessage(ctx context.Context, c contact.Conversation, m contact.Message) error {
	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SQLDatabase.CreateConversationWithMessage failed to begin with err=%w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO conversations (id, token, from_name, from_email, subject, created_at, last_activity_at, status)
		VALUES (:id, :token, :from_name, :from_email, :subject, :created_at, :last_activity_at, :status)`,
		map[string]interface{}{
			"id":               c.ID,
			"token":            c.Token,
			"from_name":        c.FromName,
			"from_email":       c.FromEmail,
			"subject":          c.Subject,
			"created_at":       contact.FormatTime(c.CreatedAt),
			"last_activity_at": contact.FormatTime(c.LastActivityAt),
			"status":           c.Status,
		},
	)
	if err != nil {
		return fmt.Errorf("SQLDatabase.CreateConversationWithMessage failed to insert conversation with err=%w", err)
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, from_email, to_email, subject, body_text, body_html, created_at, resend_email_id)
		VALUES (:id, :conversation_id, :direction, :from_email, :to_email, :subject, :body_text, :body_html, :created_at, :resend_email_id)`,
		map[string]interface{}{
			"id":              m.ID,
			"conversation_id": m.ConversationID,
			"direction":       m.Direction,
			"from_email":      m.FromEmail,
			"to_email":        m.ToEmail,
			"subject":         m.Subject,
			"body_text":       m.BodyText,
			"body_html":       m.BodyHTML,
			"created_at":      contact.FormatTime(m.CreatedAt),
			"resend_email_id": m.ResendEmailID,
		},
	)
	if err != nil {
		return fmt.Errorf("SQLDatabase.CreateConversationWithMessage failed to insert message with err=%w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("SQLDatabase.CreateConversationWithMessage failed to commit with err=%w", err)
	}

	if c.Status == contact.StatusOpen {
		metrics.OpenConversations.Inc()
	}

	return nil
}

// AttachProviderMessageID sets the provider id on the latest inbound message of the conversation
func (s *SQLDatabase) AttachProviderMessageID(ctx context.Context, conversationID string, providerID string) error {
	var rows []messageRow
	err := s.SelectContext(ctx, &rows,
		"SELECT id, created_at FROM messages WHERE conversation_id = $1 AND direction = $2",
		conversationID, contact.DirectionInbound,
	)
	if err != nil {
		return fmt.Errorf("SQLDatabase.AttachProviderMessageID failed to find messages with err=%w", err)
	}

	var latestID string
	var latest time.Time
	for _, r := range rows {
		t, err := contact.ParseTime(r.CreatedAt)
		if err != nil {
			continue
		}
		if latestID == "" || !t.Before(latest) {
			latestID, latest = r.ID, t
		}
	}

	if latestID == "" {
		return contact.ErrConversationDoesntExist
	}

	_, err = s.ExecContext(ctx, "UPDATE messages SET resend_email_id = $1 WHERE id = $2", providerID, latestID)
	if err != nil {
		return fmt.Errorf("SQLDatabase.AttachProviderMessageID failed with err=%w", err)
	}

	return nil
}

// GetConversationByID gets a conversation by id
func (s *SQLDatabase) GetConversationByID(ctx context.Context, id string) (contact.Conversation, error) {
	var r conversationRow
	err := s.GetContext(ctx, &r, "SELECT id, token, from_name, from_email, subject, created_at, last_activity_at, status FROM conversations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return contact.Conversation{}, contact.ErrConversationDoesntExist
	}
	if err != nil {
		return contact.Conversation{}, fmt.Errorf("SQLDatabase.GetConversationByID failed with err=%w", err)
	}

	return r.conversation()
}

// GetMessagesByConversationID gets all messages for a conversation, oldest first
func (s *SQLDatabase) GetMessagesByConversationID(ctx context.Context, id string) ([]contact.Message, error) {
	var rows []messageRow
	err := s.SelectContext(ctx, &rows, "SELECT id, conversation_id, direction, from_email, to_email, subject, body_text, body_html, created_at, resend_email_id FROM messages WHERE conversation_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("SQLDatabase.GetMessagesByConversationID failed with err=%w", err)
	}

	msgs := make([]contact.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	return msgs, nil
}
