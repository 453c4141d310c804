package mailgunmail

import (
	"context"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"
)

var _ contact.Dispatcher = &MailgunMail{}

// sender is the part of mailgun.Mailgun we use
type sender interface {
	Send(m *mailgun.Message) (string, string, error)
}

// MailgunMail is a mailgun implementation of the Dispatcher interface
type MailgunMail struct {
	mg sender
}

// NewMailgunProvider creates a new Mailgun Dispatcher
func NewMailgunProvider(domain string, key string) *MailgunMail {
	return &MailgunMail{
		mg: mailgun.NewMailgun(domain, key, ""),
	}
}

// Dispatch implements Dispatcher Dispatch()
func (m *MailgunMail) Dispatch(ctx context.Context, e contact.Email) (string, bool) {
	msg := mailgun.NewMessage(e.From, e.Subject, e.Text, e.To...)
	if e.ReplyTo != "" {
		msg.AddHeader("Reply-To", e.ReplyTo)
	}

	_, id, err := m.mg.Send(msg)
	if err != nil {
		log.WithField("subject", e.Subject).WithError(errors.Wrap(err, "send")).Error("Mailgun.Dispatch: failed to send message")
		return "", false
	}

	if id == "" {
		log.WithField("subject", e.Subject).Error("Mailgun.Dispatch: mailgun returned no message id")
		return "", false
	}

	return id, true
}
