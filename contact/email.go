package contact

import "context"

// Email is an outbound notification
type Email struct {
	From    string
	To      []string
	Subject string
	Text    string
	ReplyTo string
}

// Dispatcher sends notification emails. It never fails the caller: ok is false when
// the provider could not be reached or did not return a message id.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Email) (id string, ok bool)
}

// Verifier checks a human verification token against the client's address
type Verifier interface {
	Verify(ctx context.Context, token string, remoteIP string) bool
}

// TokenGenerator produces reply routing tokens
type TokenGenerator interface {
	Generate() (string, error)
}
