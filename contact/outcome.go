package contact

import "net/http"

// Code identifies why a submission was rejected
type Code string

// Rejection codes returned to clients
const (
	CodeInvalidContentType    Code = "invalid_content_type"
	CodeInvalidJSON           Code = "invalid_json"
	CodeMissingFields         Code = "missing_fields"
	CodeMissingTurnstileToken Code = "missing_turnstile_token"
	CodeTurnstileFailed       Code = "turnstile_failed"
	CodeRateLimited           Code = "rate_limited"
	CodeInternal              Code = "internal_error"
	CodeNotFound              Code = "not_found"
	CodeNotImplemented        Code = "not_implemented"
)

// Status returns the http status a code is reported with
func (c Code) Status() int {
	switch c {
	case CodeInvalidContentType:
		return http.StatusUnsupportedMediaType
	case CodeInvalidJSON, CodeMissingFields, CodeMissingTurnstileToken:
		return http.StatusBadRequest
	case CodeTurnstileFailed:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Message returns a human readable description of the code
func (c Code) Message() string {
	switch c {
	case CodeInvalidContentType:
		return "Content-Type must be application/json"
	case CodeInvalidJSON:
		return "Request body is not valid JSON"
	case CodeMissingFields:
		return "name, email and message are required"
	case CodeMissingTurnstileToken:
		return "Verification token is missing"
	case CodeTurnstileFailed:
		return "Verification failed"
	case CodeRateLimited:
		return "Too many submissions. Please try again later"
	case CodeNotFound:
		return "Not found"
	case CodeNotImplemented:
		return "Not implemented yet"
	default:
		return "Something went wrong"
	}
}

// Kind is the shape of a pipeline outcome
type Kind int

const (
	// Accepted submissions were recorded
	Accepted Kind = iota
	// AcceptedSilently submissions look accepted to the client but were dropped
	AcceptedSilently
	// Rejected submissions are reported to the client with a code
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case AcceptedSilently:
		return "accepted_silently"
	default:
		return "rejected"
	}
}

// Reasons a submission is silently dropped
const (
	ReasonHoneypot = "honeypot"
	ReasonTiming   = "timing"
)

// Outcome is the result of running a submission through the pipeline
type Outcome struct {
	Kind Kind
	// Code is set when Kind is Rejected
	Code Code
	// Reason is set when Kind is AcceptedSilently
	Reason string
	// Conversation and Message are set when Kind is Accepted
	Conversation Conversation
	Message      Message
}

func accepted(c Conversation, m Message) Outcome {
	return Outcome{Kind: Accepted, Conversation: c, Message: m}
}

func silently(reason string) Outcome {
	return Outcome{Kind: AcceptedSilently, Reason: reason}
}

func rejected(code Code) Outcome {
	return Outcome{Kind: Rejected, Code: code}
}

// Status returns the http status reported for the outcome
func (o Outcome) Status() int {
	if o.Kind == Rejected {
		return o.Code.Status()
	}
	return http.StatusOK
}

// Response returns the envelope reported for the outcome. Silent and real acceptance
// produce the same envelope.
func (o Outcome) Response() Response {
	if o.Kind == Rejected {
		return errorResponse(o.Code)
	}
	return Response{OK: true}
}

func (o Outcome) metricLabel() string {
	switch o.Kind {
	case Accepted:
		return "accepted"
	case AcceptedSilently:
		return "silent_" + o.Reason
	default:
		return string(o.Code)
	}
}
