package contact

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/haydenwoodhead/contact.kiwi/metrics"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// version number - this is overridden at build time to inject the commit hash
var version = "dev"

// Defaults used when configuration is missing or invalid
const (
	DefaultMinElapsedMs     = 3000
	DefaultRateLimitMinutes = 5
	serviceName             = "contact-kiwi"
)

// Server bundles several data types together for dependency injection into http handlers
type Server struct {
	db       Database
	pipeline *Pipeline
	Router   *mux.Router

	// background notification deliveries, waited on by Stop
	deliveries sync.WaitGroup

	cfg Config
}

//Config contains key configuration parameters to be passed to New()
type Config struct {
	AllowedOrigins  []string
	MinElapsed      time.Duration
	RateLimitWindow time.Duration

	// ContactTo receives the notification for every submission
	ContactTo string

	// ReplyFrom is the verified sender address notifications come from
	ReplyFrom string

	// RestoreRealIP rewrites RemoteAddr from the proxy headers before routing
	RestoreRealIP bool

	Developing  bool
	UsingLambda bool
}

func (c Config) withDefaults() Config {
	if c.MinElapsed <= 0 {
		c.MinElapsed = DefaultMinElapsedMs * time.Millisecond
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = DefaultRateLimitMinutes * time.Minute
	}
	return c
}

// ParsePositiveInt parses s as an integer greater than zero and returns def otherwise
func ParsePositiveInt(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// New returns a contact server with the given settings
func New(cfg Config, db Database, v Verifier, d Dispatcher, tg TokenGenerator) (*Server, error) {
	cfg = cfg.withDefaults()

	s := Server{
		cfg:      cfg,
		db:       db,
		pipeline: NewPipeline(cfg, db, v, d, tg),
	}

	err := s.db.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start database: %w", err)
	}

	s.Router = mux.NewRouter()
	s.Router.StrictSlash(true) // means router will match both "/path" and "/path/"

	s.Router.Handle("/api/contact",
		alice.New(
			JSONContentType,
			SetVersionHeader,
		).ThenFunc(s.Contact),
	).Methods(http.MethodPost)

	s.Router.Handle("/api/inbound/resend",
		alice.New(
			JSONContentType,
			SetVersionHeader,
		).ThenFunc(s.InboundResend),
	).Methods(http.MethodPost)

	s.Router.Handle("/api/health", alice.New(JSONContentType).ThenFunc(s.Health)).Methods(http.MethodGet)

	s.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.Router.HandleFunc("/ping", s.Ping)

	notFound := alice.New(JSONContentType).ThenFunc(NotFound)
	s.Router.NotFoundHandler = notFound
	s.Router.MethodNotAllowedHandler = notFound

	return &s, nil
}

// Handler returns the router wrapped in the middleware applied to every response
func (s *Server) Handler() http.Handler {
	c := alice.New(s.CORS)
	if s.cfg.RestoreRealIP {
		c = alice.New(RestoreRealIP, s.CORS)
	}
	return c.Then(s.Router)
}

// Stop waits for outstanding notifications to finish
func (s *Server) Stop() {
	s.deliveries.Wait()
}

// PurgeRateLimits deletes rate limit records too old to limit anyone
func (s *Server) PurgeRateLimits(ctx context.Context) (int, error) {
	return s.db.DeleteRateLimitsBefore(ctx, time.Now().Add(-s.cfg.RateLimitWindow))
}

// Contact accepts a contact form submission
func (s *Server) Contact(w http.ResponseWriter, r *http.Request) {
	o, err := s.pipeline.Submit(r)
	if err != nil {
		log.WithField("ip", ClientIP(r)).WithError(err).Error("Contact: failed to record submission")
		metrics.Submissions.WithLabelValues(string(CodeInternal)).Inc()
		returnJSONError(w, r, CodeInternal)
		return
	}

	metrics.Submissions.WithLabelValues(o.metricLabel()).Inc()

	if o.Kind == AcceptedSilently {
		log.WithFields(log.Fields{"ip": ClientIP(r), "reason": o.Reason}).Info("Contact: dropped suspected automated submission")
	}

	if o.Kind == Accepted {
		s.deliver(r.Context(), o)
	}

	returnJSON(w, r, o.Status(), o.Response())
}

// deliver sends the notification for an accepted submission. Lambda freezes once the
// response is returned so there we wait for the notification before responding.
func (s *Server) deliver(ctx context.Context, o Outcome) {
	ctx = context.WithoutCancel(ctx)

	if s.cfg.UsingLambda {
		s.pipeline.Notify(ctx, o.Conversation, o.Message)
		return
	}

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		s.pipeline.Notify(ctx, o.Conversation, o.Message)
	}()
}

// InboundResend will receive inbound replies from the mail provider
func (s *Server) InboundResend(w http.ResponseWriter, r *http.Request) {
	// TODO verify the svix signature and thread the reply using the conversation token
	returnJSON(w, r, http.StatusNotImplemented, Response{OK: false, Message: CodeNotImplemented.Message()})
}

// Health reports that the service is up
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, r, http.StatusOK, Response{OK: true, Service: serviceName})
}

// Ping returns PONG when called
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	_, err := w.Write([]byte("PONG"))
	if err != nil {
		log.WithError(err).Error("Ping: failed to write out response")
	}
}

// NotFound returns a json 404
func NotFound(w http.ResponseWriter, r *http.Request) {
	returnJSONError(w, r, CodeNotFound)
}
