package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/data/dynamodb"
	"github.com/haydenwoodhead/contact.kiwi/data/inmemory"
	"github.com/haydenwoodhead/contact.kiwi/data/postgresql"
	"github.com/haydenwoodhead/contact.kiwi/data/sqlite3"
	"github.com/haydenwoodhead/contact.kiwi/email/mailgunmail"
	"github.com/haydenwoodhead/contact.kiwi/email/resendmail"
	"github.com/haydenwoodhead/contact.kiwi/paramstore"
	"github.com/haydenwoodhead/contact.kiwi/turnstile"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const inMemory = "memory"
const postgreSQL = "postgres"
const sqlite = "sqlite3"
const dynamoDB = "dynamo"

const resendProvider = "resend"
const mailgunProvider = "mailgun"

const outboundTimeout = 10 * time.Second

type settings struct {
	cfg        contact.Config
	db         contact.Database
	verifier   contact.Verifier
	dispatcher contact.Dispatcher
	listenAddr string
}

// loadDotEnv reads a local .env file when developing
func loadDotEnv() {
	if !parseBoolVarWithDefault("DEVELOPING", false) {
		return
	}

	err := godotenv.Load()
	if err != nil {
		log.WithError(err).Warn("Config: failed to load .env file")
	}
}

func configureLogging() {
	if parseBoolVarWithDefault("LAMBDA", false) {
		log.SetFormatter(&log.JSONFormatter{})
	}

	lvl, err := log.ParseLevel(parseStringVarWithDefault("LOG_LEVEL", "info"))
	if err != nil {
		log.WithError(err).Warn("Config: unknown LOG_LEVEL, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func mustParseSettings() settings {
	provider := parseStringVarWithDefault("EMAIL_PROVIDER", resendProvider)
	secrets := mustLoadSecrets(provider)
	hc := &http.Client{Timeout: outboundTimeout}

	var dispatcher contact.Dispatcher

	switch provider {
	case resendProvider:
		dispatcher = resendmail.NewResendProvider(secrets.get("RESEND_API_KEY"), resendmail.WithHTTPClient(hc))
	case mailgunProvider:
		dispatcher = mailgunmail.NewMailgunProvider(mustParseStringVar("MG_DOMAIN"), secrets.get("MG_KEY"))
	default:
		log.Fatalf("Env var EMAIL_PROVIDER must be %v or %v, got %v", resendProvider, mailgunProvider, provider)
	}

	return settings{
		cfg: contact.Config{
			AllowedOrigins:  parseSliceVar("ALLOWED_ORIGINS"),
			MinElapsed:      time.Duration(contact.ParsePositiveInt(parseStringVar("MIN_ELAPSED_MS"), contact.DefaultMinElapsedMs)) * time.Millisecond,
			RateLimitWindow: time.Duration(contact.ParsePositiveInt(parseStringVar("RATE_LIMIT_MINUTES"), contact.DefaultRateLimitMinutes)) * time.Minute,
			ContactTo:       mustParseStringVar("CONTACT_TO"),
			ReplyFrom:       mustParseStringVar("ALLOWED_REPLY_FROM"),
			RestoreRealIP:   parseBoolVarWithDefault("RESTORE_REAL_IP", false),
			Developing:      parseBoolVarWithDefault("DEVELOPING", false),
			UsingLambda:     parseBoolVarWithDefault("LAMBDA", false),
		},
		db:         mustParseDatabase(),
		verifier:   turnstile.New(secrets.get("TURNSTILE_SECRET"), turnstile.WithHTTPClient(hc)),
		dispatcher: dispatcher,
		listenAddr: parseStringVarWithDefault("LISTEN_ADDR", ":8080"),
	}
}

func mustParseDatabase() contact.Database {
	dbType := parseStringVarWithDefault("DB_TYPE", inMemory)

	switch dbType {
	case inMemory:
		return inmemory.GetInMemoryDB()
	case postgreSQL:
		return postgresql.GetPostgreSQLDB(mustParseStringVar("DATABASE_URL"))
	case sqlite:
		return sqlite3.GetSQLite3DB(mustParseStringVar("DATABASE_URL"))
	case dynamoDB:
		return dynamodb.GetNewDynamoDB(mustParseStringVar("DYNAMO_TABLE"))
	}

	log.Fatalf("Env var DB_TYPE must be one of %v, %v, %v or %v, got %v", inMemory, postgreSQL, sqlite, dynamoDB, dbType)
	return nil
}

// secretSource returns secrets from parameter store when SSM_PREFIX is set, otherwise from env
type secretSource map[string]string

func (s secretSource) get(key string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return mustParseStringVar(key)
}

func mustLoadSecrets(provider string) secretSource {
	prefix := parseStringVar("SSM_PREFIX")
	if prefix == "" {
		return secretSource{}
	}

	names := []string{"TURNSTILE_SECRET"}
	switch provider {
	case resendProvider:
		names = append(names, "RESEND_API_KEY")
	case mailgunProvider:
		names = append(names, "MG_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), outboundTimeout)
	defer cancel()

	values, err := paramstore.NewFromEnv().GetUnder(ctx, prefix, names...)
	if err != nil {
		log.WithError(err).Fatal("Config: failed to load secrets from parameter store")
	}

	return secretSource(values)
}

func parseStringVar(key string) string {
	return os.Getenv(key)
}

func parseBoolVar(key string) (bool, error) {
	return strconv.ParseBool(parseStringVar(key))
}

func mustParseStringVar(key string) (v string) {
	v = strings.TrimSpace(parseStringVar(key))
	if v == "" {
		log.Fatalf("Env var %v cannot be empty", key)
	}

	return
}

// parseSliceVar splits a comma separated var, dropping empty entries
func parseSliceVar(key string) (v []string) {
	for _, s := range strings.Split(parseStringVar(key), ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			v = append(v, s)
		}
	}

	return
}

func parseBoolVarWithDefault(key string, def bool) bool {
	v, err := parseBoolVar(key)
	if err != nil {
		return def
	}
	return v
}

func parseStringVarWithDefault(key, def string) string {
	v := parseStringVar(key)
	if v == "" {
		return def
	}
	return v
}
