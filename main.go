package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcontext "github.com/gorilla/context"
	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/token"
	"github.com/haydenwoodhead/gateway"
	log "github.com/sirupsen/logrus"
)

var runPurge bool

func init() {
	flag.BoolVar(&runPurge, "purge-rate-limits", false, "when true will not run the server only purge expired rate limits")
	flag.Parse()
}

func main() {
	loadDotEnv()
	configureLogging()

	st := mustParseSettings()

	s, err := contact.New(st.cfg, st.db, st.verifier, st.dispatcher, token.NewGenerator())
	if err != nil {
		log.Fatalf("Failed to setup new contact server: %v", err)
	}

	// if we are just purging then do so and return. Otherwise purge hourly in the background
	if runPurge {
		runPurgeFunc(s)
		return
	}

	// wrap in ClearHandler as per docs to prevent leaking memory
	h := gcontext.ClearHandler(s.Handler())

	if st.cfg.UsingLambda {
		go runPurgeFunc(s)
		log.Fatal(gateway.ListenAndServe("", h))
	}

	go func(s *contact.Server) {
		for {
			time.Sleep(1 * time.Hour)
			runPurgeFunc(s)
		}
	}(s)

	srv := &http.Server{Addr: st.listenAddr, Handler: h}
	idle := make(chan struct{})

	go func() {
		defer close(idle)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to shut down cleanly")
		}
	}()

	log.WithField("addr", st.listenAddr).Info("Listening")

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	// let in flight requests and then notifications finish before exiting
	<-idle
	s.Stop()
}

func runPurgeFunc(s *contact.Server) {
	count, err := s.PurgeRateLimits(context.Background())
	if err != nil {
		log.WithError(err).Error("Failed to purge rate limits")
		return
	}

	log.WithField("count", count).Info("Rate limit purge finished")
}
