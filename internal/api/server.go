// Package api exposes BolKhata over HTTP: an utterance endpoint that drives
// the conversation engine, read endpoints for committed records and derived
// patterns, the Twilio inbound webhook, and a health check.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BolKhata/BolKhata/internal/messaging"
	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/patterns"
	"github.com/BolKhata/BolKhata/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// DefaultRequestTimeout bounds one utterance request end to end.
const DefaultRequestTimeout = 30 * time.Second

// DefaultPatternWindow is how many recent transactions feed the on-demand
// pattern endpoint.
const DefaultPatternWindow = 50

// Conversation is the engine surface the server drives. Satisfied by
// engine.Coordinator.
type Conversation interface {
	HandleUtterance(ctx context.Context, userID, text string) (*models.EngineResult, error)
}

// Opts holds server configuration.
type Opts struct {
	Addr          string
	Twilio        *messaging.TwilioService
	PatternWindow int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioService mounts the Twilio inbound webhook.
func WithTwilioService(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// WithPatternWindow overrides the pattern endpoint's transaction window.
func WithPatternWindow(n int) Option {
	return func(o *Opts) { o.PatternWindow = n }
}

// Server is the BolKhata HTTP surface.
type Server struct {
	convo         Conversation
	st            store.Store
	detector      *patterns.Detector
	twilio        *messaging.TwilioService
	patternWindow int
	httpServer    *http.Server
}

// NewServer wires the HTTP surface over the engine and store. detector may be
// nil, in which case the pattern endpoint returns an empty list.
func NewServer(convo Conversation, st store.Store, detector *patterns.Detector, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, PatternWindow: DefaultPatternWindow}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		convo:         convo,
		st:            st,
		detector:      detector,
		twilio:        cfg.Twilio,
		patternWindow: cfg.PatternWindow,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: DefaultRequestTimeout + 5*time.Second,
	}
	return s
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/utterance", s.utteranceHandler)
	mux.HandleFunc("/api/v1/transactions", s.transactionsHandler)
	mux.HandleFunc("/api/v1/reminders", s.remindersHandler)
	mux.HandleFunc("/api/v1/patterns", s.patternsHandler)
	mux.HandleFunc("/api/v1/providers", s.providersHandler)
	if s.twilio != nil {
		mux.HandleFunc("/api/v1/twilio/incoming", s.twilio.WebhookHandler)
	}
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("Server.Run: listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
