// Package server runs the webhook receiver and manages the chetter daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/config"
	"github.com/alanmeadows/chetter/internal/journal"
	"github.com/alanmeadows/chetter/internal/metrics"
	ghprovider "github.com/alanmeadows/chetter/internal/provider/github"
	"github.com/alanmeadows/chetter/internal/tasks"
	"github.com/alanmeadows/chetter/internal/webhook"
)

// maxPayloadBytes is GitHub's cap on webhook payloads.
const maxPayloadBytes = 25 << 20

// Server handles webhook deliveries and the operational endpoints.
type Server struct {
	cfg        *config.Config
	dispatcher *webhook.Dispatcher
	tracker    *tasks.Tracker
	journal    *journal.Journal
	secret     []byte
	started    time.Time

	// notify is swapped in tests.
	notify func(ctx context.Context, payload NotificationPayload) error
}

// New wires a Server. j may be nil, in which case deliveries are not journaled
// and redeliveries are not detected.
func New(cfg *config.Config, source webhook.ControllerSource, tracker *tasks.Tracker, j *journal.Journal) (*Server, error) {
	strategy, err := batch.ForName(cfg.Refs.DeleteStrategy, cfg.Refs.MaxConcurrency)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		journal: j,
		secret:  []byte(cfg.GitHub.WebhookSecret),
		started: time.Now(),
	}
	s.notify = func(ctx context.Context, p NotificationPayload) error {
		return Notify(ctx, &s.cfg.Notifications, p)
	}
	s.dispatcher = &webhook.Dispatcher{
		Source:           source,
		Scheduler:        tracker,
		Strategy:         strategy,
		CloseTimeout:     cfg.Refs.ParseCloseTimeout(),
		OnCloseScheduled: s.closeScheduled,
		OnCloseDone:      s.closeDone,
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /github/events", s.handleEvents)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /deliveries", s.handleDeliveries)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// NewSource builds the GitHub credential source described by cfg.
func NewSource(cfg *config.Config) (ghprovider.Source, error) {
	return ghprovider.NewSource(ghprovider.Options{
		AppID:          cfg.GitHub.AppID,
		PrivateKeyPath: config.ExpandHome(cfg.GitHub.PrivateKeyPath),
		Token:          cfg.GitHub.Token,
		BaseURL:        cfg.GitHub.BaseURL,
		Namespace:      cfg.Refs.Namespace,
	})
}

// RunServer starts the HTTP server and blocks until the context is cancelled,
// then drains background work for up to the configured shutdown timeout.
func RunServer(ctx context.Context, port int, cfg *config.Config) error {
	metrics.Register()

	source, err := NewSource(cfg)
	if err != nil {
		return err
	}
	if cfg.GitHub.WebhookSecret == "" {
		slog.Warn("no webhook secret configured; deliveries are not authenticated")
	}

	var j *journal.Journal
	if cfg.Server.JournalPath != "" {
		j, err = journal.Open(ctx, config.ExpandHome(cfg.Server.JournalPath))
		if err != nil {
			return err
		}
		defer j.Close()
	}

	tracker := tasks.New()

	s, err := New(cfg, source, tracker, j)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-stopped

	if err := tracker.Shutdown(cfg.Server.ParseShutdownTimeout()); err != nil {
		slog.Warn("background tasks did not finish", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
