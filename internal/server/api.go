package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/alanmeadows/chetter/internal/journal"
	"github.com/alanmeadows/chetter/internal/metrics"
	"github.com/alanmeadows/chetter/internal/webhook"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	PendingTasks int    `json:"pending_tasks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		PendingTasks: s.tracker.Pending(),
	})
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "delivery journal disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	deliveries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if deliveries == nil {
		deliveries = []journal.Delivery{}
	}
	writeJSON(w, http.StatusOK, deliveries)
}

// handleEvents receives one GitHub webhook delivery.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	eventType := gh.WebHookType(r)
	deliveryID := gh.DeliveryID(r)
	log := slog.With("event", eventType, "delivery", deliveryID)

	payload, err := s.readPayload(r)
	if err != nil {
		log.Error("failed to verify webhook", "error", err)
		metrics.RecordDelivery(eventType, "forbidden")
		http.Error(w, fmt.Sprintf("failed to verify webhook: %v", err), http.StatusForbidden)
		return
	}

	if eventType == "" {
		log.Error("missing X-GitHub-Event header")
		metrics.RecordDelivery("", string(webhook.OutcomeInvalid))
		http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
		return
	}

	if s.journal != nil {
		handled, err := s.journal.Handled(ctx, deliveryID)
		if err != nil {
			log.Warn("journal lookup failed", "error", err)
		} else if handled {
			log.Info("delivery already handled")
			metrics.RecordDelivery(eventType, "duplicate")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "duplicate delivery\n")
			return
		}
	}

	ev, err := webhook.Parse(eventType, deliveryID, payload)
	switch {
	case errors.Is(err, webhook.ErrUnsupportedEvent):
		log.Debug("ignoring unsupported event")
		metrics.RecordDelivery(eventType, string(webhook.OutcomeIgnored))
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		log.Error("failed to parse event", "error", err)
		s.record(ctx, journal.Delivery{ID: deliveryID, Event: eventType, Outcome: string(webhook.OutcomeInvalid), Error: err.Error()})
		metrics.RecordDelivery(eventType, string(webhook.OutcomeInvalid))
		http.Error(w, fmt.Sprintf("failed to parse event: %v", err), http.StatusBadRequest)
		return
	}

	outcome, err := s.dispatcher.Dispatch(ctx, ev)
	// A scheduled close was journaled before it started and may already
	// have recorded its result.
	if outcome != webhook.OutcomeScheduled {
		s.record(ctx, delivery(ev, outcome, err))
	}
	metrics.RecordDelivery(eventType, string(outcome))

	if err != nil {
		s.sendNotification(ctx, EventOperationFailed, ev, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, string(outcome)+"\n")
}

// readPayload reads the body, verifying its signature when a secret is set.
func (s *Server) readPayload(r *http.Request) ([]byte, error) {
	if len(s.secret) == 0 {
		return io.ReadAll(r.Body)
	}
	return gh.ValidatePayload(r, s.secret)
}

// closeScheduled journals a close before it is handed to the tracker.
func (s *Server) closeScheduled(ev *webhook.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.record(ctx, delivery(ev, webhook.OutcomeScheduled, nil))
}

// closeDone records the result of a scheduled close.
func (s *Server) closeDone(ev *webhook.Event, err error) {
	// The request context is gone by now.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := webhook.OutcomeOK
	if err != nil {
		outcome = webhook.OutcomeFailed
		s.sendNotification(ctx, EventCloseFailed, ev, err)
	}
	s.record(ctx, delivery(ev, outcome, err))
}

func (s *Server) sendNotification(ctx context.Context, event NotificationEvent, ev *webhook.Event, err error) {
	p := NotificationPayload{
		Event:      event,
		Repository: ev.Repository(),
		PR:         ev.PR,
		Operation:  webhook.Operation(ev),
		DeliveryID: ev.DeliveryID,
		URL:        pullRequestURL(s.cfg.GitHub.BaseURL, ev.Repository(), ev.PR),
		Error:      err.Error(),
	}
	if nerr := s.notify(ctx, p); nerr != nil {
		slog.Warn("failed to send notification", "event", string(event), "error", nerr)
	}
}

func (s *Server) record(ctx context.Context, d journal.Delivery) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, d); err != nil {
		slog.Warn("failed to record delivery", "delivery", d.ID, "error", err)
	}
}

func delivery(ev *webhook.Event, outcome webhook.Outcome, err error) journal.Delivery {
	d := journal.Delivery{
		ID:         ev.DeliveryID,
		Event:      ev.Kind,
		Action:     ev.Action,
		Repository: ev.Repository(),
		PR:         ev.PR,
		Outcome:    string(outcome),
	}
	if ev.Kind == webhook.KindPullRequestReview {
		d.Action = ev.ReviewState
	}
	if err != nil {
		d.Error = err.Error()
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
