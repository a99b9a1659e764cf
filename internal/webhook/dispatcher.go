package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/lifecycle"
	"github.com/alanmeadows/chetter/internal/metrics"
	"github.com/alanmeadows/chetter/internal/provider"
)

// DefaultCloseTimeout bounds a scheduled close.
const DefaultCloseTimeout = 10 * time.Minute

// Outcome is how a delivery was handled. The values are stored in the
// delivery journal.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeFailed    Outcome = "failed"
	OutcomeScheduled Outcome = "scheduled"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeInvalid   Outcome = "invalid"
)

// Lifecycle operation names used in logs and metrics.
const (
	OpOpen        = "open"
	OpSynchronize = "synchronize"
	OpBookmark    = "bookmark"
	OpClose       = "close"
)

// ControllerSource returns a controller authenticated for a repository.
type ControllerSource interface {
	Controller(ctx context.Context, installationID int64, owner, repo string) (provider.RepositoryController, error)
}

// Scheduler runs work in the background. *tasks.Tracker implements it.
type Scheduler interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// Dispatcher routes parsed events to lifecycle operations.
type Dispatcher struct {
	Source       ControllerSource
	Scheduler    Scheduler
	Strategy     batch.Strategy
	CloseTimeout time.Duration

	// OnCloseScheduled, if set, is called just before a close is handed to
	// the Scheduler. The close may finish before Dispatch returns, so anything
	// recorded about the scheduling must happen here.
	OnCloseScheduled func(ev *Event)
	// OnCloseDone, if set, is called when a scheduled close finishes.
	OnCloseDone func(ev *Event, err error)
}

// Operation returns the lifecycle operation an event maps to, or "" if the
// event is ignored.
func Operation(ev *Event) string {
	switch ev.Kind {
	case KindPullRequest:
		switch ev.Action {
		case "opened", "reopened":
			return OpOpen
		case "synchronize":
			return OpSynchronize
		case "closed":
			return OpClose
		}
	case KindPullRequestReview:
		switch ev.ReviewState {
		case StateApproved, StateChangesRequested:
			return OpBookmark
		}
	}
	return ""
}

// Dispatch runs the operation for ev. Open, synchronize and bookmark run
// synchronously; close is handed to the Scheduler and reported as
// OutcomeScheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (Outcome, error) {
	op := Operation(ev)
	log := slog.With("repo", ev.Repository(), "pr", ev.PR, "delivery", ev.DeliveryID)
	if op == "" {
		log.Debug("ignoring event", "event", ev.Kind, "action", ev.Action, "state", ev.ReviewState)
		return OutcomeIgnored, nil
	}
	log = log.With("operation", op)

	c, err := d.Source.Controller(ctx, ev.InstallationID, ev.Owner, ev.Repo)
	if err != nil {
		log.Error("failed to get repository controller", "error", err)
		return OutcomeFailed, fmt.Errorf("controller for %s: %w", ev.Repository(), err)
	}

	if op == OpClose {
		return d.scheduleClose(c, ev, log)
	}

	start := time.Now()
	switch op {
	case OpOpen:
		err = lifecycle.Open(ctx, c, ev.PR, ev.HeadSHA, ev.BaseSHA)
	case OpSynchronize:
		err = lifecycle.Synchronize(ctx, c, ev.PR, ev.HeadSHA, ev.BaseSHA)
	case OpBookmark:
		log = log.With("reviewer", ev.Reviewer)
		err = lifecycle.Bookmark(ctx, c, ev.PR, ev.Reviewer, ev.ReviewCommit, ev.BaseSHA)
	}
	metrics.RecordOperation(op, err, time.Since(start))

	if err != nil {
		log.Error("operation failed", "error", err)
		return OutcomeFailed, fmt.Errorf("%s %s#%d: %w", op, ev.Repository(), ev.PR, err)
	}
	log.Info("operation complete", "elapsed", time.Since(start))
	return OutcomeOK, nil
}

func (d *Dispatcher) scheduleClose(c provider.RepositoryController, ev *Event, log *slog.Logger) (Outcome, error) {
	strategy := d.Strategy
	if strategy == nil {
		strategy = batch.Bulk{}
	}
	timeout := d.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	name := fmt.Sprintf("close %s#%d", ev.Repository(), ev.PR)
	if d.OnCloseScheduled != nil {
		d.OnCloseScheduled(ev)
	}
	err := d.Scheduler.Go(name, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		err := lifecycle.Close(ctx, c, ev.PR, strategy)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("close exceeded %s: %w", timeout, err)
		}
		metrics.RecordOperation(OpClose, err, time.Since(start))

		if d.OnCloseDone != nil {
			d.OnCloseDone(ev, err)
		}
		return err
	})
	if err != nil {
		log.Error("failed to schedule close", "error", err)
		return OutcomeFailed, fmt.Errorf("scheduling %s: %w", name, err)
	}

	log.Info("close scheduled", "timeout", timeout, "strategy", strategy.Name())
	return OutcomeScheduled, nil
}
