// Package batch deletes large sets of refs against a backend, either as
// chunked bulk requests or as one request per ref with capped fan-out.
//
// Every ref passed in gets exactly one attempt. A failure on one ref or chunk
// never prevents attempts on the rest; all failures are joined into the
// returned error.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanmeadows/chetter/internal/provider"
)

// DefaultChunkSize is the largest number of refs sent in one bulk request.
// GitHub's GraphQL endpoint cuts off long mutations (60s wall, 90s CPU).
const DefaultChunkSize = 100

// DefaultConcurrency caps per-ref deletions in flight.
const DefaultConcurrency = 16

// Strategy names accepted by ForName.
const (
	StrategyBulk       = "bulk"
	StrategyConcurrent = "concurrent"
)

// Strategy deletes a set of refs through a RepositoryController.
type Strategy interface {
	Delete(ctx context.Context, c provider.RepositoryController, refs []provider.Ref) error
	Name() string
}

// ForName returns the strategy registered under name. limit only applies to
// the concurrent strategy; values <= 0 fall back to DefaultConcurrency.
func ForName(name string, limit int) (Strategy, error) {
	switch name {
	case "", StrategyBulk:
		return Bulk{}, nil
	case StrategyConcurrent:
		return Concurrent{Limit: limit}, nil
	}
	return nil, fmt.Errorf("unknown delete strategy %q", name)
}

// Bulk hands the whole set to the controller's DeleteRefs, which is expected
// to split it with InChunks.
type Bulk struct{}

// Name returns "bulk".
func (Bulk) Name() string { return StrategyBulk }

// Delete removes refs with the controller's bulk API.
func (Bulk) Delete(ctx context.Context, c provider.RepositoryController, refs []provider.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	return c.DeleteRefs(ctx, refs)
}

// Concurrent issues one DeleteRef per ref with at most Limit in flight.
// Deletions are joined without early cancellation.
type Concurrent struct {
	Limit int
}

// Name returns "concurrent".
func (Concurrent) Name() string { return StrategyConcurrent }

// Delete removes refs one call at a time, concurrently.
func (s Concurrent) Delete(ctx context.Context, c provider.RepositoryController, refs []provider.Ref) error {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	// errgroup.Group without a context: one failure must not cancel siblings.
	var g errgroup.Group
	g.SetLimit(limit)
	for _, r := range refs {
		g.Go(func() error {
			if err := c.DeleteRef(ctx, r.Name); err != nil {
				slog.Error("failed to delete ref", "ref", r.FullName(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("deleting %s: %w", r.Name, err))
				mu.Unlock()
				return nil
			}
			slog.Debug("deleted ref", "ref", r.FullName())
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// InChunks calls fn once per consecutive chunk of at most size refs. All chunks
// are attempted; errors are joined.
func InChunks(ctx context.Context, refs []provider.Ref, size int, fn func(ctx context.Context, chunk []provider.Ref) error) error {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var errs []error
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))
		chunk := refs[start:end]
		slog.Info("deleting chunk of refs", "count", len(chunk), "offset", start)
		if err := fn(ctx, chunk); err != nil {
			errs = append(errs, fmt.Errorf("chunk %d-%d: %w", start, end-1, err))
		}
	}
	return errors.Join(errs...)
}
