package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
)

// RefError records a single failed ref mutation.
type RefError struct {
	Op  string
	Ref string
	Err error
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *RefError) Unwrap() error {
	return e.Err
}

// results collects the outcome of every mutation in one lifecycle operation
// so that a failure never stops the remaining mutations.
type results struct {
	attempted int
	errs      []error
}

func (r *results) add(op, ref, sha string, err error) {
	r.attempted++
	if err == nil {
		slog.Info("ref "+op+"d", "ref", ref, "sha", short(sha))
		return
	}
	slog.Error("failed to "+op+" ref", "ref", ref, "sha", short(sha), "error", err)
	r.errs = append(r.errs, &RefError{Op: op, Ref: ref, Err: err})
}

// err returns nil if every mutation succeeded, else all failures joined.
func (r *results) err() error {
	return errors.Join(r.errs...)
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
