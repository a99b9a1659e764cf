package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// withLock acquires an exclusive lock on lockPath, runs fn, then releases.
func withLock(lockPath string, timeout time.Duration, fn func() error) error {
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lock on %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring lock on %s", lockPath)
	}
	defer fileLock.Unlock()

	return fn()
}
