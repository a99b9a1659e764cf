// Package fake provides an in-memory provider.RepositoryController for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/provider"
)

// Call records one controller invocation.
type Call struct {
	Op   string
	Name string
	SHA  string
}

// Controller keeps refs in a map and records every call. Fail lets a test make
// specific operations fail: the key is "<op> <name>" (e.g. "create 1234/v1").
type Controller struct {
	Namespace string
	Fail      map[string]error

	mu     sync.Mutex
	refs   map[string]string
	calls  []Call
	chunks []int
}

// New returns an empty controller under provider.DefaultNamespace.
func New() *Controller {
	return &Controller{
		Namespace: provider.DefaultNamespace,
		Fail:      make(map[string]error),
		refs:      make(map[string]string),
	}
}

// Seed stores refs without recording calls.
func (c *Controller) Seed(refs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, sha := range refs {
		c.refs[name] = sha
	}
}

// Refs returns a copy of the stored refs keyed by relative name.
func (c *Controller) Refs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.refs))
	for k, v := range c.refs {
		out[k] = v
	}
	return out
}

// Calls returns the recorded calls in order.
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Chunks returns the size of every bulk chunk sent through DeleteRefs.
func (c *Controller) Chunks() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.chunks...)
}

func (c *Controller) record(op, name, sha string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: op, Name: name, SHA: sha})
	return c.Fail[op+" "+name]
}

// CreateRef implements provider.RepositoryController.
func (c *Controller) CreateRef(_ context.Context, name, sha string) error {
	if err := c.record("create", name, sha); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.refs[name]; ok {
		return fmt.Errorf("%s: %w", name, provider.ErrRefExists)
	}
	c.refs[name] = sha
	return nil
}

// UpdateRef implements provider.RepositoryController.
func (c *Controller) UpdateRef(_ context.Context, name, sha string) error {
	if err := c.record("update", name, sha); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.refs[name]; !ok {
		return fmt.Errorf("reference %s does not exist", name)
	}
	c.refs[name] = sha
	return nil
}

// DeleteRef implements provider.RepositoryController.
func (c *Controller) DeleteRef(_ context.Context, name string) error {
	if err := c.record("delete", name, ""); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.refs, name)
	return nil
}

// DeleteRefs implements provider.RepositoryController using batch.InChunks.
func (c *Controller) DeleteRefs(ctx context.Context, refs []provider.Ref) error {
	return batch.InChunks(ctx, refs, batch.DefaultChunkSize, func(ctx context.Context, chunk []provider.Ref) error {
		c.mu.Lock()
		c.chunks = append(c.chunks, len(chunk))
		c.mu.Unlock()

		var failed error
		for _, r := range chunk {
			if err := c.DeleteRef(ctx, r.Name); err != nil {
				failed = err
			}
		}
		return failed
	})
}

// MatchingRefs implements provider.RepositoryController. Results are sorted by name.
func (c *Controller) MatchingRefs(_ context.Context, search string) ([]provider.Ref, error) {
	if err := c.record("match", search, ""); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []provider.Ref
	for name, sha := range c.refs {
		if provider.Matches(name, search) {
			out = append(out, provider.Ref{
				Namespace: c.Namespace,
				Name:      name,
				SHA:       sha,
				NodeID:    "node:" + name,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ provider.RepositoryController = (*Controller)(nil)
