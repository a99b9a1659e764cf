// Package lifecycle maintains the refs that snapshot a pull request over time.
//
// For a PR N the following refs are kept under the controller's namespace:
//
//	N/head, N/head-base          current head and base, force-moved on every push
//	N/vK, N/vK-base              one immutable pair per push, K = 1, 2, ...
//	N/R-head, N/R-head-base      commit reviewer R last approved or rejected
//	N/R-vK, N/R-vK-base          one immutable pair per review by R
//
// Every operation attempts all of its mutations and reports a joined error if
// any of them failed.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/provider"
)

// pair is a ref name and the commit it should point at.
type pair struct {
	name string
	sha  string
}

// Open records a newly opened (or reopened) PR: N/head and N/v1, each with a
// -base companion.
func Open(ctx context.Context, c provider.RepositoryController, pr int, head, base string) error {
	var res results
	for _, name := range []string{"head", "v1"} {
		for _, p := range withBase(fmt.Sprintf("%d/%s", pr, name), head, base) {
			res.add("create", p.name, p.sha, c.CreateRef(ctx, p.name, p.sha))
		}
	}
	return res.err()
}

// Synchronize records a push to an open PR. N/head and N/head-base are moved
// (or created if missing) and a new N/vK pair is created.
func Synchronize(ctx context.Context, c provider.RepositoryController, pr int, head, base string) error {
	scope := fmt.Sprintf("%d/", pr)
	refs, err := c.MatchingRefs(ctx, scope)
	if err != nil {
		return fmt.Errorf("listing refs for PR %d: %w", pr, err)
	}

	return snapshot(ctx, c, refs, scope, scope+"head", head, base)
}

// Bookmark records the commit a reviewer evaluated: N/R-head and
// N/R-head-base are moved (or created) and a new N/R-vK pair is created, with
// K scoped to that reviewer.
func Bookmark(ctx context.Context, c provider.RepositoryController, pr int, reviewer, sha, base string) error {
	slug := ReviewerSlug(reviewer)
	if slug == "" {
		return fmt.Errorf("reviewer login %q has no usable characters", reviewer)
	}

	refs, err := c.MatchingRefs(ctx, fmt.Sprintf("%d/%s", pr, slug))
	if err != nil {
		return fmt.Errorf("listing refs for PR %d reviewer %s: %w", pr, slug, err)
	}

	scope := fmt.Sprintf("%d/%s-", pr, slug)
	return snapshot(ctx, c, refs, scope, scope+"head", sha, base)
}

// Close deletes every ref belonging to the PR, reviewer bookmarks included.
func Close(ctx context.Context, c provider.RepositoryController, pr int, strategy batch.Strategy) error {
	refs, err := c.MatchingRefs(ctx, fmt.Sprintf("%d/", pr))
	if err != nil {
		return fmt.Errorf("listing refs for PR %d: %w", pr, err)
	}
	if len(refs) == 0 {
		slog.Info("no refs to delete", "pr", pr)
		return nil
	}

	slog.Info("deleting refs", "pr", pr, "count", len(refs), "strategy", strategy.Name())
	if err := strategy.Delete(ctx, c, refs); err != nil {
		return fmt.Errorf("deleting refs for PR %d: %w", pr, err)
	}
	return nil
}

// snapshot moves the current pointer pair and creates the next version pair.
// Only refs that scope owns are considered; see owned.
func snapshot(ctx context.Context, c provider.RepositoryController, refs []provider.Ref, scope, current, sha, base string) error {
	refs = owned(refs, scope)
	existing := make(map[string]bool, len(refs))
	for _, r := range refs {
		existing[r.Name] = true
	}

	var res results
	for _, p := range withBase(current, sha, base) {
		if existing[p.name] {
			res.add("update", p.name, p.sha, c.UpdateRef(ctx, p.name, p.sha))
		} else {
			res.add("create", p.name, p.sha, c.CreateRef(ctx, p.name, p.sha))
		}
	}

	next := NextVersion(refs, scope)
	for _, p := range withBase(fmt.Sprintf("%sv%d", scope, next), sha, base) {
		res.add("create", p.name, p.sha, c.CreateRef(ctx, p.name, p.sha))
	}

	return res.err()
}

// owned keeps the refs whose name is scope followed by exactly head,
// head-base, vK or vK-base. MatchingRefs is a plain prefix lookup, so the scope
// "1234/alice-" also returns reviewer alice-v2's "1234/alice-v2-v7", and the PR
// scope "1234/" returns every reviewer's bookmarks.
func owned(refs []provider.Ref, scope string) []provider.Ref {
	var out []provider.Ref
	for _, r := range refs {
		rest, ok := strings.CutPrefix(r.Name, scope)
		if ok && ownSuffix(rest) {
			out = append(out, r)
		}
	}
	return out
}

func ownSuffix(rest string) bool {
	rest = strings.TrimSuffix(rest, "-base")
	if rest == "head" {
		return true
	}
	digits, ok := strings.CutPrefix(rest, "v")
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func withBase(name, sha, base string) []pair {
	return []pair{{name, sha}, {name + "-base", base}}
}

// ReviewerSlug makes a login safe for use in a ref name. GitHub app logins
// such as "dependabot[bot]" contain characters git rejects; the "[bot]" suffix
// becomes "--bot", which no user login can contain, so slugs stay unique.
// Other characters git rejects never occur in GitHub logins and are dropped.
func ReviewerSlug(login string) string {
	if name, ok := strings.CutSuffix(login, "[bot]"); ok {
		login = name + "--bot"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '~', '^', ':', '?', '*', '\\', ' ', '/':
			return -1
		}
		return r
	}, login)
}
