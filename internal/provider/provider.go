package provider

//go:generate mockgen -source=provider.go -destination=mock_provider.go -package=provider

import (
	"context"
	"errors"
	"strings"
)

// DefaultNamespace is the ref namespace every tracked ref lives under.
// GitHub only allows GraphQL deleteRef on refs/heads, refs/tags, refs/notes
// and refs/guest, so the namespace sits under refs/heads.
const DefaultNamespace = "refs/heads/pr"

// ErrRefExists is returned by CreateRef when the ref is already present.
var ErrRefExists = errors.New("reference already exists")

// Ref is a git reference under the tracking namespace.
type Ref struct {
	// Namespace is the fixed prefix the ref lives under (e.g. "refs/heads/pr").
	Namespace string
	// Name is the namespace-relative name (e.g. "1234/v2-base").
	Name string
	// SHA is the full object name the ref points at.
	SHA string
	// NodeID is the backend identifier used for bulk deletion. May be empty.
	NodeID string
}

// FullName returns the symbolic ref name including the namespace.
func (r Ref) FullName() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// RepositoryController is the boundary between the PR lifecycle logic and the
// hosting backend. All names are relative to the controller's namespace.
type RepositoryController interface {
	// CreateRef creates <namespace>/<name> pointing at sha. Fails if the ref exists.
	CreateRef(ctx context.Context, name, sha string) error

	// UpdateRef force-moves an existing <namespace>/<name> to sha.
	UpdateRef(ctx context.Context, name, sha string) error

	// DeleteRef removes <namespace>/<name>. Deleting an absent ref succeeds.
	DeleteRef(ctx context.Context, name string) error

	// DeleteRefs removes a batch of refs in as few round trips as the backend allows.
	// Every ref is attempted even if some deletions fail.
	DeleteRefs(ctx context.Context, refs []Ref) error

	// MatchingRefs returns every ref under the namespace whose relative name
	// begins with search.
	//
	// For example MatchingRefs(ctx, "abc/d") matches:
	//   - <namespace>/abc/def
	//   - <namespace>/abc/d/ef
	//   - <namespace>/abc/d
	// but does not match:
	//   - <namespace>/other/abc/d
	//   - <namespace>/ab
	MatchingRefs(ctx context.Context, search string) ([]Ref, error)
}

// Matches reports whether a namespace-relative ref name is selected by search
// under the MatchingRefs rules.
func Matches(name, search string) bool {
	return strings.HasPrefix(name, search)
}

// Within reports whether a full ref name lies under namespace.
func Within(fullName, namespace string) bool {
	return strings.HasPrefix(fullName, strings.TrimSuffix(namespace, "/")+"/")
}
