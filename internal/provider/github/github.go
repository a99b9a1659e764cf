package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	gh "github.com/google/go-github/v82/github"
	"github.com/shurcooL/githubv4"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/provider"
)

// refsPerPage is the page size used when listing matching refs.
const refsPerPage = 100

// Backend implements provider.RepositoryController for one GitHub repository.
//
// Ref mutations go through raw REST requests rather than the typed Git
// service helpers: the helpers assume refs/heads or refs/tags and the
// namespace is configurable. Bulk deletes use GraphQL, which can remove a
// hundred refs per round trip.
type Backend struct {
	client    *gh.Client
	gql       *githubv4.Client
	owner     string
	repo      string
	namespace string
}

// NewBackend creates a Backend that sends every request through httpClient.
// baseURL is empty for github.com or the web URL of a GitHub Enterprise Server.
func NewBackend(httpClient *http.Client, baseURL, owner, repo, namespace string) (*Backend, error) {
	client := gh.NewClient(httpClient)
	gql := githubv4.NewClient(httpClient)

	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URL %s: %w", baseURL, err)
		}
		gql = githubv4.NewEnterpriseClient(strings.TrimSuffix(baseURL, "/")+"/api/graphql", httpClient)
	}

	if namespace == "" {
		namespace = provider.DefaultNamespace
	}

	return &Backend{
		client:    client,
		gql:       gql,
		owner:     owner,
		repo:      repo,
		namespace: strings.TrimSuffix(namespace, "/"),
	}, nil
}

// FullName returns "owner/repo".
func (b *Backend) FullName() string {
	return b.owner + "/" + b.repo
}

// CreateRef creates <namespace>/<name> at sha.
func (b *Backend) CreateRef(ctx context.Context, name, sha string) error {
	body := map[string]string{
		"ref": b.fullRef(name),
		"sha": sha,
	}
	req, err := b.client.NewRequest(http.MethodPost, b.repoPath("git/refs"), body)
	if err != nil {
		return fmt.Errorf("building create request: %w", err)
	}

	if _, err := b.client.Do(ctx, req, nil); err != nil {
		if isAlreadyExists(err) {
			return fmt.Errorf("creating %s: %w", b.fullRef(name), provider.ErrRefExists)
		}
		return fmt.Errorf("creating %s: %w", b.fullRef(name), err)
	}
	return nil
}

// UpdateRef force-moves <namespace>/<name> to sha.
func (b *Backend) UpdateRef(ctx context.Context, name, sha string) error {
	body := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: sha, Force: true}

	req, err := b.client.NewRequest(http.MethodPatch, b.refPath(name), body)
	if err != nil {
		return fmt.Errorf("building update request: %w", err)
	}

	if _, err := b.client.Do(ctx, req, nil); err != nil {
		return fmt.Errorf("updating %s: %w", b.fullRef(name), err)
	}
	return nil
}

// DeleteRef removes <namespace>/<name>. A ref that is already gone is not an error.
func (b *Backend) DeleteRef(ctx context.Context, name string) error {
	req, err := b.client.NewRequest(http.MethodDelete, b.refPath(name), nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}

	resp, err := b.client.Do(ctx, req, nil)
	if err != nil {
		// GitHub answers 422 "Reference does not exist" for missing refs.
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity) {
			slog.Debug("ref already deleted", "ref", b.fullRef(name))
			return nil
		}
		return fmt.Errorf("deleting %s: %w", b.fullRef(name), err)
	}
	return nil
}

// DeleteRefs removes refs with aliased GraphQL deleteRef mutations, at most
// batch.DefaultChunkSize per request. Refs without a node ID fall back to
// DeleteRef.
func (b *Backend) DeleteRefs(ctx context.Context, refs []provider.Ref) error {
	var bulk []provider.Ref
	var errs []error
	for _, r := range refs {
		if r.NodeID != "" {
			bulk = append(bulk, r)
			continue
		}
		if err := b.DeleteRef(ctx, r.Name); err != nil {
			errs = append(errs, err)
		}
	}

	if err := batch.InChunks(ctx, bulk, batch.DefaultChunkSize, b.deleteChunk); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// deleteRefPayload selects the only field deleteRef returns that we care about.
type deleteRefPayload struct {
	ClientMutationID githubv4.String `graphql:"clientMutationId"`
}

// deleteChunk sends a single mutation with one aliased deleteRef per ref:
//
//	mutation($input: DeleteRefInput!, $input1: DeleteRefInput!, ...) {
//	  delete_0: deleteRef(input: $input) { clientMutationId }
//	  delete_1: deleteRef(input: $input1) { clientMutationId }
//	}
//
// githubv4 always binds the Mutate input argument to $input, so the first ref
// uses it and the rest are passed as extra variables.
func (b *Backend) deleteChunk(ctx context.Context, chunk []provider.Ref) error {
	if len(chunk) == 0 {
		return nil
	}

	fields := make([]reflect.StructField, len(chunk))
	vars := make(map[string]any, len(chunk))
	var first githubv4.DeleteRefInput

	for i, r := range chunk {
		in := githubv4.DeleteRefInput{
			RefID:            githubv4.ID(r.NodeID),
			ClientMutationID: githubv4.NewString(githubv4.String(r.Name)),
		}
		arg := "input"
		if i == 0 {
			first = in
		} else {
			arg = fmt.Sprintf("input%d", i)
			vars[arg] = in
		}
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("Delete%d", i),
			Type: reflect.TypeOf(deleteRefPayload{}),
			Tag:  reflect.StructTag(fmt.Sprintf(`graphql:"delete_%d: deleteRef(input: $%s)"`, i, arg)),
		}
	}

	mutation := reflect.New(reflect.StructOf(fields)).Interface()
	slog.Info("sending mutation to delete refs", "repo", b.FullName(), "count", len(chunk))
	if err := b.gql.Mutate(ctx, mutation, first, vars); err != nil {
		return fmt.Errorf("deleteRef mutation: %w", err)
	}

	for _, r := range chunk {
		slog.Debug("deleted ref", "ref", r.FullName())
	}
	return nil
}

// MatchingRefs lists refs under the namespace whose relative name starts with search.
func (b *Backend) MatchingRefs(ctx context.Context, search string) ([]provider.Ref, error) {
	prefix := strings.TrimPrefix(b.namespace, "refs/") + "/" + search
	page := 1

	var refs []provider.Ref
	for {
		u := fmt.Sprintf("%s?per_page=%d&page=%d", b.repoPath("git/matching-refs/"+escapePath(prefix)), refsPerPage, page)
		req, err := b.client.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("building matching-refs request: %w", err)
		}

		var batch []*gh.Reference
		resp, err := b.client.Do(ctx, req, &batch)
		if err != nil {
			return nil, fmt.Errorf("listing refs matching %s: %w", prefix, err)
		}

		for _, r := range batch {
			ref, ok := b.toRef(r)
			if !ok {
				slog.Warn("skipping unmatched ref", "ref", r.GetRef(), "type", r.GetObject().GetType())
				continue
			}
			refs = append(refs, ref)
		}

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return refs, nil
}

// toRef converts an API reference, rejecting anything outside the namespace
// or not pointing at a commit or tag.
func (b *Backend) toRef(r *gh.Reference) (provider.Ref, bool) {
	if !provider.Within(r.GetRef(), b.namespace) {
		return provider.Ref{}, false
	}
	switch r.GetObject().GetType() {
	case "commit", "tag":
	default:
		return provider.Ref{}, false
	}
	return provider.Ref{
		Namespace: b.namespace,
		Name:      strings.TrimPrefix(r.GetRef(), b.namespace+"/"),
		SHA:       r.GetObject().GetSHA(),
		NodeID:    r.GetNodeID(),
	}, true
}

func (b *Backend) fullRef(name string) string {
	return b.namespace + "/" + name
}

func (b *Backend) repoPath(rest string) string {
	return fmt.Sprintf("repos/%s/%s/%s", url.PathEscape(b.owner), url.PathEscape(b.repo), rest)
}

// refPath is the REST path of a single ref, which omits the leading "refs/".
func (b *Backend) refPath(name string) string {
	return b.repoPath("git/refs/" + escapePath(strings.TrimPrefix(b.fullRef(name), "refs/")))
}

// escapePath escapes each segment of a slash separated path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func isAlreadyExists(err error) bool {
	var ghErr *gh.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	return ghErr.Response.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(ghErr.Message), "already exists")
}

// Verify Backend implements RepositoryController at compile time.
var _ provider.RepositoryController = (*Backend)(nil)
