// Package webhook turns GitHub webhook deliveries into lifecycle operations.
package webhook

import (
	"errors"
	"fmt"

	gh "github.com/google/go-github/v82/github"
)

// Event kinds carried in the X-GitHub-Event header that chetter acts on.
const (
	KindPullRequest       = "pull_request"
	KindPullRequestReview = "pull_request_review"
)

// Review states that record a bookmark.
const (
	StateApproved         = "approved"
	StateChangesRequested = "changes_requested"
)

// ErrUnsupportedEvent is returned by Parse for event kinds chetter ignores.
var ErrUnsupportedEvent = errors.New("unsupported event")

// ParseError reports a delivery that could not be decoded or lacks a field
// every handled event needs.
type ParseError struct {
	Kind  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s event: missing %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s event: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Event is the subset of a pull_request or pull_request_review delivery the
// lifecycle needs.
type Event struct {
	DeliveryID     string
	Kind           string
	Action         string
	InstallationID int64
	Owner          string
	Repo           string
	PR             int
	HeadSHA        string
	BaseSHA        string

	// Review fields, set only for pull_request_review.
	Reviewer     string
	ReviewState  string
	ReviewCommit string
}

// Repository returns "owner/repo".
func (e *Event) Repository() string {
	return e.Owner + "/" + e.Repo
}

// Parse decodes a delivery body according to its event kind.
func Parse(eventType, deliveryID string, payload []byte) (*Event, error) {
	switch eventType {
	case KindPullRequest, KindPullRequestReview:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	raw, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, &ParseError{Kind: eventType, Err: err}
	}

	var ev *Event
	switch e := raw.(type) {
	case *gh.PullRequestEvent:
		ev, err = fromPullRequest(e)
	case *gh.PullRequestReviewEvent:
		ev, err = fromReview(e)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, raw)
	}
	if err != nil {
		return nil, err
	}

	ev.DeliveryID = deliveryID
	return ev, nil
}

func fromPullRequest(e *gh.PullRequestEvent) (*Event, error) {
	ev, err := common(KindPullRequest, e.GetRepo(), e.GetInstallation(), e.GetPullRequest())
	if err != nil {
		return nil, err
	}
	ev.Action = e.GetAction()
	if ev.Action == "" {
		return nil, missing(KindPullRequest, "action")
	}
	return ev, nil
}

func fromReview(e *gh.PullRequestReviewEvent) (*Event, error) {
	ev, err := common(KindPullRequestReview, e.GetRepo(), e.GetInstallation(), e.GetPullRequest())
	if err != nil {
		return nil, err
	}
	ev.Action = e.GetAction()

	review := e.GetReview()
	if review == nil {
		return nil, missing(KindPullRequestReview, "review")
	}
	ev.Reviewer = review.GetUser().GetLogin()
	if ev.Reviewer == "" {
		return nil, missing(KindPullRequestReview, "review.user")
	}
	ev.ReviewCommit = review.GetCommitID()
	if ev.ReviewCommit == "" {
		return nil, missing(KindPullRequestReview, "review.commit_id")
	}
	ev.ReviewState = review.GetState()
	return ev, nil
}

// common extracts the fields shared by both handled kinds.
func common(kind string, repo *gh.Repository, inst *gh.Installation, pr *gh.PullRequest) (*Event, error) {
	if repo == nil {
		return nil, missing(kind, "repository")
	}
	if repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, missing(kind, "repository.owner")
	}
	if inst.GetID() == 0 {
		return nil, missing(kind, "installation.id")
	}
	if pr == nil || pr.GetNumber() == 0 {
		return nil, missing(kind, "pull_request")
	}
	if pr.GetHead().GetSHA() == "" {
		return nil, missing(kind, "pull_request.head.sha")
	}
	if pr.GetBase().GetSHA() == "" {
		return nil, missing(kind, "pull_request.base.sha")
	}

	return &Event{
		Kind:           kind,
		InstallationID: inst.GetID(),
		Owner:          repo.GetOwner().GetLogin(),
		Repo:           repo.GetName(),
		PR:             pr.GetNumber(),
		HeadSHA:        pr.GetHead().GetSHA(),
		BaseSHA:        pr.GetBase().GetSHA(),
	}, nil
}

func missing(kind, field string) error {
	return &ParseError{Kind: kind, Field: field}
}
