package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/alanmeadows/chetter/internal/provider"
)

// Options selects how chetter authenticates to GitHub.
type Options struct {
	AppID          int64
	PrivateKeyPath string
	Token          string
	BaseURL        string // web URL of a GitHub Enterprise Server, empty for github.com
	Namespace      string
}

// Source hands out a RepositoryController per repository.
type Source interface {
	// Controller returns a controller acting as the given installation.
	Controller(ctx context.Context, installationID int64, owner, repo string) (provider.RepositoryController, error)
	// ControllerFor resolves credentials for owner/repo without an event to
	// supply the installation.
	ControllerFor(ctx context.Context, owner, repo string) (provider.RepositoryController, error)
}

// ErrNoCredentials is returned when neither an App nor a token is configured.
var ErrNoCredentials = errors.New("no GitHub credentials configured: set github.app_id and github.private_key_path, or github.token")

// NewSource returns an App when an app id is configured, otherwise a
// TokenSource.
func NewSource(opts Options) (Source, error) {
	switch {
	case opts.AppID != 0:
		return NewApp(opts)
	case opts.Token != "":
		return NewTokenSource(opts), nil
	default:
		return nil, ErrNoCredentials
	}
}

// App authenticates as a GitHub App and mints installation transports.
type App struct {
	apps      *ghinstallation.AppsTransport
	client    *gh.Client
	apiURL    string
	baseURL   string
	namespace string
}

// NewApp loads the App private key and prepares an app-level client used to
// look up installations.
func NewApp(opts Options) (*App, error) {
	if opts.PrivateKeyPath == "" {
		return nil, fmt.Errorf("github.private_key_path is required for app %d", opts.AppID)
	}

	atr, err := ghinstallation.NewAppsTransportKeyFromFile(http.DefaultTransport, opts.AppID, opts.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading app key %s: %w", opts.PrivateKeyPath, err)
	}

	apiURL := apiBaseURL(opts.BaseURL)
	if apiURL != "" {
		atr.BaseURL = apiURL
	}

	client := gh.NewClient(&http.Client{Transport: atr})
	if opts.BaseURL != "" {
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URL %s: %w", opts.BaseURL, err)
		}
	}

	return &App{
		apps:      atr,
		client:    client,
		apiURL:    apiURL,
		baseURL:   opts.BaseURL,
		namespace: opts.Namespace,
	}, nil
}

// Controller returns a rate-limited Backend acting as installationID.
func (a *App) Controller(_ context.Context, installationID int64, owner, repo string) (provider.RepositoryController, error) {
	if installationID == 0 {
		return nil, fmt.Errorf("no installation id for %s/%s", owner, repo)
	}

	itr := ghinstallation.NewFromAppsTransport(a.apps, installationID)
	if a.apiURL != "" {
		itr.BaseURL = a.apiURL
	}

	return NewBackend(github_ratelimit.NewClient(itr), a.baseURL, owner, repo, a.namespace)
}

// ControllerFor looks up the installation covering owner/repo.
func (a *App) ControllerFor(ctx context.Context, owner, repo string) (provider.RepositoryController, error) {
	id, err := a.InstallationID(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return a.Controller(ctx, id, owner, repo)
}

// InstallationID finds the App installation for owner/repo.
func (a *App) InstallationID(ctx context.Context, owner, repo string) (int64, error) {
	inst, _, err := a.client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return 0, fmt.Errorf("finding installation for %s/%s: %w", owner, repo, err)
	}
	slog.Debug("resolved installation", "repo", owner+"/"+repo, "installation", inst.GetID())
	return inst.GetID(), nil
}

// TokenSource authenticates every repository with one static token.
type TokenSource struct {
	token     string
	baseURL   string
	namespace string
}

func NewTokenSource(opts Options) *TokenSource {
	return &TokenSource{token: opts.Token, baseURL: opts.BaseURL, namespace: opts.Namespace}
}

// Controller ignores installationID.
func (s *TokenSource) Controller(ctx context.Context, _ int64, owner, repo string) (provider.RepositoryController, error) {
	return s.ControllerFor(ctx, owner, repo)
}

func (s *TokenSource) ControllerFor(ctx context.Context, owner, repo string) (provider.RepositoryController, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.token})
	httpClient := oauth2.NewClient(ctx, ts)
	return NewBackend(github_ratelimit.NewClient(httpClient.Transport), s.baseURL, owner, repo, s.namespace)
}

// apiBaseURL maps an enterprise web URL to its REST API root, which is what
// ghinstallation expects.
func apiBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	u := strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(u, "/api/v3") {
		return u
	}
	return u + "/api/v3"
}
