package github

import (
	"fmt"
	"strings"
)

// RepoName identifies a repository as owner/name.
type RepoName struct {
	Owner string
	Repo  string
}

func (r RepoName) String() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepoName parses "owner/repo", tolerating a github.com URL prefix and a
// trailing ".git".
func ParseRepoName(s string) (RepoName, error) {
	s = strings.TrimSpace(s)
	for _, p := range []string{"https://", "http://", "www.", "github.com/"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoName{}, fmt.Errorf("invalid repository %q, expected owner/repo", s)
	}
	return RepoName{Owner: parts[0], Repo: parts[1]}, nil
}
