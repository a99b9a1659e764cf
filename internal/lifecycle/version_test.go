package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanmeadows/chetter/internal/provider"
)

func refsNamed(names ...string) []provider.Ref {
	refs := make([]provider.Ref, 0, len(names))
	for _, n := range names {
		refs = append(refs, provider.Ref{Namespace: provider.DefaultNamespace, Name: n, SHA: "_"})
	}
	return refs
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name  string
		refs  []provider.Ref
		scope string
		want  int
	}{
		{
			name:  "empty",
			scope: "1234/",
			want:  1,
		},
		{
			name:  "mixed suffixes",
			refs:  refsNamed("1234/v1", "1234/v4", "1234/v4-base", "1234/reviewer-v2"),
			scope: "1234/",
			want:  5,
		},
		{
			name:  "junk is ignored",
			refs:  refsNamed("1234/head", "1234/head-base", "1234/junk", "1234/nick-v99-head", "1234/v2"),
			scope: "1234/",
			want:  3,
		},
		{
			name:  "reviewer scope",
			refs:  refsNamed("1234/me-v2", "1234/me-v3", "1234/me-v3-base", "1234/me-v99-junk", "1234/v7"),
			scope: "1234/me-",
			want:  4,
		},
		{
			name:  "other scope only",
			refs:  refsNamed("1234/other-v8"),
			scope: "1234/me-",
			want:  1,
		},
		{
			name:  "trailing v without number",
			refs:  refsNamed("1234/dev", "1234/v"),
			scope: "1234/",
			want:  1,
		},
		{
			name:  "login containing v",
			refs:  refsNamed("1234/dave-v3", "1234/dave-head"),
			scope: "1234/dave-",
			want:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextVersion(tt.refs, tt.scope))
		})
	}
}

func TestReviewerSlug_Version(t *testing.T) {
	assert.Equal(t, "me", ReviewerSlug("me"))
	assert.Equal(t, "dependabotbot", ReviewerSlug("dependabot[bot]"))
	assert.Equal(t, "", ReviewerSlug("[]"))
}
