package lifecycle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/provider"
	"github.com/alanmeadows/chetter/internal/provider/fake"
)

const pr = 1234

func TestOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	sha, base := "abcd", "deaf"

	mock.EXPECT().CreateRef(gomock.Any(), "1234/head", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/head-base", base).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v1", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v1-base", base).Return(nil)

	require.NoError(t, Open(t.Context(), mock, pr, sha, base))
}

func TestOpen_AttemptsAllOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	boom := errors.New("422 Reference already exists")

	mock.EXPECT().CreateRef(gomock.Any(), "1234/head", "abcd").Return(boom)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/head-base", "deaf").Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v1", "abcd").Return(boom)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v1-base", "deaf").Return(nil)

	err := Open(t.Context(), mock, pr, "abcd", "deaf")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var refErr *RefError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "create", refErr.Op)
	assert.Equal(t, "1234/head", refErr.Ref)
}

func TestOpen_ShaIndependent(t *testing.T) {
	for _, shas := range [][2]string{{"a", "b"}, {"0123456789abcdef0123456789abcdef01234567", "ffffffffffffffffffffffffffffffffffffffff"}} {
		c := fake.New()
		require.NoError(t, Open(t.Context(), c, pr, shas[0], shas[1]))
		assert.Equal(t, map[string]string{
			"1234/head":      shas[0],
			"1234/head-base": shas[1],
			"1234/v1":        shas[0],
			"1234/v1-base":   shas[1],
		}, c.Refs())
	}
}

func TestSynchronize(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	sha, base := "abc123", "ba5e"

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/").Return(refsNamed(
		"1234/head",
		"1234/head-base",
		"1234/v4",
		"1234/v4-base",
		"1234/reviewer-v2",
		"1234/nick-v99-head",
		"1234/junk",
	), nil)
	mock.EXPECT().UpdateRef(gomock.Any(), "1234/head", sha).Return(nil)
	mock.EXPECT().UpdateRef(gomock.Any(), "1234/head-base", base).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v5", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v5-base", base).Return(nil)

	require.NoError(t, Synchronize(t.Context(), mock, pr, sha, base))
}

func TestSynchronize_NoHead(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	sha, base := "abc123", "ba5e"

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/").Return(refsNamed(
		"1234/v4",
		"1234/v4-base",
		"1234/reviewer-v2",
		"1234/nick-v99-head",
		"1234/junk",
	), nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/head", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/head-base", base).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v5", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/v5-base", base).Return(nil)

	require.NoError(t, Synchronize(t.Context(), mock, pr, sha, base))
}

func TestSynchronize_EmptyMatchesOpen(t *testing.T) {
	opened := fake.New()
	require.NoError(t, Open(t.Context(), opened, pr, "abcd", "deaf"))

	synced := fake.New()
	require.NoError(t, Synchronize(t.Context(), synced, pr, "abcd", "deaf"))

	assert.Equal(t, opened.Refs(), synced.Refs())
	for _, call := range synced.Calls() {
		assert.NotEqual(t, "update", call.Op, "nothing to update on an empty PR")
	}
}

func TestSynchronize_LookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/").Return(nil, errors.New("401 Bad credentials"))

	err := Synchronize(t.Context(), mock, pr, "abc", "def")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 Bad credentials")
}

func TestSynchronize_AttemptsAllOnFailure(t *testing.T) {
	c := fake.New()
	c.Seed(map[string]string{"1234/head": "old", "1234/head-base": "old", "1234/v1": "old", "1234/v1-base": "old"})
	boom := errors.New("timeout")
	c.Fail["update 1234/head"] = boom

	err := Synchronize(t.Context(), c, pr, "new", "newbase")
	require.ErrorIs(t, err, boom)

	refs := c.Refs()
	assert.Equal(t, "old", refs["1234/head"])
	assert.Equal(t, "newbase", refs["1234/head-base"])
	assert.Equal(t, "new", refs["1234/v2"])
	assert.Equal(t, "newbase", refs["1234/v2-base"])
}

func TestBookmark(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	sha, base, user := "abc123", "ba54", "me"

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/me").Return(refsNamed(
		"1234/me-head",
		"1234/me-head-base",
		"1234/me-v2",
		"1234/me-v2-base",
		"1234/me-v3",
		"1234/me-v3-base",
		"1234/me-v99-junk",
	), nil)
	mock.EXPECT().UpdateRef(gomock.Any(), "1234/me-head", sha).Return(nil)
	mock.EXPECT().UpdateRef(gomock.Any(), "1234/me-head-base", base).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-v4", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-v4-base", base).Return(nil)

	require.NoError(t, Bookmark(t.Context(), mock, pr, user, sha, base))
}

func TestBookmark_NoHead(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)
	sha, base, user := "abc123", "ba5e", "me"

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/me").Return(refsNamed(
		"1234/me-v3",
		"1234/me-v3-base",
		"1234/me-v99-junk",
	), nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-head", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-head-base", base).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-v4", sha).Return(nil)
	mock.EXPECT().CreateRef(gomock.Any(), "1234/me-v4-base", base).Return(nil)

	require.NoError(t, Bookmark(t.Context(), mock, pr, user, sha, base))
}

func TestBookmark_FirstReview(t *testing.T) {
	c := fake.New()
	require.NoError(t, Open(t.Context(), c, pr, "abcd", "deaf"))
	require.NoError(t, Bookmark(t.Context(), c, pr, "me", "abcd", "deaf"))

	refs := c.Refs()
	for _, name := range []string{"1234/me-head", "1234/me-v1"} {
		assert.Equal(t, "abcd", refs[name], name)
		assert.Equal(t, "deaf", refs[name+"-base"], name+"-base")
	}
}

func TestBookmark_ReviewersAreIsolated(t *testing.T) {
	c := fake.New()
	c.Seed(map[string]string{
		"1234/meg-head":      "x",
		"1234/meg-head-base": "x",
		"1234/meg-v7":        "x",
		"1234/meg-v7-base":   "x",
	})

	require.NoError(t, Bookmark(t.Context(), c, pr, "me", "abc", "def"))

	refs := c.Refs()
	assert.Equal(t, "abc", refs["1234/me-head"])
	assert.Equal(t, "abc", refs["1234/me-v1"])
	assert.NotContains(t, refs, "1234/me-v8")
	assert.Equal(t, "x", refs["1234/meg-head"], "other reviewer's pointer untouched")

	require.NoError(t, Bookmark(t.Context(), c, pr, "meg", "abc", "def"))
	assert.Equal(t, "abc", c.Refs()["1234/meg-v8"])
}

func TestBookmark_BotReviewer(t *testing.T) {
	c := fake.New()
	require.NoError(t, Bookmark(t.Context(), c, pr, "renovate[bot]", "abc", "def"))
	assert.Contains(t, c.Refs(), "1234/renovate--bot-v1")
}

func TestReviewerSlug(t *testing.T) {
	assert.Equal(t, "octocat", ReviewerSlug("octocat"))
	assert.Equal(t, "dependabot--bot", ReviewerSlug("dependabot[bot]"))
	assert.NotEqual(t, ReviewerSlug("dependabot-bot"), ReviewerSlug("dependabot[bot]"))
	assert.Equal(t, "ab", ReviewerSlug("a:b"))
}

func TestBookmark_HyphenatedLoginsAreIsolated(t *testing.T) {
	c := fake.New()
	for range 7 {
		require.NoError(t, Bookmark(t.Context(), c, pr, "alice-v2", "x", "y"))
	}
	require.Contains(t, c.Refs(), "1234/alice-v2-v7")

	require.NoError(t, Bookmark(t.Context(), c, pr, "alice", "abc", "def"))

	refs := c.Refs()
	assert.Equal(t, "abc", refs["1234/alice-v1"])
	assert.Equal(t, "def", refs["1234/alice-v1-base"])
	assert.NotContains(t, refs, "1234/alice-v8")
	assert.Equal(t, "x", refs["1234/alice-v2-head"], "other reviewer's pointer untouched")

	require.NoError(t, Bookmark(t.Context(), c, pr, "alice-v2", "z", "y"))
	assert.Equal(t, "z", c.Refs()["1234/alice-v2-v8"])
}

func TestSynchronize_IgnoresReviewerVersions(t *testing.T) {
	c := fake.New()
	c.Seed(map[string]string{
		"1234/head":     "old",
		"1234/v2":       "old",
		"1234/nick-v9":  "x",
		"1234/nick-v12": "x",
	})

	require.NoError(t, Synchronize(t.Context(), c, pr, "new", "base"))

	refs := c.Refs()
	assert.Equal(t, "new", refs["1234/v3"])
	assert.NotContains(t, refs, "1234/v13")
}

func TestOwnSuffix(t *testing.T) {
	for _, ok := range []string{"head", "head-base", "v1", "v12-base"} {
		assert.True(t, ownSuffix(ok), ok)
	}
	for _, bad := range []string{"", "v", "v-base", "v2-head", "v2-v7", "head-head", "base", "junk", "v1x"} {
		assert.False(t, ownSuffix(bad), bad)
	}
}

func TestClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)

	names := []string{
		"1234/v1",
		"1234/v2",
		"1234/v2-base",
		"1234/head",
		"1234/head-base",
		"1234/reviewer-v1",
		"1234/reviewer-v2",
		"1234/reviewer-v2-base",
		"1234/reviewer-head",
	}
	refs := refsNamed(names...)

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/").Return(refs, nil)
	mock.EXPECT().DeleteRefs(gomock.Any(), refs).Return(nil)

	require.NoError(t, Close(t.Context(), mock, pr, batch.Bulk{}))
}

func TestClose_ConcurrentAttemptsAll(t *testing.T) {
	c := fake.New()
	seed := make(map[string]string)
	for i := 1; i <= 30; i++ {
		seed[fmt.Sprintf("1234/v%d", i)] = "x"
		seed[fmt.Sprintf("1234/v%d-base", i)] = "x"
	}
	seed["99/head"] = "keep"
	c.Seed(seed)
	boom := errors.New("500")
	c.Fail["delete 1234/v7"] = boom

	err := Close(t.Context(), c, pr, batch.Concurrent{Limit: 4})
	require.ErrorIs(t, err, boom)

	deletes := 0
	for _, call := range c.Calls() {
		if call.Op == "delete" {
			deletes++
		}
	}
	assert.Equal(t, 60, deletes)
	assert.Equal(t, map[string]string{"99/head": "keep", "1234/v7": "x"}, c.Refs())
}

func TestClose_NoRefs(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := provider.NewMockRepositoryController(ctrl)

	mock.EXPECT().MatchingRefs(gomock.Any(), "1234/").Return(nil, nil)

	require.NoError(t, Close(t.Context(), mock, pr, batch.Bulk{}))
}
