package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/chetter/internal/config"
)

func TestNotify_NoWebhook(t *testing.T) {
	cfg := &config.NotificationsConfig{
		TeamsWebhookURL: "",
	}
	err := Notify(t.Context(), cfg, NotificationPayload{
		Event:      EventCloseFailed,
		Repository: "acme/widgets",
	})
	assert.NoError(t, err)
}

func TestNotify_EventFiltering(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.NotificationsConfig{
		TeamsWebhookURL: srv.URL,
		Events:          []string{"close_failed"},
	}

	err := Notify(t.Context(), cfg, NotificationPayload{
		Event:      EventOperationFailed,
		Repository: "acme/widgets",
	})
	assert.NoError(t, err)
	assert.False(t, called, "webhook should not be called for filtered event")
}

func TestNotify_EventFilteringEmptyAllowed(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.NotificationsConfig{
		TeamsWebhookURL: srv.URL,
		Events:          []string{},
	}

	err := Notify(t.Context(), cfg, NotificationPayload{
		Event:      EventOperationFailed,
		Repository: "acme/widgets",
	})
	assert.NoError(t, err)
	assert.True(t, called, "webhook should be called when Events is empty (allow all)")
}

func TestNotify_SendsRequest(t *testing.T) {
	var receivedBody []byte
	var receivedContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		receivedBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.NotificationsConfig{
		TeamsWebhookURL: srv.URL,
	}

	err := Notify(t.Context(), cfg, NotificationPayload{
		Event:      EventCloseFailed,
		Repository: "acme/widgets",
		PR:         1234,
		URL:        "https://github.com/acme/widgets/pull/1234",
		Error:      "chunk 0-100: 502 Bad Gateway",
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", receivedContentType)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(receivedBody, &envelope))
	assert.Equal(t, "message", envelope["type"])

	attachments, ok := envelope["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)

	attachment := attachments[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", attachment["contentType"])

	content := attachment["content"].(map[string]any)
	assert.Equal(t, "AdaptiveCard", content["type"])
	assert.Equal(t, "1.4", content["version"])
}

func TestNotify_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad card"))
	}))
	defer srv.Close()

	err := Notify(t.Context(), &config.NotificationsConfig{TeamsWebhookURL: srv.URL}, NotificationPayload{
		Event: EventCloseFailed,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "bad card")
}

func TestBuildAdaptiveCard_CloseFailed(t *testing.T) {
	card := buildAdaptiveCard(NotificationPayload{
		Event:      EventCloseFailed,
		Repository: "acme/widgets",
		PR:         1234,
		Operation:  "close",
		DeliveryID: "d-1",
		URL:        "https://github.com/acme/widgets/pull/1234",
		Error:      "boom",
	})

	content := card["attachments"].([]map[string]any)[0]["content"].(map[string]any)
	body := content["body"].([]map[string]any)
	require.Len(t, body, 3)

	assert.Equal(t, "❌ Ref cleanup failed", body[0]["text"])

	facts := body[1]["facts"].([]map[string]any)
	require.Len(t, facts, 4)
	assert.Equal(t, "acme/widgets", facts[0]["value"])
	assert.Equal(t, "#1234", facts[1]["value"])
	assert.Equal(t, "close", facts[2]["value"])
	assert.Equal(t, "d-1", facts[3]["value"])

	assert.Equal(t, "boom", body[2]["text"])
	assert.Equal(t, "Attention", body[2]["color"])

	actions := content["actions"].([]map[string]any)
	require.Len(t, actions, 1)
	assert.Equal(t, "https://github.com/acme/widgets/pull/1234", actions[0]["url"])
}

func TestBuildAdaptiveCard_OperationFailedMinimal(t *testing.T) {
	card := buildAdaptiveCard(NotificationPayload{Event: EventOperationFailed})

	content := card["attachments"].([]map[string]any)[0]["content"].(map[string]any)
	body := content["body"].([]map[string]any)
	require.Len(t, body, 1)
	assert.Equal(t, "⚠️ Ref update failed", body[0]["text"])
	assert.NotContains(t, content, "actions")
}

func TestPullRequestURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/widgets/pull/7", pullRequestURL("", "acme/widgets", 7))
	assert.Equal(t, "https://ghe.example.com/acme/widgets/pull/7", pullRequestURL("https://ghe.example.com/", "acme/widgets", 7))
}
