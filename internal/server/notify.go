package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alanmeadows/chetter/internal/config"
)

// notifyHTTPClient is a dedicated HTTP client for notifications,
// isolated from http.DefaultClient to avoid global state mutation.
var notifyHTTPClient = &http.Client{Timeout: 15 * time.Second}

// NotificationEvent represents the type of event that triggers a notification.
type NotificationEvent string

const (
	EventCloseFailed     NotificationEvent = config.EventCloseFailed
	EventOperationFailed NotificationEvent = config.EventOperationFailed
)

// NotificationPayload carries details about a failed lifecycle operation.
type NotificationPayload struct {
	Event      NotificationEvent
	Repository string
	PR         int
	Operation  string
	DeliveryID string
	URL        string // link to the pull request
	Error      string
}

// Notify sends a notification to the configured Teams webhook.
// Returns nil immediately if no webhook is configured or if the event is filtered out.
func Notify(ctx context.Context, cfg *config.NotificationsConfig, payload NotificationPayload) error {
	if cfg.TeamsWebhookURL == "" {
		return nil
	}

	// An empty Events list allows everything.
	if len(cfg.Events) > 0 && !slices.Contains(cfg.Events, string(payload.Event)) {
		slog.Debug("notification event filtered out", "event", string(payload.Event))
		return nil
	}

	body, err := json.Marshal(buildAdaptiveCard(payload))
	if err != nil {
		return fmt.Errorf("marshaling notification payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.TeamsWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("sending notification", "event", string(payload.Event), "repo", payload.Repository, "pr", payload.PR)

	resp, err := notifyHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("notification sent successfully", "event", string(payload.Event))
	return nil
}

// buildAdaptiveCard constructs an Adaptive Card wrapped in the Power Automate envelope.
func buildAdaptiveCard(payload NotificationPayload) map[string]any {
	headerText := string(payload.Event)
	switch payload.Event {
	case EventCloseFailed:
		headerText = "❌ Ref cleanup failed"
	case EventOperationFailed:
		headerText = "⚠️ Ref update failed"
	}

	var facts []map[string]any
	if payload.Repository != "" {
		facts = append(facts, map[string]any{"title": "Repository", "value": payload.Repository})
	}
	if payload.PR != 0 {
		facts = append(facts, map[string]any{"title": "Pull Request", "value": fmt.Sprintf("#%d", payload.PR)})
	}
	if payload.Operation != "" {
		facts = append(facts, map[string]any{"title": "Operation", "value": payload.Operation})
	}
	if payload.DeliveryID != "" {
		facts = append(facts, map[string]any{"title": "Delivery", "value": payload.DeliveryID})
	}

	cardBody := []map[string]any{
		{
			"type":   "TextBlock",
			"size":   "Medium",
			"weight": "Bolder",
			"text":   headerText,
		},
	}

	if len(facts) > 0 {
		cardBody = append(cardBody, map[string]any{
			"type":  "FactSet",
			"facts": facts,
		})
	}

	if payload.Error != "" {
		cardBody = append(cardBody, map[string]any{
			"type":     "TextBlock",
			"text":     payload.Error,
			"color":    "Attention",
			"wrap":     true,
			"fontType": "Monospace",
		})
	}

	card := map[string]any{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.4",
		"body":    cardBody,
	}
	if payload.URL != "" {
		card["actions"] = []map[string]any{
			{
				"type":  "Action.OpenUrl",
				"title": "Open pull request",
				"url":   payload.URL,
			},
		}
	}

	return map[string]any{
		"type": "message",
		"attachments": []map[string]any{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content":     card,
			},
		},
	}
}

// pullRequestURL builds the web URL of a pull request. baseURL is empty for
// github.com.
func pullRequestURL(baseURL, repository string, pr int) string {
	if baseURL == "" {
		baseURL = "https://github.com"
	}
	return fmt.Sprintf("%s/%s/pull/%d", strings.TrimRight(baseURL, "/"), repository, pr)
}
