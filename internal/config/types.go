package config

import (
	"time"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/provider"
)

// Config is the top-level chetter configuration.
type Config struct {
	GitHub        GitHubConfig        `json:"github"`
	Refs          RefsConfig          `json:"refs"`
	Server        ServerConfig        `json:"server"`
	Notifications NotificationsConfig `json:"notifications"`
}

// GitHubConfig selects how chetter authenticates. An App (app_id plus
// private_key_path) is preferred; token is a fallback for single-repo use.
type GitHubConfig struct {
	AppID          int64  `json:"app_id,omitempty"`
	PrivateKeyPath string `json:"private_key_path,omitempty"`
	Token          string `json:"token,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	WebhookSecret  string `json:"webhook_secret,omitempty"`
}

// RefsConfig controls where refs live and how they are deleted.
type RefsConfig struct {
	Namespace      string `json:"namespace"`
	DeleteStrategy string `json:"delete_strategy"`
	MaxConcurrency int    `json:"max_concurrency"`
	CloseTimeout   string `json:"close_timeout"`
}

// ParseCloseTimeout returns the close budget as a time.Duration.
func (r RefsConfig) ParseCloseTimeout() time.Duration {
	d, err := time.ParseDuration(r.CloseTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	Port            int    `json:"port"`
	LogDir          string `json:"log_dir"`
	ShutdownTimeout string `json:"shutdown_timeout"`
	JournalPath     string `json:"journal_path"`
}

// ParseShutdownTimeout returns how long shutdown waits for background work.
func (s ServerConfig) ParseShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 600 * time.Second
	}
	return d
}

// Notification event names.
const (
	EventCloseFailed     = "close_failed"
	EventOperationFailed = "operation_failed"
)

// NotificationsConfig holds notification settings.
type NotificationsConfig struct {
	TeamsWebhookURL string   `json:"teams_webhook_url"`
	Events          []string `json:"events"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Refs: RefsConfig{
			Namespace:      provider.DefaultNamespace,
			DeleteStrategy: batch.StrategyBulk,
			MaxConcurrency: batch.DefaultConcurrency,
			CloseTimeout:   "10m",
		},
		Server: ServerConfig{
			Port:            3333,
			LogDir:          "~/.local/share/chetter/logs",
			ShutdownTimeout: "600s",
			JournalPath:     "~/.local/share/chetter/journal.db",
		},
		Notifications: NotificationsConfig{
			Events: []string{EventCloseFailed, EventOperationFailed},
		},
	}
}
