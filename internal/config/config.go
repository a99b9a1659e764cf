package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/sethvargo/go-envconfig"
	"github.com/tidwall/jsonc"
)

// DefaultPath returns the user-level config file, ~/.config/chetter/chetter.jsonc.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("finding config dir: %w", err)
	}
	return filepath.Join(dir, "chetter", "chetter.jsonc"), nil
}

// Load reads configuration from path, deep-merged over the defaults, then
// applies environment overrides. An empty path means DefaultPath, which may
// be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	m, err := loadJSONC(path)
	switch {
	case err == nil:
		if err := mergeIntoConfig(&cfg, m); err != nil {
			return nil, fmt.Errorf("merging %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := applyEnvOverrides(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	return &cfg, nil
}

// loadJSONC reads a JSONC file and returns it as a map.
func loadJSONC(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeIntoConfig marshals the config to a map, deep-merges the source map over it,
// then unmarshals back to the Config struct.
func mergeIntoConfig(cfg *Config, src map[string]any) error {
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var dst map[string]any
	if err := json.Unmarshal(cfgBytes, &dst); err != nil {
		return err
	}

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return err
	}

	merged, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, cfg)
}

// envOverrides lists the environment variables that override the file. Unset
// variables leave the field at its zero value and are ignored.
type envOverrides struct {
	AppID          int64  `env:"CHETTER_APP_ID"`
	PrivateKeyPath string `env:"CHETTER_PRIVATE_KEY_PATH"`
	WebhookSecret  string `env:"CHETTER_WEBHOOK_SECRET"`
	BaseURL        string `env:"CHETTER_GITHUB_BASE_URL"`
	Token          string `env:"GITHUB_TOKEN"`
	Port           int    `env:"PORT"`
	DeleteStrategy string `env:"CHETTER_DELETE_STRATEGY"`
	TeamsWebhook   string `env:"CHETTER_TEAMS_WEBHOOK_URL"`
}

func applyEnvOverrides(ctx context.Context, cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return err
	}

	if env.AppID != 0 {
		cfg.GitHub.AppID = env.AppID
	}
	setString(&cfg.GitHub.PrivateKeyPath, env.PrivateKeyPath)
	setString(&cfg.GitHub.WebhookSecret, env.WebhookSecret)
	setString(&cfg.GitHub.BaseURL, env.BaseURL)
	setString(&cfg.GitHub.Token, env.Token)
	setString(&cfg.Refs.DeleteStrategy, env.DeleteStrategy)
	setString(&cfg.Notifications.TeamsWebhookURL, env.TeamsWebhook)
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Redacted returns a copy of cfg with secrets masked, for display.
func Redacted(cfg *Config) Config {
	out := *cfg
	out.GitHub.Token = mask(out.GitHub.Token)
	out.GitHub.WebhookSecret = mask(out.GitHub.WebhookSecret)
	out.Notifications.TeamsWebhookURL = mask(out.Notifications.TeamsWebhookURL)
	out.Notifications.Events = append([]string(nil), cfg.Notifications.Events...)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
