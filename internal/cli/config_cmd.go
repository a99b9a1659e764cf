package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage chetter configuration",
	Long:  `Show and modify chetter configuration values.`,
}

var (
	configJSONFlag  bool
	configYAMLFlag  bool
	configForceFlag bool
)

func init() {
	configShowCmd.Flags().BoolVar(&configJSONFlag, "json", false, "Output raw JSON without formatting")
	configShowCmd.Flags().BoolVar(&configYAMLFlag, "yaml", false, "Output YAML")
	configShowCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	configInitCmd.Flags().BoolVar(&configForceFlag, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show merged configuration",
	Long: `Print the configuration after merging defaults, the config file, and
environment overrides. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := "pretty"
		switch {
		case configJSONFlag:
			format = "json"
		case configYAMLFlag:
			format = "yaml"
		}

		data, err := renderConfig(appConfig, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
		return nil
	},
}

// renderConfig encodes a redacted copy of cfg. YAML keys follow the JSON tags.
func renderConfig(cfg *config.Config, format string) ([]byte, error) {
	redacted := config.Redacted(cfg)

	switch format {
	case "json":
		return json.Marshal(redacted)
	case "yaml":
		raw, err := json.Marshal(redacted)
		if err != nil {
			return nil, fmt.Errorf("marshaling config: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("marshaling config: %w", err)
		}
		return yaml.Marshal(m)
	default:
		return json.MarshalIndent(redacted, "", "  ")
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long: `Set a configuration value using a dotted key path.

The value is written to the config file (--config, or
~/.config/chetter/chetter.jsonc). The file is created if it does not exist.

Note: JSONC comments are not preserved on write.`,
	Example: `  chetter config set github.app_id 123456
  chetter config set refs.delete_strategy concurrent
  chetter config set server.port 8080`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetConfigPath()
		if err != nil {
			return err
		}

		value, err := setConfigValue(path, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
		return nil
	},
}

func targetConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// parseValue guesses the JSON type of a command-line value: bool, then
// number, then string.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// setConfigValue writes key=raw into the JSONC file at path.
func setConfigValue(path, key, raw string) (any, error) {
	value := parseValue(raw)

	existing := []byte("{}")
	if data, err := os.ReadFile(path); err == nil {
		// sjson requires plain JSON.
		existing = jsonc.ToJSON(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	updated, err := sjson.SetBytes(existing, key, value)
	if err != nil {
		return nil, fmt.Errorf("setting key %q: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, updated, 0o600); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	return value, nil
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForceFlag {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		a := initAnswers{
			Strategy: batch.StrategyBulk,
			Port:     strconv.Itoa(appConfig.Server.Port),
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("GitHub App ID (leave empty to use a token)").
					Value(&a.AppID).
					Validate(func(s string) error {
						if s == "" {
							return nil
						}
						if _, err := strconv.ParseInt(s, 10, 64); err != nil {
							return fmt.Errorf("app id must be a number")
						}
						return nil
					}),
				huh.NewInput().
					Title("App private key path").
					Value(&a.KeyPath),
				huh.NewInput().
					Title("Personal access token (only without an App)").
					EchoMode(huh.EchoModePassword).
					Value(&a.Token),
				huh.NewInput().
					Title("Webhook secret").
					EchoMode(huh.EchoModePassword).
					Value(&a.Secret),
			),
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Ref delete strategy").
					Options(
						huh.NewOption("Bulk GraphQL mutations (recommended)", batch.StrategyBulk),
						huh.NewOption("Concurrent REST deletes", batch.StrategyConcurrent),
					).
					Value(&a.Strategy),
				huh.NewInput().
					Title("Listen port").
					Value(&a.Port).
					Validate(func(s string) error {
						if _, err := strconv.Atoi(s); err != nil {
							return fmt.Errorf("port must be a number")
						}
						return nil
					}),
			),
		)

		if err := form.Run(); err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}

		if err := writeInitialConfig(path, a); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

type initAnswers struct {
	AppID    string
	KeyPath  string
	Token    string
	Secret   string
	Strategy string
	Port     string
}

// writeInitialConfig writes a commented JSONC file from the wizard answers.
func writeInitialConfig(path string, a initAnswers) error {
	appID := a.AppID
	if appID == "" {
		appID = "0"
	}
	port := a.Port
	if port == "" {
		port = "3333"
	}

	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString("  // GitHub App credentials. A token is used only when app_id is 0.\n")
	b.WriteString("  \"github\": {\n")
	fmt.Fprintf(&b, "    \"app_id\": %s,\n", appID)
	fmt.Fprintf(&b, "    \"private_key_path\": %s,\n", quote(a.KeyPath))
	fmt.Fprintf(&b, "    \"token\": %s,\n", quote(a.Token))
	fmt.Fprintf(&b, "    \"webhook_secret\": %s\n", quote(a.Secret))
	b.WriteString("  },\n")
	b.WriteString("  \"refs\": {\n")
	fmt.Fprintf(&b, "    \"delete_strategy\": %s\n", quote(a.Strategy))
	b.WriteString("  },\n")
	b.WriteString("  \"server\": {\n")
	fmt.Fprintf(&b, "    \"port\": %s\n", port)
	b.WriteString("  }\n")
	b.WriteString("}\n")

	if !json.Valid(jsonc.ToJSON([]byte(b.String()))) {
		return fmt.Errorf("generated config is not valid JSON")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func quote(s string) string {
	q, _ := json.Marshal(s)
	return string(q)
}
