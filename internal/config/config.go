package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for ticketbridge.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Telegram TelegramConfig `json:"telegram"`
	Helpdesk HelpdeskConfig `json:"helpdesk"`
	Queue    QueueConfig    `json:"queue"`
	Store    StoreConfig    `json:"store"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

type TelegramConfig struct {
	Token             string  `json:"token"`
	ParseMode         string  `json:"parseMode"`
	SendRatePerSecond float64 `json:"sendRatePerSecond"` // global outbound throttle
	SendBurst         int     `json:"sendBurst"`
	TemplatesPath     string  `json:"templatesPath,omitempty"` // YAML notice templates
}

// HelpdeskConfig points at the ticketing platform's REST API.
type HelpdeskConfig struct {
	BaseURL        string `json:"baseUrl"`
	APIToken       string `json:"apiToken"`
	AccountID      int    `json:"accountId"`
	InboxID        int    `json:"inboxId"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// QueueConfig configures the webhook event queue the consumer drains.
type QueueConfig struct {
	URL                string `json:"url"`  // redis:// or memory://
	Name               string `json:"name"` // queue key, defaults to DefaultQueueName
	PollTimeoutSeconds int    `json:"pollTimeoutSeconds"`
}

// StoreConfig configures the correlation store backend.
type StoreConfig struct {
	URL                  string `json:"url"` // sqlite path, redis:// or postgres://
	TicketTTLHours       int    `json:"ticketTtlHours"`       // TTL-capable backends only
	AgentMessageTTLHours int    `json:"agentMessageTtlHours"` // TTL-capable backends only
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.ticketbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ticketbridge"
	}
	return filepath.Join(home, ".ticketbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads and validates the config file. A .env file in the working
// directory is loaded first so ${VAR} substitutions in the file can see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	cfg.Store.URL = expandPath(cfg.Store.URL)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the settings that
// differ per environment without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKETBRIDGE_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TICKETBRIDGE_HELPDESK_TOKEN"); v != "" {
		cfg.Helpdesk.APIToken = v
	}
	if v := os.Getenv("TICKETBRIDGE_HELPDESK_URL"); v != "" {
		cfg.Helpdesk.BaseURL = v
	}
	if v := os.Getenv("TICKETBRIDGE_QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("TICKETBRIDGE_QUEUE_NAME"); v != "" {
		cfg.Queue.Name = v
	}
	if v := os.Getenv("TICKETBRIDGE_STORE_URL"); v != "" {
		cfg.Store.URL = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Queue.Name == "" {
		errs = append(errs, "queue.name must not be empty")
	}
	if cfg.Queue.PollTimeoutSeconds < 1 || cfg.Queue.PollTimeoutSeconds > 30 {
		errs = append(errs, "queue.pollTimeoutSeconds must be between 1 and 30")
	}
	if cfg.Store.URL == "" {
		errs = append(errs, "store.url must not be empty")
	}
	if cfg.Telegram.SendRatePerSecond <= 0 {
		errs = append(errs, "telegram.sendRatePerSecond must be > 0")
	}
	if cfg.Telegram.SendBurst < 1 {
		errs = append(errs, "telegram.sendBurst must be >= 1")
	}
	if cfg.Helpdesk.TimeoutSeconds < 1 {
		errs = append(errs, "helpdesk.timeoutSeconds must be >= 1")
	}
	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
		// valid
	default:
		errs = append(errs, "telegram.parseMode must be one of: Markdown, MarkdownV2, HTML")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// expandPath expands a leading ~/ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
