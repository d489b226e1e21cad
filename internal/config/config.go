package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Reddit OAuth configuration
	RedditClientID     string
	RedditClientSecret string
	RedditRedirectURI  string
	RedditRefreshToken string
	RedditAPIBase      string
	RedditAuthBase     string
	UserAgent          string

	// Presets file (YAML), merged over the built-in presets
	PresetsFile string

	// Azure Storage configuration for run archives
	StorageAccount   string
	StorageContainer string
	ArchiveKeep      int    // most recent runs kept in the archive, 0 keeps all
	ArchiveDBPath    string // local SQLite archive used when no storage account is set

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Scheduled runs
	RunSchedule  string // cron expression with seconds, empty disables
	RunPreset    string
	RunMessage   string
	RunRefCode   string
	RunRefLink   string
	RunDryRun    bool
	RunAllowlist []string // overrides the preset allow-list when set
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditRedirectURI:  getEnv("REDDIT_REDIRECT_URI", "http://localhost:8080/oauth/callback"),
		RedditRefreshToken: getEnv("REDDIT_REFRESH_TOKEN", ""),
		RedditAPIBase:      getEnv("REDDIT_API_BASE", "https://oauth.reddit.com"),
		RedditAuthBase:     getEnv("REDDIT_AUTH_BASE", "https://www.reddit.com"),
		UserAgent:          getEnv("USER_AGENT", "referral-drip-bot/2.0"),

		PresetsFile: getEnv("PRESETS_FILE", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "drip-runs"),
		ArchiveKeep:      getIntEnv("ARCHIVE_KEEP", 100),
		ArchiveDBPath:    getEnv("ARCHIVE_DB_PATH", ""),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		RunSchedule:  getEnv("RUN_SCHEDULE", ""),
		RunPreset:    strings.ToLower(getEnv("RUN_PRESET", "")),
		RunMessage:   getEnv("RUN_MESSAGE", ""),
		RunRefCode:   getEnv("RUN_REF_CODE", ""),
		RunRefLink:   getEnv("RUN_REF_LINK", ""),
		RunDryRun:    getBoolEnv("RUN_DRY_RUN", true),
		RunAllowlist: getSliceEnv("RUN_ALLOWLIST", nil),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.RunSchedule != "" && c.RunPreset == "" {
		return fmt.Errorf("RUN_PRESET is required when RUN_SCHEDULE is set")
	}

	return nil
}

// NotificationsEnabled reports whether any summary channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValue
}
