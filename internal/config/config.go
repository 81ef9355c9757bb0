package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Plex
	PlexURL     string
	PlexToken   string
	PlexLibrary string

	// Overseerr
	OverseerrURL    string
	OverseerrAPIKey string

	// Tautulli
	TautulliURL    string
	TautulliAPIKey string

	// Sonarr
	SonarrURL    string
	SonarrAPIKey string

	// Cache
	CacheTTLHours int // Hours before a cached per-source record is stale (default: 24)

	// Eligibility
	RequestThresholdDays int // Days within which a request blocks deletion (default: 365)
	IgnoreFirstSeason    bool
	IgnoreFirstEpisode   bool
	SkipOverseerr        bool
	SkipTautulli         bool

	// Rate limits, calls per minute per source
	RateLimitPlex      int
	RateLimitOverseerr int
	RateLimitTautulli  int
	RateLimitSonarr    int

	// Seconds a caller waits for a rate limit permit before timing out
	RateLimitTimeoutSeconds int

	// Retries per adapter call before a show is skipped
	MaxRetries int

	// Run behaviour
	DefaultAction    string // applied to every eligible show in non-interactive mode
	SkipConfirmation bool
	ForceRefresh     bool
	Apply            bool // destructive opt-in; without it every run is a dry run

	// Daemon
	SweepSchedule string // cron expression for daemon mode

	// Paths
	DatabaseFile string // $CONFIG_DIR/showsweep.db
	BackupDir    string // $CONFIG_DIR/backups

	// Logging
	LogLevel string
	LogFile  string
}

// CacheTTL returns the cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// RateLimitTimeout returns the permit wait timeout as a duration
func (c *Config) RateLimitTimeout() time.Duration {
	return time.Duration(c.RateLimitTimeoutSeconds) * time.Second
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	config, err := load()
	if err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOffline loads configuration without requiring service credentials,
// for commands that only touch the local database.
func LoadOffline() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("PLEX_LIBRARY", "TV Shows")
	viper.SetDefault("CACHE_TTL_HOURS", 24)
	viper.SetDefault("REQUEST_THRESHOLD_DAYS", 365)
	viper.SetDefault("RATE_LIMIT_PLEX", 10)
	viper.SetDefault("RATE_LIMIT_OVERSEERR", 5)
	viper.SetDefault("RATE_LIMIT_TAUTULLI", 5)
	viper.SetDefault("RATE_LIMIT_SONARR", 10)
	viper.SetDefault("RATE_LIMIT_TIMEOUT_SECONDS", 60)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("ACTION", "keep")
	viper.SetDefault("SWEEP_SCHEDULE", "0 4 * * *")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "showsweep")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		PlexURL:     viper.GetString("PLEX_URL"),
		PlexToken:   viper.GetString("PLEX_TOKEN"),
		PlexLibrary: viper.GetString("PLEX_LIBRARY"),

		OverseerrURL:    viper.GetString("OVERSEERR_URL"),
		OverseerrAPIKey: viper.GetString("OVERSEERR_API_KEY"),

		TautulliURL:    viper.GetString("TAUTULLI_URL"),
		TautulliAPIKey: viper.GetString("TAUTULLI_API_KEY"),

		SonarrURL:    viper.GetString("SONARR_URL"),
		SonarrAPIKey: viper.GetString("SONARR_API_KEY"),

		CacheTTLHours: viper.GetInt("CACHE_TTL_HOURS"),

		RequestThresholdDays: viper.GetInt("REQUEST_THRESHOLD_DAYS"),
		IgnoreFirstSeason:    viper.GetBool("IGNORE_FIRST_SEASON"),
		IgnoreFirstEpisode:   viper.GetBool("IGNORE_FIRST_EPISODE"),
		SkipOverseerr:        viper.GetBool("SKIP_OVERSEERR"),
		SkipTautulli:         viper.GetBool("SKIP_TAUTULLI"),

		RateLimitPlex:      viper.GetInt("RATE_LIMIT_PLEX"),
		RateLimitOverseerr: viper.GetInt("RATE_LIMIT_OVERSEERR"),
		RateLimitTautulli:  viper.GetInt("RATE_LIMIT_TAUTULLI"),
		RateLimitSonarr:    viper.GetInt("RATE_LIMIT_SONARR"),

		RateLimitTimeoutSeconds: viper.GetInt("RATE_LIMIT_TIMEOUT_SECONDS"),

		MaxRetries: viper.GetInt("MAX_RETRIES"),

		DefaultAction:    viper.GetString("ACTION"),
		SkipConfirmation: viper.GetBool("SKIP_CONFIRMATION"),
		ForceRefresh:     viper.GetBool("FORCE_REFRESH"),
		Apply:            viper.GetBool("APPLY"),

		SweepSchedule: viper.GetString("SWEEP_SCHEDULE"),

		DatabaseFile: filepath.Join(configDir, "showsweep.db"),
		BackupDir:    filepath.Join(configDir, "backups"),

		LogLevel: viper.GetString("LOG_LEVEL"),
		LogFile:  viper.GetString("LOG_FILE"),
	}

	return config, nil
}

// validate checks the fields required to reach the configured services
func (c *Config) validate() error {
	if c.PlexURL == "" {
		return fmt.Errorf("PLEX_URL is required")
	}
	if c.PlexToken == "" {
		return fmt.Errorf("PLEX_TOKEN is required")
	}
	if !c.SkipOverseerr && c.OverseerrURL == "" {
		return fmt.Errorf("OVERSEERR_URL is required unless SKIP_OVERSEERR is set")
	}
	if !c.SkipOverseerr && c.OverseerrAPIKey == "" {
		return fmt.Errorf("OVERSEERR_API_KEY is required unless SKIP_OVERSEERR is set")
	}
	if !c.SkipTautulli && c.TautulliURL == "" {
		return fmt.Errorf("TAUTULLI_URL is required unless SKIP_TAUTULLI is set")
	}
	if !c.SkipTautulli && c.TautulliAPIKey == "" {
		return fmt.Errorf("TAUTULLI_API_KEY is required unless SKIP_TAUTULLI is set")
	}
	return nil
}
