// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GEOCODE_SECONDARY_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any ancestor that
// contains a go.mod, so tests running from package directories pick it up too.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cohort-intake"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Flow.AnalysisTimeout == 0 {
		cfg.Flow.AnalysisTimeout = 15000
	}

	if cfg.Suggestions.DebounceWindow == 0 {
		cfg.Suggestions.DebounceWindow = 600
	}
	if cfg.Suggestions.MinInputLength == 0 {
		cfg.Suggestions.MinInputLength = 3
	}
	if cfg.Suggestions.RequestTimeout == 0 {
		cfg.Suggestions.RequestTimeout = 8000
	}
	if cfg.Suggestions.MaxRetries == 0 {
		cfg.Suggestions.MaxRetries = 1
	}

	if cfg.Geocode.DebounceWindow == 0 {
		cfg.Geocode.DebounceWindow = 450
	}
	if cfg.Geocode.MinQueryLength == 0 {
		cfg.Geocode.MinQueryLength = 3
	}
	if cfg.Geocode.Secondary.MaxResults == 0 {
		cfg.Geocode.Secondary.MaxResults = 5
	}
	if cfg.Geocode.Secondary.Timeout == 0 {
		cfg.Geocode.Secondary.Timeout = 6000
	}

	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 15000
	}
	if cfg.Analysis.MaxRetries == 0 {
		cfg.Analysis.MaxRetries = 1
	}
	if cfg.Analysis.MaxTokens == 0 {
		cfg.Analysis.MaxTokens = 800
	}
	if cfg.Analysis.Temperature == 0 {
		cfg.Analysis.Temperature = 0.7
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "cohort-profiles"
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/questions.json"
	}

	if cfg.Preferences.Namespace == "" {
		cfg.Preferences.Namespace = "intake:prefs"
	}
	if cfg.Preferences.TTLHours == 0 {
		cfg.Preferences.TTLHours = 24 * 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Suggestions.MinInputLength < 1 {
		return fmt.Errorf("suggestions.min_input_length must be >= 1")
	}
	if cfg.Flow.AnalysisTimeout < 1000 {
		return fmt.Errorf("flow.analysis_timeout must be at least 1000ms")
	}
	if cfg.Geocode.Secondary.BaseURL != "" && !strings.HasPrefix(cfg.Geocode.Secondary.BaseURL, "http") {
		return fmt.Errorf("geocode.secondary.base_url must be an http(s) URL")
	}
	return nil
}
