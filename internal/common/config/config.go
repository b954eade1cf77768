// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Flow          FlowConfig         `mapstructure:"flow"`
	Suggestions   SuggestionConfig   `mapstructure:"suggestions"`
	Geocode       GeocodeConfig      `mapstructure:"geocode"`
	Analysis      AnalysisConfig     `mapstructure:"analysis"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Registry      RegistryConfig     `mapstructure:"registry"`
	Preferences   PreferencesConfig  `mapstructure:"preferences"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// FlowConfig holds the step-flow controller settings.
type FlowConfig struct {
	AnalysisTimeout int `mapstructure:"analysis_timeout"` // milliseconds
}

// SuggestionConfig holds the suggestion debounce/fetch settings.
type SuggestionConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	DebounceWindow int    `mapstructure:"debounce_window"` // milliseconds
	MinInputLength int    `mapstructure:"min_input_length"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	MaxRetries     int    `mapstructure:"max_retries"`
}

// GeocodeConfig holds the provider-chain settings.
type GeocodeConfig struct {
	Secondary      SecondaryGeocodeConfig `mapstructure:"secondary"`
	DebounceWindow int                    `mapstructure:"debounce_window"` // milliseconds
	MinQueryLength int                    `mapstructure:"min_query_length"`
}

type SecondaryGeocodeConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	MaxResults int    `mapstructure:"max_results"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// AnalysisConfig holds settings for the branch-transition fan-out.
type AnalysisConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	Index      string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig points at the question registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// PreferencesConfig holds the cross-session preference store settings.
type PreferencesConfig struct {
	Namespace string `mapstructure:"namespace"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

// NotificationConfig holds settings for completion notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
