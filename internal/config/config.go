package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Logger     Logger     `mapstructure:"logger"`
	MarketData MarketData `mapstructure:"marketdata"`
	Quotes     Quotes     `mapstructure:"quotes"`
	Auth       Auth       `mapstructure:"auth"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MarketData holds the configuration for the market-data API.
type MarketData struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"apiKey"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Quotes holds the configuration for batched quote fetching.
type Quotes struct {
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	Concurrency          int           `mapstructure:"concurrency"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	StaleWarningRatio    float64       `mapstructure:"stale_warning_ratio"`
	DegradeOnUnavailable bool          `mapstructure:"degrade_on_unavailable"`
}

// Auth holds the bootstrap administrator credentials.
type Auth struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminToken    string `mapstructure:"admin_token"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (Config, error) {
	var config Config

	// A .env file in the working directory feeds the environment overrides.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.dsn", "portfolio.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("marketdata.base_url", "https://financialmodelingprep.com/api/v3")
	v.SetDefault("marketdata.apiKey", "")
	v.SetDefault("marketdata.rate_limit", 5)       // requests per second
	v.SetDefault("marketdata.rate_limit_burst", 5) // burst size
	v.SetDefault("marketdata.max_retries", 3)
	v.SetDefault("marketdata.timeout", 10*time.Second)

	v.SetDefault("quotes.fetch_timeout", 5*time.Second)
	v.SetDefault("quotes.concurrency", 8)
	v.SetDefault("quotes.cache_ttl", 30*time.Second)
	v.SetDefault("quotes.stale_warning_ratio", 0.5)
	v.SetDefault("quotes.degrade_on_unavailable", true)

	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_token", "")
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.MarketData.RateLimit <= 0 {
		problems = append(problems, "marketdata.rate_limit must be positive")
	}
	if c.MarketData.RateLimitBurst <= 0 {
		problems = append(problems, "marketdata.rate_limit_burst must be positive")
	}
	if c.MarketData.MaxRetries < 1 {
		problems = append(problems, "marketdata.max_retries must be at least 1")
	}
	if c.MarketData.Timeout < 0 || c.Quotes.FetchTimeout < 0 || c.Quotes.CacheTTL < 0 {
		problems = append(problems, "durations must not be negative")
	}
	if c.Quotes.Concurrency <= 0 {
		problems = append(problems, "quotes.concurrency must be positive")
	}
	if c.Quotes.StaleWarningRatio < 0 || c.Quotes.StaleWarningRatio > 1 {
		problems = append(problems, "quotes.stale_warning_ratio must be within [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
