// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// Nested sections are squashed so every field maps to a flat env var.
type Config struct {
	Server   ServerConfig   `mapstructure:",squash"`
	Database DatabaseConfig `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Log      LogConfig      `mapstructure:",squash"`
	App      AppConfig      `mapstructure:",squash"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string `mapstructure:"PORT"`
	ReadTimeout  int    `mapstructure:"SERVER_READ_TIMEOUT"`  // seconds
	WriteTimeout int    `mapstructure:"SERVER_WRITE_TIMEOUT"` // seconds
	IdleTimeout  int    `mapstructure:"SERVER_IDLE_TIMEOUT"`  // seconds
}

// DatabaseConfig holds the connection settings for the selected driver.
type DatabaseConfig struct {
	Driver   string `mapstructure:"DB_DRIVER"`
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
	// RawDSN overrides every other field when set.
	RawDSN string `mapstructure:"DB_DSN"`
	// Log enables SQL statement logging.
	Log bool `mapstructure:"DB_LOG"`
}

// CacheConfig selects the reference-list cache backend.
type CacheConfig struct {
	RedisURL string        `mapstructure:"REDIS_URL"` // empty means in-memory
	TTL      time.Duration `mapstructure:"CACHE_TTL"`
}

type LogConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"` // console | json
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev               bool   `mapstructure:"DEV"`
	Migrations        bool   `mapstructure:"MIGRATIONS"`
	Seed              bool   `mapstructure:"SEED"`
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
}

// DSN returns the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.RawDSN != "" {
		return d.RawDSN
	}
	switch d.Driver {
	case DriverMySQL:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName,
		)
	case DriverSQLite:
		return d.DBName
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
		)
	}
}

// Safe returns a loggable description of the target database, without credentials.
func (d DatabaseConfig) Safe() string {
	if d.Driver == DriverSQLite {
		return "sqlite:" + d.DSN()
	}
	if d.RawDSN != "" {
		return d.Driver + ":<dsn>"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", d.Driver, d.User, d.Host, d.Port, d.DBName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60)

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "approvisionnements")
	v.SetDefault("DB_PASSWORD", "approvisionnements")
	v.SetDefault("DB_NAME", "approvisionnements")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_LOG", false)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("DEV", true)
	v.SetDefault("MIGRATIONS", false)
	v.SetDefault("SEED", false)
	v.SetDefault("RECONCILE_SCHEDULE", "0 3 * * *")
}

// Load reads configuration from environment variables, after loading an optional .env file.
// It uses sensible defaults for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}
