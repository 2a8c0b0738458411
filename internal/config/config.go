package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Session     SessionConfig
	Security    SecurityConfig
	Mail        MailConfig
	Maintenance MaintenanceConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig points at the session cache
type RedisConfig struct {
	URL string
}

// SessionConfig controls the session cookie and its server-side record
type SessionConfig struct {
	Secret     string
	CookieName string
	Lifetime   time.Duration
	// ProxyMarker is the path fragment that identifies requests rewritten by
	// the gateway in front of the admin site.
	ProxyMarker string
}

// SecurityConfig holds gate settings
type SecurityConfig struct {
	APIKey          string
	GateCacheSize   int
	ThreatAlertsOff bool
}

// MailConfig configures the administrator alert mailbox
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	AdminTo  string
}

// MaintenanceConfig holds the janitor thresholds
type MaintenanceConfig struct {
	StaleSessionAge  time.Duration
	UnblockAfter     time.Duration
	ArticleRetention time.Duration
	PurgeSessions    bool
}

var (
	ErrMissingSessionSecret = errors.New("SESSION_SECRET is required in production")
	ErrMissingAPIKey        = errors.New("API_KEY is required in production")
)

// Load reads configuration from environment variables. A local .env file is
// applied first when present; real environment values win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "codec_agences"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Session: SessionConfig{
			Secret:      getEnv("SESSION_SECRET", ""),
			CookieName:  getEnv("SESSION_COOKIE_NAME", "agences.sid"),
			Lifetime:    getDurationEnv("SESSION_LIFETIME", 120*time.Minute),
			ProxyMarker: getEnv("SESSION_PROXY_MARKER", "/agences"),
		},
		Security: SecurityConfig{
			APIKey:          getEnv("API_KEY", ""),
			GateCacheSize:   getIntEnv("GATE_CACHE_SIZE", 10000),
			ThreatAlertsOff: getBoolEnv("THREAT_ALERTS_DISABLED", false),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "noreply@localhost"),
			AdminTo:  getEnv("MAIL_ADMIN_TO", ""),
		},
		Maintenance: MaintenanceConfig{
			StaleSessionAge:  getDurationEnv("JANITOR_STALE_SESSION_AGE", 2*time.Hour),
			UnblockAfter:     getDurationEnv("JANITOR_UNBLOCK_AFTER", 20*time.Minute),
			ArticleRetention: getDurationEnv("JANITOR_ARTICLE_RETENTION", 30*24*time.Hour),
			PurgeSessions:    getBoolEnv("JANITOR_PURGE_SESSIONS", false),
		},
	}
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks settings that have no safe default in production
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.Session.Secret == "" {
		return ErrMissingSessionSecret
	}
	if c.Security.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// URL returns the connection string in URL form, as golang-migrate expects
func (d *DatabaseConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDurationEnv returns duration from environment variable (minutes) or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
