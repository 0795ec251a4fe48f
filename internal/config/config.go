package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort                string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	PGHost        string
	PGPort        string
	PGDatabase    string
	PGUser        string
	PGPassword    string
	PGMaxPoolSize int32

	PEMPath       string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTokenTTL time.Duration

	EmailHost     string
	EmailPort     string
	EmailTLS      bool
	EmailUsername string
	EmailPassword string
	EmailFrom     string

	AdminEmail    string
	AdminName     string
	AdminPassword string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:                getEnv("HTTP_PORT", "8081"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 15*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),

		PGHost:        getEnv("PG_HOST", "localhost"),
		PGPort:        getEnv("PG_PORT", "5432"),
		PGDatabase:    getEnv("PG_DB", "sunsetlodge"),
		PGUser:        getEnv("PG_USER", "sunset"),
		PGPassword:    getEnv("PG_PASS", ""),
		PGMaxPoolSize: int32(getInt("PG_MAX_POOL_SIZE", 4)),

		PEMPath:       getEnv("PEM_PATH", "pem_keys"),
		AccessTTL:     getMinutes("JWT_EXPIRE_MINS", 5),
		RefreshTTL:    getMinutes("JWT_REFRESH_EXPIRE_MINS", 1440),
		ResetTokenTTL: getMinutes("RESET_TOKEN_EXPIRE_MINS", 10),

		EmailHost:     getEnv("EMAIL_HOST", "localhost"),
		EmailPort:     getEnv("EMAIL_PORT", "1025"),
		EmailTLS:      getBool("EMAIL_TLS_REQUIRED", false),
		EmailUsername: getEnv("EMAIL_USERNAME", ""),
		EmailPassword: getEnv("EMAIL_PASSWORD", ""),
		EmailFrom:     getEnv("DEFAULT_FROM", "noreply@sunsetlodge.org"),

		AdminEmail:    getEnv("ADMIN_EMAIL", "test@admin.com"),
		AdminName:     getEnv("ADMIN_NAME", "Test Admin"),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8081")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if strings.TrimSpace(c.PGDatabase) == "" {
		return fmt.Errorf("PG_DB cannot be empty")
	}

	if strings.TrimSpace(c.PEMPath) == "" {
		return fmt.Errorf("PEM_PATH cannot be empty")
	}

	if c.AccessTTL <= 0 {
		return fmt.Errorf("JWT_EXPIRE_MINS must be positive")
	}

	if c.RefreshTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_EXPIRE_MINS must be positive")
	}

	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_EXPIRE_MINS must be positive")
	}

	return nil
}

// DatabaseURL assembles a pgx connection string from the PG_* parts.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

// getMinutes reads an integer env var expressed in minutes, matching the
// JWT_EXPIRE_MINS style knobs the deployment already uses.
func getMinutes(key string, fallbackMins int) time.Duration {
	return time.Duration(getInt(key, fallbackMins)) * time.Minute
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
