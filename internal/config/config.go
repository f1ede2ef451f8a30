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
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Profile  SecurityProfile
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	SessionSecret   string
	CleanupInterval time.Duration
	CookieDomain    string
	CookieSecure    bool
}

// SecurityProfile is the single bundle of thresholds the gateway runs with.
// It is selected once at startup and immutable for the process lifetime.
// "Development" is just a profile with permissive thresholds, never a
// different branch of logic.
type SecurityProfile struct {
	Name string

	// Sliding-window rate limiter
	WindowLength time.Duration
	MaxAttempts  int
	BlockDur     time.Duration

	// Brute-force lockout
	LockoutMaxAttempts      int
	LockoutDuration         time.Duration
	PermanentBlockThreshold int

	// Session lifetime
	SessionTTL             time.Duration
	AbsoluteSessionTimeout time.Duration

	// Progressive delay schedule, indexed by current failure count.
	// Attempts beyond the schedule use the last entry.
	DelaySchedule []time.Duration
	DelayJitterMs int

	// Relaxed profiles skip the sliding-window check on read-only
	// endpoints so local iteration is not throttled.
	RelaxReadEndpoints bool
}

// StrictProfile returns the production threshold set.
func StrictProfile() SecurityProfile {
	return SecurityProfile{
		Name:                    "strict",
		WindowLength:            15 * time.Minute,
		MaxAttempts:             5,
		BlockDur:                1 * time.Hour,
		LockoutMaxAttempts:      5,
		LockoutDuration:         1 * time.Hour,
		PermanentBlockThreshold: 20,
		SessionTTL:              30 * time.Minute,
		AbsoluteSessionTimeout:  12 * time.Hour,
		DelaySchedule: []time.Duration{
			0,
			250 * time.Millisecond,
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
		},
		DelayJitterMs:      150,
		RelaxReadEndpoints: false,
	}
}

// RelaxedProfile returns permissive thresholds for local development.
func RelaxedProfile() SecurityProfile {
	return SecurityProfile{
		Name:                    "relaxed",
		WindowLength:            1 * time.Minute,
		MaxAttempts:             30,
		BlockDur:                30 * time.Second,
		LockoutMaxAttempts:      30,
		LockoutDuration:         30 * time.Second,
		PermanentBlockThreshold: 1000,
		SessionTTL:              8 * time.Hour,
		AbsoluteSessionTimeout:  7 * 24 * time.Hour,
		DelaySchedule:           []time.Duration{0},
		DelayJitterMs:           0,
		RelaxReadEndpoints:      true,
	}
}

// ProfileForEnv maps a deployment environment to its security profile.
func ProfileForEnv(env string) SecurityProfile {
	if env == "development" || env == "test" {
		return RelaxedProfile()
	}
	return StrictProfile()
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "velmarket"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: parseCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			SessionSecret:   sessionSecret,
			CleanupInterval: getEnvAsDuration("GATEWAY_CLEANUP_INTERVAL", 1*time.Hour),
			CookieDomain:    getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:    env == "production",
		},
		Profile: ProfileForEnv(env),
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate session secret strength
	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	applyProfileOverrides(&cfg.Profile)

	return cfg, nil
}

// applyProfileOverrides lets individual thresholds be tuned via env without
// switching the whole profile.
func applyProfileOverrides(p *SecurityProfile) {
	p.WindowLength = getEnvAsDuration("RATE_LIMIT_WINDOW", p.WindowLength)
	p.MaxAttempts = getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", p.MaxAttempts)
	p.BlockDur = getEnvAsDuration("RATE_LIMIT_BLOCK_DURATION", p.BlockDur)
	p.LockoutMaxAttempts = getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", p.LockoutMaxAttempts)
	p.LockoutDuration = getEnvAsDuration("LOCKOUT_DURATION", p.LockoutDuration)
	p.PermanentBlockThreshold = getEnvAsInt("LOCKOUT_PERMANENT_THRESHOLD", p.PermanentBlockThreshold)
	p.SessionTTL = getEnvAsDuration("SESSION_TTL", p.SessionTTL)
	p.AbsoluteSessionTimeout = getEnvAsDuration("SESSION_ABSOLUTE_TIMEOUT", p.AbsoluteSessionTimeout)
}

// validateSessionSecret enforces minimum security standards for the signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseCSV(originsStr)
	}

	// Development: allow localhost variants used by the React admin
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
