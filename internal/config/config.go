// Package config gathers the server settings from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"restart/internal/domain/kiosk"
)

// EnvProduction is the RESTART_ENV value that turns on the strict checks.
const EnvProduction = "production"

// Config groups every setting by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Auth     AuthConfig
	Kiosk    KioskConfig
	Email    EmailConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string
	Env         string
	CSRFKey     []byte
	SlowRequest time.Duration
	// CSRFKeyGenerated is set when no key was configured and a random one is used.
	CSRFKeyGenerated bool
}

// DatabaseConfig holds the local SQLite settings.
type DatabaseConfig struct {
	Path      string
	SlowQuery time.Duration
	// AuditRetention is how long audit events are kept; zero keeps them forever.
	AuditRetention time.Duration
}

// BackendConfig points at the hosted PostgREST API.
type BackendConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
}

// AuthConfig holds the secret used to verify admin access tokens.
type AuthConfig struct {
	JWTSecret string
}

// KioskConfig holds the terminal settings.
type KioskConfig struct {
	IdleSeconds    int
	DeviceTTL      time.Duration
	Banner         string
	AllowedOrigins []string
}

// EmailConfig holds the month-close summary settings.
type EmailConfig struct {
	ResendKey  string
	From       string
	ReplyTo    string
	Recipients []string
}

// Production reports whether the server runs in production.
func (c *Config) Production() bool {
	return c.Server.Env == EnvProduction
}

// Load reads the configuration from the environment.
// PRE: none
// POST: returns an error naming the first invalid or missing variable
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, for tests.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	idle, err := strconv.Atoi(env("RESTART_IDLE_SECONDS", strconv.Itoa(kiosk.DefaultIdleSeconds)))
	if err != nil || idle <= 0 {
		return nil, fmt.Errorf("invalid RESTART_IDLE_SECONDS: must be a positive integer")
	}
	timeout, err := time.ParseDuration(env("RESTART_BACKEND_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid RESTART_BACKEND_TIMEOUT: %q", getenv("RESTART_BACKEND_TIMEOUT"))
	}
	slowQuery, err := time.ParseDuration(env("RESTART_SLOW_QUERY", "50ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESTART_SLOW_QUERY: %w", err)
	}
	slowRequest, err := time.ParseDuration(env("RESTART_SLOW_REQUEST", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESTART_SLOW_REQUEST: %w", err)
	}
	deviceTTL, err := time.ParseDuration(env("RESTART_DEVICE_TTL", "2h"))
	if err != nil || deviceTTL <= 0 {
		return nil, fmt.Errorf("invalid RESTART_DEVICE_TTL: %q", getenv("RESTART_DEVICE_TTL"))
	}
	retention, err := time.ParseDuration(env("RESTART_AUDIT_RETENTION", "2160h"))
	if err != nil || retention < 0 {
		return nil, fmt.Errorf("invalid RESTART_AUDIT_RETENTION: %q", getenv("RESTART_AUDIT_RETENTION"))
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:        env("RESTART_ADDR", ":8080"),
			Env:         env("RESTART_ENV", "development"),
			SlowRequest: slowRequest,
		},
		Database: DatabaseConfig{
			Path:           env("RESTART_DB_PATH", "restart.db"),
			SlowQuery:      slowQuery,
			AuditRetention: retention,
		},
		Backend: BackendConfig{
			URL:        strings.TrimRight(env("RESTART_BACKEND_URL", ""), "/"),
			AnonKey:    env("RESTART_BACKEND_ANON_KEY", ""),
			ServiceKey: env("RESTART_BACKEND_SERVICE_KEY", ""),
			Timeout:    timeout,
		},
		Auth: AuthConfig{
			JWTSecret: env("RESTART_JWT_SECRET", ""),
		},
		Kiosk: KioskConfig{
			IdleSeconds:    idle,
			DeviceTTL:      deviceTTL,
			Banner:         env("RESTART_KIOSK_BANNER", ""),
			AllowedOrigins: splitList(env("RESTART_ALLOWED_ORIGINS", "")),
		},
		Email: EmailConfig{
			ResendKey:  env("RESTART_RESEND_KEY", ""),
			From:       env("RESTART_EMAIL_FROM", "Restart Ore <noreply@restart.local>"),
			ReplyTo:    env("RESTART_EMAIL_REPLY_TO", ""),
			Recipients: splitList(env("RESTART_REPORT_RECIPIENTS", "")),
		},
	}

	key, generated, err := csrfKey(getenv("RESTART_CSRF_KEY"), cfg.Server.Env == EnvProduction)
	if err != nil {
		return nil, err
	}
	cfg.Server.CSRFKey = key
	cfg.Server.CSRFKeyGenerated = generated

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return errors.New("RESTART_BACKEND_URL is required")
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("RESTART_BACKEND_URL must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.AnonKey == "" {
		return errors.New("RESTART_BACKEND_ANON_KEY is required")
	}
	if c.Production() {
		if c.Auth.JWTSecret == "" {
			return errors.New("RESTART_JWT_SECRET is required in production")
		}
		if c.Backend.ServiceKey == "" {
			return errors.New("RESTART_BACKEND_SERVICE_KEY is required in production")
		}
	}
	return nil
}

// csrfKey decodes a 64-hex-character key, or generates a random one outside
// production.
func csrfKey(keyHex string, production bool) ([]byte, bool, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, false, errors.New("RESTART_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		return key, false, nil
	}
	if production {
		return nil, false, errors.New("RESTART_CSRF_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate CSRF key: %w", err)
	}
	return key, true, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
