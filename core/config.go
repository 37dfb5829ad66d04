package core

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration resolved from the environment.
// User-facing generation preferences (provider, models, style defaults)
// live in Settings; Config covers transport, logging, and file locations.
type Config struct {
	// AITimeout bounds each individual provider call. The upstream design
	// imposed no timeout; 60s is this implementation's policy default.
	AITimeout time.Duration

	// AllowSelfSignedCerts disables TLS verification for provider
	// endpoints behind corporate proxies.
	AllowSelfSignedCerts bool

	// Development switches logging to colored console output at debug level.
	Development bool

	// LogFilePath is the rotating log file location.
	LogFilePath string

	// SettingsPath is where the persisted settings record lives.
	SettingsPath string
}

// LoadConfig reads process configuration from the environment, loading a
// .env file first if one is present. A missing .env file is not an error.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AITimeout:            ParseDurationEnv("AI_TIMEOUT", 60*time.Second),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
		Development:          ParseBoolEnv("DEV_MODE", false),
		LogFilePath:          GetEnvOrDefault("LOG_FILE", "noteposter.log"),
		SettingsPath:         GetEnvOrDefault("SETTINGS_FILE", "settings.yaml"),
	}
}

// GetHTTPClient builds the shared HTTP client used for all provider calls,
// applying the configured TLS policy and per-call timeout.
func GetHTTPClient(cfg *Config) *http.Client {
	transport := &http.Transport{}
	if cfg != nil && cfg.AllowSelfSignedCerts {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	timeout := 60 * time.Second
	if cfg != nil && cfg.AITimeout > 0 {
		timeout = cfg.AITimeout
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
