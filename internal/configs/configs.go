/*
Package configs is responsible for loading and validating the application's
configuration from environment variables.
*/
package configs

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// History backend selectors.
const (
	HistoryBackendFS = "fs"
	HistoryBackendS3 = "s3"
)

// AppConfig contains all configuration parameters required to run the server.
// Values are parsed from environment variables; validation happens after parsing.
type AppConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"3030"`

	// Security Settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	TicketSecret   string   `env:"TICKET_SECRET"`

	// Credential Store Settings. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`

	// History Store Settings
	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"fs"`
	HistoryDir     string `env:"HISTORY_DIR" envDefault:"data/history"`

	// S3 Settings, required when HistoryBackend is "s3".
	S3BucketName      string `env:"S3_BUCKET_NAME"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

// LoadConfig parses the application configuration from environment variables
// and validates it.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	if cfg.TicketSecret == "" {
		if cfg.Environment == "development" {
			cfg.TicketSecret = "your_default_insecure_secret_key_change_me"
		} else {
			return nil, fmt.Errorf("TICKET_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
	}

	switch cfg.HistoryBackend {
	case HistoryBackendFS:
		if cfg.HistoryDir == "" {
			return nil, fmt.Errorf("HISTORY_DIR environment variable is required for the fs history backend")
		}
	case HistoryBackendS3:
		if cfg.S3BucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME environment variable is required for the s3 history backend")
		}
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT environment variable is required for the s3 history backend")
		}
		if cfg.S3AccessKeyID == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID environment variable is required for S3 authentication")
		}
		if cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY environment variable is required for S3 authentication")
		}
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.HistoryBackend)
	}

	return cfg, nil
}
