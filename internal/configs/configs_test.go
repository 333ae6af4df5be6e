package configs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "TICKET_SECRET", "DATABASE_URL",
	"HISTORY_BACKEND", "HISTORY_DIR",
	"S3_BUCKET_NAME", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
}

// clearEnv unsets every config variable for the duration of the test.
// t.Setenv registers the restore; the unset gives a clean slate.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 3030, cfg.Port)
	assert.Equal(t, HistoryBackendFS, cfg.HistoryBackend)
	assert.Equal(t, "data/history", cfg.HistoryDir)
	assert.Empty(t, cfg.DatabaseURL)
	assert.NotEmpty(t, cfg.TicketSecret)
}

func TestLoadConfigPortValidation(t *testing.T) {
	tests := []struct {
		port  string
		valid bool
	}{
		{"3030", true},
		{"1024", true},
		{"65535", true},
		{"80", false},
		{"0", false},
		{"70000", false},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PORT", tt.port)

			_, err := LoadConfig()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadConfigTicketSecret(t *testing.T) {
	t.Run("production requires a secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("production with a secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("TICKET_SECRET", "s3cret")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.TicketSecret)
	})

	t.Run("development falls back to a default", func(t *testing.T) {
		clearEnv(t)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.TicketSecret)
	})
}

func TestLoadConfigHistoryBackend(t *testing.T) {
	t.Run("unknown backend rejected", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HISTORY_BACKEND", "carrier-pigeon")

		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("s3 requires all credentials", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HISTORY_BACKEND", "s3")

		_, err := LoadConfig()
		require.Error(t, err)

		t.Setenv("S3_BUCKET_NAME", "wetalk-history")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("S3_ACCESS_KEY_ID", "minioadmin")
		_, err = LoadConfig()
		require.Error(t, err)

		t.Setenv("S3_SECRET_ACCESS_KEY", "minioadmin")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, HistoryBackendS3, cfg.HistoryBackend)
	})
}

func TestLoadConfigAllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://staging.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://chat.example.com", "https://staging.example.com"}, cfg.AllowedOrigins)
}
