package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("RateCacheTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{RateCacheTTLSeconds: 300}
		assert.Equal(t, 300*time.Second, cfg.RateCacheTTL())
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			PublicURL:   "https://pay.example.com",
			AdminAPIKey: "0123456789abcdef0123456789abcdef",
			RateAPIURL:  "https://rates.example.com",
		}
	}

	t.Run("accepts a well-formed production config", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("rejects relative public URL", func(t *testing.T) {
		cfg := base()
		cfg.PublicURL = "pay.example.com"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects plain http public URL in production", func(t *testing.T) {
		cfg := base()
		cfg.PublicURL = "http://pay.example.com"
		assert.Error(t, cfg.Validate(true))
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects short admin key in production only", func(t *testing.T) {
		cfg := base()
		cfg.AdminAPIKey = "short"
		assert.Error(t, cfg.Validate(true))
		assert.NoError(t, cfg.Validate(false))
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":           os.Getenv("PORT"),
		"DATABASE_URL":   os.Getenv("DATABASE_URL"),
		"REDIS_URL":      os.Getenv("REDIS_URL"),
		"PUBLIC_URL":     os.Getenv("PUBLIC_URL"),
		"ADMIN_API_KEY":  os.Getenv("ADMIN_API_KEY"),
		"WALLET_API_URL": os.Getenv("WALLET_API_URL"),
		"LOG_LEVEL":      os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PUBLIC_URL", "https://pay.example.com/")
		os.Setenv("ADMIN_API_KEY", "test-admin-key")
		os.Setenv("WALLET_API_URL", "https://wallet.example.com")
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "devicetimer:settled", cfg.SettlementChannel)
		assert.Equal(t, 30, cfg.LnurlRateLimitPerMin)
	})

	t.Run("trims trailing slash from public URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PUBLIC_URL", "https://pay.example.com/")
		os.Setenv("ADMIN_API_KEY", "test-admin-key")
		os.Setenv("WALLET_API_URL", "https://wallet.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com", cfg.PublicURL)
	})

	t.Run("fails without required values", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("PUBLIC_URL")
		os.Unsetenv("ADMIN_API_KEY")
		os.Unsetenv("WALLET_API_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
