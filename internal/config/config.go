package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// PublicURL is the externally reachable base URL of this server. It is
	// embedded in LNURL callbacks and bech32-encoded into switch QR codes,
	// so wallets must be able to reach it.
	PublicURL string `env:"PUBLIC_URL,required"`

	AdminAPIKey string `env:"ADMIN_API_KEY,required"`

	WalletAPIURL string `env:"WALLET_API_URL,required"`

	RateAPIURL          string `env:"RATE_API_URL"`
	RateCacheTTLSeconds int    `env:"RATE_CACHE_TTL_SECONDS" envDefault:"300"`

	SettlementChannel string `env:"SETTLEMENT_CHANNEL" envDefault:"devicetimer:settled"`

	LnurlRateLimitPerMin int    `env:"LNURL_RATE_LIMIT_PER_MIN" envDefault:"30"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RateCacheTTL() time.Duration {
	return time.Duration(c.RateCacheTTLSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL")
	}

	if len(c.AdminAPIKey) < 32 {
		if isProduction {
			return fmt.Errorf("ADMIN_API_KEY must be at least 32 characters in production (generate with: openssl rand -hex 32)")
		}
		log.Warn().Msg("ADMIN_API_KEY is shorter than 32 characters; do not use this key in production")
	}

	if isProduction {
		if strings.HasPrefix(c.PublicURL, "http://") {
			return fmt.Errorf("PUBLIC_URL must use https in production: wallets reject plain-http LNURL callbacks")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	if c.RateAPIURL == "" {
		log.Warn().Msg("RATE_API_URL is empty: devices priced in fiat will fail to create payments")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &cfg, nil
}
