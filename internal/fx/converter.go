// Package fx converts fiat switch prices to millisatoshis using an external
// BTC price source, with a redis cache in front of it.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/zoosats/devicetimer/internal/redis"
)

// BaseCurrency is the unit that needs no conversion.
const BaseCurrency = "sat"

const msatPerBTC = 1e11

// SupportedCurrencies is the fiat set the rate source quotes BTC in. Served
// by the currencies listing endpoint; devices priced in anything else are
// rejected at creation time.
var SupportedCurrencies = []string{
	"AUD", "BRL", "CAD", "CHF", "CZK", "DKK", "EUR", "GBP", "HKD", "HUF",
	"INR", "JPY", "MXN", "NOK", "NZD", "PLN", "SEK", "SGD", "USD", "ZAR",
}

func IsSupportedCurrency(code string) bool {
	if code == BaseCurrency {
		return true
	}
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

type Converter struct {
	rateURL  string
	cacheTTL time.Duration
	redis    *redisclient.Client
	http     *http.Client
}

func NewConverter(rateURL string, cacheTTL time.Duration, redis *redisclient.Client) *Converter {
	return &Converter{
		rateURL:  rateURL,
		cacheTTL: cacheTTL,
		redis:    redis,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// FiatToMsat converts an amount in the given currency to millisatoshis.
// Amounts already denominated in sat pass through untouched.
func (c *Converter) FiatToMsat(ctx context.Context, amount float64, currency string) (int64, error) {
	if currency == BaseCurrency {
		return int64(math.Round(amount * 1000)), nil
	}

	price, err := c.btcPrice(ctx, currency)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive BTC price %f for %s", price, currency)
	}

	return int64(math.Round(amount / price * msatPerBTC)), nil
}

// btcPrice returns the BTC price in the given fiat currency, consulting the
// redis cache before the upstream source.
func (c *Converter) btcPrice(ctx context.Context, currency string) (float64, error) {
	key := redisclient.RateKey(currency)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		if price, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
			return price, nil
		}
	} else if err != goredis.Nil {
		log.Warn().Err(err).Str("currency", currency).Msg("rate cache read failed, querying source")
	}

	price, err := c.Refresh(ctx, currency)
	if err != nil {
		return 0, err
	}
	return price, nil
}

type rateResponse struct {
	Price float64 `json:"price"`
}

// Refresh queries the upstream rate source and stores the result in the
// cache. Also called periodically by the rate refresh job so lnurl requests
// rarely pay the upstream round-trip.
func (c *Converter) Refresh(ctx context.Context, currency string) (float64, error) {
	if c.rateURL == "" {
		return 0, fmt.Errorf("no rate source configured for currency %s", currency)
	}

	reqURL := fmt.Sprintf("%s/price?currency=%s", c.rateURL, url.QueryEscape(currency))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("read rate response: %w", err)
	}

	var decoded rateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	if decoded.Price <= 0 {
		return 0, fmt.Errorf("rate source returned non-positive price for %s", currency)
	}

	if err := c.redis.Set(ctx, redisclient.RateKey(currency),
		strconv.FormatFloat(decoded.Price, 'f', -1, 64), c.cacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("currency", currency).Msg("rate cache write failed")
	}

	return decoded.Price, nil
}
