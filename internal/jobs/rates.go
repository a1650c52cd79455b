package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RateSource refreshes the cached BTC price for one currency.
type RateSource interface {
	Refresh(ctx context.Context, currency string) (float64, error)
}

// RateRefreshJob keeps the FX cache warm so lnurl requests rarely wait on
// the upstream price source.
type RateRefreshJob struct {
	source     RateSource
	currencies []string
	interval   time.Duration
	done       chan struct{}
}

func NewRateRefreshJob(source RateSource, currencies []string, interval time.Duration) *RateRefreshJob {
	return &RateRefreshJob{
		source:     source,
		currencies: currencies,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *RateRefreshJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("currencies", len(j.currencies)).Msg("rate refresh job started")
}

func (j *RateRefreshJob) Stop() {
	close(j.done)
	log.Info().Msg("rate refresh job stopped")
}

func (j *RateRefreshJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.refresh()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *RateRefreshJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, currency := range j.currencies {
		if _, err := j.source.Refresh(ctx, currency); err != nil {
			log.Warn().Err(err).Str("currency", currency).Msg("rate refresh failed")
		}
	}
}
