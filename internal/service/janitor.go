package service

import (
	"context"
	"time"

	"iot-measurement-backend/internal/metrics"
	pkglog "iot-measurement-backend/pkg/log"
)

// TokenJanitor periodically deletes refresh tokens past expiry and reset tokens
// that are expired or used. Revoked refresh tokens are kept until they expire so
// reuse of a rotated secret can still be recognised.
type TokenJanitor struct {
	refresh  RefreshTokenStore
	resets   ResetTokenStore
	metrics  *metrics.Metrics
	logger   pkglog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewTokenJanitor(refresh RefreshTokenStore, resets ResetTokenStore, m *metrics.Metrics, logger pkglog.Logger, interval time.Duration) *TokenJanitor {
	return &TokenJanitor{
		refresh:  refresh,
		resets:   resets,
		metrics:  m,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs Prune on every tick until ctx is cancelled. A zero interval disables the janitor.
func (j *TokenJanitor) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info().Msg("token janitor disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("token janitor started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("token janitor stopped")
			return
		case <-ticker.C:
			if _, _, err := j.Prune(ctx); err != nil {
				j.logger.Error().Err(err).Msg("token janitor run failed")
			}
		}
	}
}

// Prune performs one cleanup pass and reports how many rows of each kind were removed.
func (j *TokenJanitor) Prune(ctx context.Context) (refreshPruned, resetPruned int64, err error) {
	cutoff := j.now().UTC()

	refreshPruned, err = j.refresh.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	resetPruned, err = j.resets.DeleteStale(ctx, cutoff)
	if err != nil {
		return refreshPruned, 0, err
	}

	if j.metrics != nil {
		j.metrics.JanitorPruned.WithLabelValues("refresh").Add(float64(refreshPruned))
		j.metrics.JanitorPruned.WithLabelValues("reset").Add(float64(resetPruned))
	}
	if refreshPruned > 0 || resetPruned > 0 {
		j.logger.Debug().
			Int64("refresh_tokens", refreshPruned).
			Int64("reset_tokens", resetPruned).
			Msg("pruned stale tokens")
	}
	return refreshPruned, resetPruned, nil
}
