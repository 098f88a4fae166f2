// Package retention purges messages older than a configured period on a
// cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := time.ParseDuration(cfg.Period)
	if err != nil || period <= 0 {
		return nil, fmt.Errorf("invalid retention period: %q", cfg.Period)
	}

	// default daily @02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", cfg.Period, "dry_run", cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr, period, st)
	return cancel, nil
}

// runScheduler computes the next tick for the configured cron expression
// and sleeps until that time.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, cronExpr string, period time.Duration, st *store.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, cfg, period, st); err != nil {
				logger.Error("retention_run_failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single purge pass in batches, sleeping between
// batches so compactions never starve foreground traffic.
func RunOnce(ctx context.Context, cfg config.RetentionConfig, period time.Duration, st *store.Store) error {
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	total := 0
	for {
		n, err := st.PurgeMessagesBefore(ctx, cutoff, cfg.BatchSize, cfg.DryRun)
		if err != nil {
			return err
		}
		total += n
		if cfg.DryRun || n < cfg.BatchSize {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(cfg.BatchSleepMs) * time.Millisecond):
		}
	}
	logger.Info("retention_run_complete", "purged", total, "dry_run", cfg.DryRun)
	return nil
}
