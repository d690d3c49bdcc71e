// Package netwait blocks startup until the network can reach a probe
// address. The gate controller boots faster than the house wifi comes back
// after a power cut; anything sent into a dead network would be lost.
package netwait

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/config"
)

// Wait dials cfg.Probe over TCP until it answers, retrying with exponential
// backoff. It returns once a dial succeeds, or with an error when cfg.MaxWait
// elapses (zero retries until ctx is cancelled). An empty probe address
// returns immediately.
//
// onAttempt, when non-nil, runs before every dial so the caller can show
// progress, e.g. flash the indicator LED.
func Wait(ctx context.Context, cfg config.NetConfig, logger *zap.Logger, onAttempt func()) error {
	if cfg.Probe == "" {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxWait

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		if onAttempt != nil {
			onAttempt()
		}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Probe)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	notify := func(err error, next time.Duration) {
		logger.Info("net_probe_retry",
			zap.String("addr", cfg.Probe),
			zap.Int("attempt", attempt),
			zap.Duration("next_try_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("network probe %s: %w", cfg.Probe, err)
	}

	logger.Info("net_probe_ok",
		zap.String("addr", cfg.Probe),
		zap.Int("attempts", attempt),
		zap.Duration("waited", time.Since(start)))
	return nil
}
