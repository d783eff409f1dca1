package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
	"stakeledger/observability"
)

// Engine is the subset of the staking engine the keeper drives.
type Engine interface {
	PoolsNeedingSettle(ctx context.Context, minInterval int64) ([]crypto.Address, error)
	Settle(ctx context.Context, poolID crypto.Address) (bool, error)
	Audit(ctx context.Context, poolID crypto.Address) error
}

// Config tunes the settlement loop.
type Config struct {
	Interval    time.Duration
	MinInterval time.Duration
	Audit       bool
}

// Keeper periodically settles pools whose accumulator has not been advanced
// for at least MinInterval, so that idle pools keep an accurate view for
// queries without waiting for a participant to touch them.
type Keeper struct {
	engine  Engine
	cfg     Config
	logger  *slog.Logger
	metrics *observability.StakingMetrics
	once    sync.Once
}

// New constructs a keeper.
func New(engine Engine, cfg Config, logger *slog.Logger) (*Keeper, error) {
	if engine == nil {
		return nil, fmt.Errorf("keeper: engine required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("keeper: interval must be positive")
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{engine: engine, cfg: cfg, logger: logger.With("component", "keeper"), metrics: observability.Staking()}, nil
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	if k == nil {
		return fmt.Errorf("keeper not configured")
	}
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	k.once.Do(func() {
		k.logger.Info("keeper started", "interval", k.cfg.Interval.String(), "min_interval", k.cfg.MinInterval.String())
	})
	for {
		if _, err := k.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("keeper tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one selection and settlement pass and returns how many pools
// advanced. Failures on individual pools are logged and counted; the first
// one is returned after the pass completes.
func (k *Keeper) Tick(ctx context.Context) (int, error) {
	pools, err := k.engine.PoolsNeedingSettle(ctx, int64(k.cfg.MinInterval/time.Second))
	if err != nil {
		if errors.Is(err, nativecommon.ErrModulePaused) {
			return 0, nil
		}
		return 0, fmt.Errorf("select pools: %w", err)
	}
	var (
		advanced int
		firstErr error
	)
	for _, poolID := range pools {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		ok, err := k.engine.Settle(ctx, poolID)
		k.metrics.KeeperSettlement(err)
		if err != nil {
			if errors.Is(err, nativecommon.ErrModulePaused) {
				return advanced, nil
			}
			k.logger.Warn("settle failed", "pool", poolID.String(), "error", err, "code", staking.CodeOf(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			advanced++
		}
		if k.cfg.Audit {
			if err := k.engine.Audit(ctx, poolID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if advanced > 0 {
		k.logger.Debug("keeper settled pools", "count", advanced)
	}
	return advanced, firstErr
}
