package staking

import (
	"context"
	"sort"

	"stakeledger/crypto"
)

const secondsPerDay int64 = 24 * 60 * 60

// Pool returns a snapshot of the pool record.
func (e *Engine) Pool(ctx context.Context, poolID crypto.Address) (*Pool, error) {
	if e == nil || e.store == nil {
		return nil, ErrStateNotConfigured
	}
	var out *Pool
	err := e.store.View(ctx, func(tx Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		out = pool.Clone()
		return nil
	})
	return out, err
}

// Pools lists every pool ordered by creation time.
func (e *Engine) Pools(ctx context.Context) ([]*Pool, error) {
	if e == nil || e.store == nil {
		return nil, ErrStateNotConfigured
	}
	var out []*Pool
	err := e.store.View(ctx, func(tx Tx) error {
		pools, err := tx.ListPools()
		if err != nil {
			return err
		}
		out = make([]*Pool, 0, len(pools))
		for _, pool := range pools {
			out = append(out, pool.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Position returns the owner's stake record. Missing records report
// ErrNoActiveStake; closed positions are returned with Active unset.
func (e *Engine) Position(ctx context.Context, poolID, owner crypto.Address) (*Stake, error) {
	if e == nil || e.store == nil {
		return nil, ErrStateNotConfigured
	}
	var out *Stake
	err := e.store.View(ctx, func(tx Tx) error {
		stake, found, err := tx.GetStake(poolID, owner)
		if err != nil {
			return err
		}
		if !found || stake == nil {
			return wrapf(ErrNoActiveStake, "%s in %s", owner, poolID)
		}
		out = stake.Clone()
		return nil
	})
	return out, err
}

// StakeSummary projects the owner's position at the current time, including
// rewards accrued since the last settlement.
func (e *Engine) StakeSummary(ctx context.Context, poolID, owner crypto.Address) (StakeSummary, error) {
	if e == nil || e.store == nil {
		return StakeSummary{}, ErrStateNotConfigured
	}
	now := e.now()
	var summary StakeSummary
	err := e.store.View(ctx, func(tx Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		stake, found, err := tx.GetStake(poolID, owner)
		if err != nil {
			return err
		}
		if !found || stake == nil {
			return wrapf(ErrNoActiveStake, "%s in %s", owner, poolID)
		}
		pending, err := PendingRewards(stake, pool, now)
		if err != nil {
			return err
		}
		total, err := safeAdd(stake.UnclaimedRewards, pending)
		if err != nil {
			return err
		}
		summary = StakeSummary{
			Pool:             poolID,
			Owner:            owner,
			StakeID:          stake.ID,
			Amount:           stake.Amount,
			UnclaimedRewards: stake.UnclaimedRewards,
			PendingRewards:   pending,
			TotalRewards:     total,
			StakedAt:         stake.StakedAt,
			UnlockAt:         stake.UnlockAt,
			Active:           stake.Active,
		}
		if stake.Active {
			if now < stake.UnlockAt {
				summary.SecondsUntilUnlock = stake.UnlockAt - now
			}
			summary.CanUnstake = stake.Amount > 0 && stake.Unlocked(now)
		}
		return nil
	})
	return summary, err
}

// PoolStats reports the pool's headline figures at the current time.
func (e *Engine) PoolStats(ctx context.Context, poolID crypto.Address) (PoolStats, error) {
	if e == nil || e.store == nil {
		return PoolStats{}, ErrStateNotConfigured
	}
	now := e.now()
	var stats PoolStats
	err := e.store.View(ctx, func(tx Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		pending, err := PreviewAccumulator(pool, now)
		if err != nil {
			return err
		}
		stats = PoolStats{
			Pool:               poolID,
			TotalStaked:        pool.TotalStaked,
			RewardRate:         pool.RewardRate,
			AprPercent:         AprForRewardRate(pool.RewardRate, pool.TotalStaked),
			DailyEmission:      EmissionForPeriod(pool.RewardRate, secondsPerDay),
			Accumulator:        cloneAccumulator(pool.Accumulator),
			PendingAccumulator: pending,
			LastSettledAt:      pool.LastSettledAt,
			Active:             pool.Active,
		}
		if now > pool.LastSettledAt {
			stats.SecondsSinceSettle = now - pool.LastSettledAt
		}
		if now > pool.CreatedAt {
			stats.Age = now - pool.CreatedAt
		}
		return nil
	})
	return stats, err
}

// PoolsNeedingSettle lists active, non-empty pools whose last settlement is
// at least minInterval seconds old.
func (e *Engine) PoolsNeedingSettle(ctx context.Context, minInterval int64) ([]crypto.Address, error) {
	pools, err := e.Pools(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]crypto.Address, 0, len(pools))
	for _, pool := range pools {
		if !pool.Active || pool.TotalStaked == 0 {
			continue
		}
		if now-pool.LastSettledAt >= minInterval {
			out = append(out, pool.ID)
		}
	}
	return out, nil
}

// Audit checks the pool's bookkeeping against its stakes and custody: the
// active stakes must sum to TotalStaked and the principal vault must hold at
// least that much. Failures wrap ErrInvariantViolation and are reported.
func (e *Engine) Audit(ctx context.Context, poolID crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	var pool *Pool
	var sum uint64
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		pool, err = loadPool(tx, poolID)
		if err != nil {
			return err
		}
		stakes, err := tx.ListStakes(poolID)
		if err != nil {
			return err
		}
		for _, stake := range stakes {
			if !stake.Active {
				continue
			}
			if sum, err = safeAdd(sum, stake.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if sum != pool.TotalStaked {
		e.reportDivergence(pool, "total_staked_mismatch", pool.TotalStaked, sum)
		return wrapf(ErrInvariantViolation, "stakes sum to %d, pool records %d", sum, pool.TotalStaked)
	}
	ok, balance, err := e.covers(ctx, pool.PrincipalUnit, pool.PrincipalVault, pool.TotalStaked)
	if err != nil {
		return err
	}
	if !ok {
		e.reportDivergence(pool, "vault_divergence", pool.TotalStaked, balance)
		return wrapf(ErrInsufficientVaultBalance, "vault holds %d, pool records %d", balance, pool.TotalStaked)
	}
	return nil
}
