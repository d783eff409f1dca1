package staking

import "github.com/holiman/uint256"

// SettlePool brings the pool accumulator up to now. Empty pools only move
// their settlement timestamp: with nothing staked no reward is generated. The
// pool is left untouched when an error is returned.
func SettlePool(pool *Pool, now int64) error {
	if pool == nil {
		return ErrPoolNotFound
	}
	if now < pool.LastSettledAt {
		return wrapf(ErrInvalidTimestamp, "now %d before last settlement %d", now, pool.LastSettledAt)
	}
	if pool.TotalStaked == 0 {
		pool.LastSettledAt = now
		return nil
	}
	delta, err := accumulatorDelta(pool.RewardRate, now-pool.LastSettledAt, pool.TotalStaked)
	if err != nil {
		return err
	}
	current := cloneAccumulator(pool.Accumulator)
	next, overflow := new(uint256.Int).AddOverflow(current, delta)
	if overflow {
		return ErrMathOverflow
	}
	pool.Accumulator = next
	pool.LastSettledAt = now
	return nil
}

// SettleStake credits the stake with everything accrued since its checkpoint
// and moves the checkpoint to the pool accumulator. SettlePool must run first.
func SettleStake(stake *Stake, pool *Pool) error {
	if stake == nil || pool == nil {
		return ErrNoActiveStake
	}
	owed, err := rewardOwed(stake.Amount, pool.Accumulator, stake.Checkpoint)
	if err != nil {
		return err
	}
	unclaimed, err := safeAdd(stake.UnclaimedRewards, owed)
	if err != nil {
		return err
	}
	stake.UnclaimedRewards = unclaimed
	stake.Checkpoint = cloneAccumulator(pool.Accumulator)
	return nil
}

// PreviewAccumulator returns the accumulator the pool would hold if settled at
// now, without modifying it. Timestamps before the last settlement preview the
// stored value.
func PreviewAccumulator(pool *Pool, now int64) (*uint256.Int, error) {
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if now < pool.LastSettledAt {
		return cloneAccumulator(pool.Accumulator), nil
	}
	preview := pool.Clone()
	if err := SettlePool(preview, now); err != nil {
		return nil, err
	}
	return preview.Accumulator, nil
}

// PendingRewards reports the rewards accrued by stake since its checkpoint if
// the pool were settled at now. Unclaimed rewards are not included.
func PendingRewards(stake *Stake, pool *Pool, now int64) (uint64, error) {
	if stake == nil || !stake.Active || stake.Amount == 0 {
		return 0, nil
	}
	acc, err := PreviewAccumulator(pool, now)
	if err != nil {
		return 0, err
	}
	return rewardOwed(stake.Amount, acc, stake.Checkpoint)
}
