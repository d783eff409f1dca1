package staking

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// Claim pays out the caller's unclaimed rewards without touching principal.
// A position with nothing owed settles and returns zero. When the reward
// vault cannot cover the payout nothing is committed and the reward stays
// claimable.
func (e *Engine) Claim(ctx context.Context, caller, poolID crypto.Address) (paid uint64, err error) {
	ctx, op := e.startOp(ctx, "claim", attribute.String("staking.pool", poolID.String()))
	defer func() { op.end(err) }()

	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.guard(); err != nil {
		return 0, err
	}

	unlock := e.locks.lock(poolID.String())
	defer unlock()

	now := e.now()
	err = e.updateWithFunds(ctx, func(ctx context.Context, tx Tx, move func(...Transfer) error) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		stake, found, err := tx.GetStake(poolID, caller)
		if err != nil {
			return err
		}
		if !found || stake == nil || !stake.Active {
			return wrapf(ErrNoActiveStake, "%s in %s", caller, poolID)
		}
		if err := SettlePool(pool, now); err != nil {
			return err
		}
		if err := SettleStake(stake, pool); err != nil {
			return err
		}
		owed := stake.UnclaimedRewards
		if owed > 0 {
			ok, balance, err := e.covers(ctx, pool.RewardUnit, pool.RewardVault, owed)
			if err != nil {
				return err
			}
			if !ok {
				return wrapf(ErrInsufficientRewardTokens, "reward vault holds %d, owes %d", balance, owed)
			}
			stake.UnclaimedRewards = 0
		}
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		if err := tx.PutStake(stake); err != nil {
			return err
		}
		if err := move(Transfer{Unit: pool.RewardUnit, From: pool.RewardVault, To: caller, Amount: owed}); err != nil {
			return custodyError(err, ErrInsufficientRewardTokens)
		}
		paid = owed
		return nil
	})
	if err != nil {
		return 0, err
	}
	if paid > 0 {
		e.metrics.AddRewardsPaid(poolID.String(), paid)
		e.emit(events.RewardsClaimed{Pool: poolID.String(), Owner: caller.String(), Amount: paid})
	}
	return paid, nil
}
