package staking

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// Unstake withdraws the caller's whole position once its lock window has
// elapsed, paying out principal and every reward accrued so far. Either both
// payouts happen and the position closes, or nothing changes.
func (e *Engine) Unstake(ctx context.Context, caller, poolID crypto.Address) (result UnstakeResult, err error) {
	ctx, op := e.startOp(ctx, "unstake", attribute.String("staking.pool", poolID.String()))
	defer func() { op.end(err) }()

	if err := e.ready(); err != nil {
		return UnstakeResult{}, err
	}
	if err := e.guard(); err != nil {
		return UnstakeResult{}, err
	}

	unlock := e.locks.lock(poolID.String())
	defer unlock()

	now := e.now()
	var remaining uint64
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
		if stake.Amount == 0 {
			return ErrCannotUnstakeZero
		}
		if !stake.Unlocked(now) {
			return wrapf(ErrStakeLocked, "unlocks at %d, now %d", stake.UnlockAt, now)
		}
		if err := SettlePool(pool, now); err != nil {
			return err
		}
		if err := SettleStake(stake, pool); err != nil {
			return err
		}
		principal := stake.Amount
		rewards := stake.UnclaimedRewards
		total, err := safeSub(pool.TotalStaked, principal)
		if err != nil {
			e.reportDivergence(pool, "total_staked_underflow", principal, pool.TotalStaked)
			return wrapf(ErrInvariantViolation, "total staked %d below position %d", pool.TotalStaked, principal)
		}

		ok, balance, err := e.covers(ctx, pool.PrincipalUnit, pool.PrincipalVault, principal)
		if err != nil {
			return err
		}
		if !ok {
			e.reportDivergence(pool, "vault_divergence", principal, balance)
			return wrapf(ErrInsufficientVaultBalance, "vault holds %d, owes %d", balance, principal)
		}
		ok, balance, err = e.covers(ctx, pool.RewardUnit, pool.RewardVault, rewards)
		if err != nil {
			return err
		}
		if !ok {
			return wrapf(ErrInsufficientRewardTokens, "reward vault holds %d, owes %d", balance, rewards)
		}

		pool.TotalStaked = total
		stake.Amount = 0
		stake.UnclaimedRewards = 0
		stake.Active = false
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		if err := tx.PutStake(stake); err != nil {
			return err
		}
		err = move(
			Transfer{Unit: pool.PrincipalUnit, From: pool.PrincipalVault, To: caller, Amount: principal},
			Transfer{Unit: pool.RewardUnit, From: pool.RewardVault, To: caller, Amount: rewards},
		)
		if err != nil {
			if transferLeg(err) == 0 {
				e.reportDivergence(pool, "vault_divergence", principal, 0)
				return custodyError(err, ErrInsufficientVaultBalance)
			}
			return custodyError(err, ErrInsufficientRewardTokens)
		}
		result = UnstakeResult{PrincipalPaid: principal, RewardPaid: rewards}
		remaining = pool.TotalStaked
		return nil
	})
	if err != nil {
		return UnstakeResult{}, err
	}
	e.metrics.SetTotalStaked(poolID.String(), remaining)
	e.metrics.AddRewardsPaid(poolID.String(), result.RewardPaid)
	e.emit(events.Unstaked{
		Pool:          poolID.String(),
		Owner:         caller.String(),
		PrincipalPaid: result.PrincipalPaid,
		RewardPaid:    result.RewardPaid,
		TotalStaked:   remaining,
	})
	return result, nil
}

// reportDivergence records a ledger/custody mismatch. These are never
// retried: an operator has to reconcile the vault.
func (e *Engine) reportDivergence(pool *Pool, kind string, owed, available uint64) {
	e.metrics.InvariantViolation(kind)
	e.logger.Error("staking ledger diverged from custody",
		"invariant", kind,
		"pool", pool.ID.String(),
		"vault", pool.PrincipalVault.String(),
		"owed", owed,
		"available", available)
}
