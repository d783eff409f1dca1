package staking

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// Stake deposits amount principal units from caller into the pool. The first
// deposit opens a position locked for the pool's lock duration; later
// deposits top the position up without moving its unlock time. It returns the
// identifier of the position.
func (e *Engine) Stake(ctx context.Context, caller, poolID crypto.Address, amount uint64) (stakeID string, err error) {
	ctx, op := e.startOp(ctx, "stake",
		attribute.String("staking.pool", poolID.String()),
		attribute.Int64("staking.amount", int64(amount)))
	defer func() { op.end(err) }()

	if err := e.ready(); err != nil {
		return "", err
	}
	if err := e.guard(); err != nil {
		return "", err
	}
	if caller.IsZero() {
		return "", wrapf(ErrInvalidAddress, "caller required")
	}
	if err := e.limits.checkStakeAmount(amount); err != nil {
		return "", err
	}

	unlock := e.locks.lock(poolID.String())
	defer unlock()

	now := e.now()
	var evt events.Staked
	var stakedTotal uint64
	err = e.updateWithFunds(ctx, func(ctx context.Context, tx Tx, move func(...Transfer) error) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		if !pool.Active {
			return wrapf(ErrPoolInactive, "%s", poolID)
		}
		if err := SettlePool(pool, now); err != nil {
			return err
		}
		stake, found, err := tx.GetStake(poolID, caller)
		if err != nil {
			return err
		}
		topUp := found && stake != nil && stake.Active
		if topUp {
			if err := SettleStake(stake, pool); err != nil {
				return err
			}
		} else {
			unlockAt, err := safeAddTime(now, pool.LockDuration)
			if err != nil {
				return err
			}
			stake = &Stake{
				ID:         uuid.NewString(),
				Pool:       poolID,
				Owner:      caller,
				Checkpoint: cloneAccumulator(pool.Accumulator),
				StakedAt:   now,
				UnlockAt:   unlockAt,
				Active:     true,
			}
		}
		newAmount, err := safeAdd(stake.Amount, amount)
		if err != nil {
			return err
		}
		total, err := safeAdd(pool.TotalStaked, amount)
		if err != nil {
			return err
		}
		ok, balance, err := e.covers(ctx, pool.PrincipalUnit, caller, amount)
		if err != nil {
			return err
		}
		if !ok {
			return wrapf(ErrInsufficientBalance, "balance %d < %d", balance, amount)
		}

		stake.Amount = newAmount
		pool.TotalStaked = total
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		if err := tx.PutStake(stake); err != nil {
			return err
		}
		if err := move(Transfer{Unit: pool.PrincipalUnit, From: caller, To: pool.PrincipalVault, Amount: amount}); err != nil {
			return custodyError(err, ErrInsufficientBalance)
		}

		stakeID = stake.ID
		stakedTotal = pool.TotalStaked
		evt = events.Staked{
			Pool:        poolID.String(),
			Owner:       caller.String(),
			StakeID:     stake.ID,
			Amount:      amount,
			NewAmount:   stake.Amount,
			TotalStaked: pool.TotalStaked,
			UnlockAt:    stake.UnlockAt,
			TopUp:       topUp,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	e.metrics.SetTotalStaked(poolID.String(), stakedTotal)
	e.emit(evt)
	return stakeID, nil
}
