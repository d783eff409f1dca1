package staking

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// Settle advances the pool accumulator to the current time. Anyone may call
// it. Inactive and empty pools are left untouched, and a second call at the
// same timestamp changes nothing. It reports whether the accumulator moved.
func (e *Engine) Settle(ctx context.Context, poolID crypto.Address) (advanced bool, err error) {
	ctx, op := e.startOp(ctx, "settle", attribute.String("staking.pool", poolID.String()))
	defer func() { op.end(err) }()

	if e == nil || e.store == nil {
		return false, ErrStateNotConfigured
	}
	if err := e.guard(); err != nil {
		return false, err
	}

	unlock := e.locks.lock(poolID.String())
	defer unlock()

	now := e.now()
	var evt events.PoolSettled
	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		if !pool.Active || pool.TotalStaked == 0 {
			return nil
		}
		if now < pool.LastSettledAt {
			return wrapf(ErrInvalidTimestamp, "now %d before last settlement %d", now, pool.LastSettledAt)
		}
		if now == pool.LastSettledAt {
			return nil
		}
		previous := cloneAccumulator(pool.Accumulator)
		elapsed := now - pool.LastSettledAt
		if err := SettlePool(pool, now); err != nil {
			return err
		}
		if err := tx.PutPool(pool); err != nil {
			return err
		}
		advanced = pool.Accumulator.Gt(previous)
		evt = events.PoolSettled{
			Pool:                poolID.String(),
			PreviousAccumulator: FormatAccumulator(previous),
			Accumulator:         FormatAccumulator(pool.Accumulator),
			SettledAt:           now,
			Elapsed:             elapsed,
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if evt.Pool != "" {
		e.emit(evt)
	}
	return advanced, nil
}
