package staking

import (
	"context"
	"errors"

	"stakeledger/crypto"
)

// moveFunds applies transfers as a unit. Batch-capable custody applies them
// atomically; otherwise legs run in order and the applied prefix is reversed
// when a later leg fails. Zero-amount legs are skipped.
func (e *Engine) moveFunds(ctx context.Context, transfers []Transfer) error {
	legs := nonZero(transfers)
	if len(legs) == 0 {
		return nil
	}
	if batch, ok := e.custody.(BatchCustody); ok {
		return batch.TransferBatch(ctx, legs)
	}
	for i, t := range legs {
		if err := e.custody.Transfer(ctx, t); err != nil {
			e.revertFunds(ctx, legs[:i])
			return &TransferError{Index: i, Transfer: t, Err: err}
		}
	}
	return nil
}

// revertFunds undoes already-applied transfers, newest first. A failed
// reversal leaves custody and ledger out of step and is reported as an
// invariant violation.
func (e *Engine) revertFunds(ctx context.Context, applied []Transfer) {
	for i := len(applied) - 1; i >= 0; i-- {
		reverse := applied[i].Reverse()
		if err := e.custody.Transfer(context.WithoutCancel(ctx), reverse); err != nil {
			e.metrics.InvariantViolation("compensation_failed")
			e.logger.Error("staking custody compensation failed",
				"invariant", "custody_compensation",
				"unit", reverse.Unit,
				"from", reverse.From.String(),
				"to", reverse.To.String(),
				"amount", reverse.Amount,
				"error", err)
		}
	}
}

func nonZero(transfers []Transfer) []Transfer {
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Amount > 0 {
			out = append(out, t)
		}
	}
	return out
}

// updateWithFunds runs fn in a store transaction. fn moves funds through the
// supplied move function; if the transaction then fails to commit, every
// transfer already applied is reversed so custody matches the ledger again.
func (e *Engine) updateWithFunds(ctx context.Context, fn func(ctx context.Context, tx Tx, move func(...Transfer) error) error) error {
	var applied []Transfer
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, tx, func(transfers ...Transfer) error {
			if err := e.moveFunds(ctx, transfers); err != nil {
				return err
			}
			if enlisted, ok := e.custody.(TransactionalCustody); ok && enlisted.Enlisted(ctx) {
				return nil
			}
			applied = append(applied, nonZero(transfers)...)
			return nil
		})
	})
	if err != nil && len(applied) > 0 {
		e.logger.Warn("staking commit failed after custody transfer, reversing",
			"transfers", len(applied),
			"error", err)
		e.revertFunds(ctx, applied)
	}
	return err
}

// transferLeg reports which leg of a move failed, or -1 when unknown.
func transferLeg(err error) int {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Index
	}
	return -1
}

// covers reports whether holder owns at least amount units, along with the
// observed balance.
func (e *Engine) covers(ctx context.Context, unit string, holder crypto.Address, amount uint64) (bool, uint64, error) {
	if amount == 0 {
		return true, 0, nil
	}
	balance, err := e.custody.Balance(ctx, unit, holder)
	if err != nil {
		return false, 0, err
	}
	return balance >= amount, balance, nil
}

// custodyError maps a custody shortfall onto the engine error describing it.
func custodyError(err error, shortfall *Error) error {
	if err == nil || errors.Is(err, shortfall) {
		return err
	}
	if errors.Is(err, ErrInsufficientBalance) {
		return wrapf(shortfall, "%v", err)
	}
	return err
}
