package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability"
)

// MaxBalance is the largest amount a balance row can hold. Balances live in
// signed 64-bit integer columns on every supported dialect.
const MaxBalance = math.MaxInt64

// Custody keeps balances in the ledger database. When called with a context
// produced by Store.Update on the same database it joins that transaction, so
// transfers and ledger records commit together.
type Custody struct {
	db *gorm.DB
}

// NewCustody wraps an opened ledger database.
func NewCustody(db *gorm.DB) *Custody {
	return &Custody{db: db}
}

func (c *Custody) conn(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx, c.db); ok {
		return tx
	}
	return c.db.WithContext(ctx)
}

func normalizeUnit(unit string) string {
	return strings.ToUpper(strings.TrimSpace(unit))
}

// Enlisted implements staking.TransactionalCustody.
func (c *Custody) Enlisted(ctx context.Context) bool {
	_, ok := txFrom(ctx, c.db)
	return ok
}

// Balance implements staking.Custody.
func (c *Custody) Balance(ctx context.Context, unit string, holder crypto.Address) (uint64, error) {
	var rec BalanceRecord
	err := c.conn(ctx).Where("unit = ? AND holder = ?", normalizeUnit(unit), holder.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return rec.Amount, nil
}

// Mint credits amount units to holder outside any staking operation. It
// funds participants and reward vaults.
func (c *Custody) Mint(ctx context.Context, unit string, holder crypto.Address, amount uint64) error {
	if holder.IsZero() || normalizeUnit(unit) == "" {
		return fmt.Errorf("ledger: mint requires unit and holder")
	}
	if amount > MaxBalance {
		return fmt.Errorf("ledger: %w: mint of %d exceeds %d", staking.ErrAmountOutOfRange, amount, uint64(MaxBalance))
	}
	return c.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, normalizeUnit(unit), holder.String(), amount)
	})
}

// OpenVault implements staking.VaultOpener.
func (c *Custody) OpenVault(ctx context.Context, unit string, vault crypto.Address) error {
	if vault.IsZero() {
		return fmt.Errorf("ledger: vault address required")
	}
	rec := VaultRecord{Unit: normalizeUnit(unit), Address: vault.String()}
	return c.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// Transfer implements staking.Custody.
func (c *Custody) Transfer(ctx context.Context, transfer staking.Transfer) error {
	return c.TransferBatch(ctx, []staking.Transfer{transfer})
}

// TransferBatch implements staking.BatchCustody.
func (c *Custody) TransferBatch(ctx context.Context, transfers []staking.Transfer) error {
	err := c.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for i, t := range transfers {
			if err := applyTransfer(tx, t); err != nil {
				return &staking.TransferError{Index: i, Transfer: t, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, t := range transfers {
		observability.Events().RecordTransfer(t.Unit)
	}
	return nil
}

// Transfers returns the audit trail for holder, newest first.
func (c *Custody) Transfers(ctx context.Context, holder crypto.Address, limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []TransferRecord
	err := c.conn(ctx).
		Where("source = ? OR destination = ?", holder.String(), holder.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return recs, nil
}

func applyTransfer(tx *gorm.DB, t staking.Transfer) error {
	unit := normalizeUnit(t.Unit)
	if unit == "" || t.From.IsZero() || t.To.IsZero() {
		return fmt.Errorf("ledger: transfer requires unit and endpoints")
	}
	if err := debit(tx, unit, t.From.String(), t.Amount); err != nil {
		return err
	}
	if err := credit(tx, unit, t.To.String(), t.Amount); err != nil {
		return err
	}
	return tx.Create(&TransferRecord{
		ID:          uuid.New(),
		Unit:        unit,
		Source:      t.From.String(),
		Destination: t.To.String(),
		Amount:      t.Amount,
	}).Error
}

func lockBalance(tx *gorm.DB, unit, holder string) (*BalanceRecord, error) {
	q := tx
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec BalanceRecord
	err := q.Where("unit = ? AND holder = ?", unit, holder).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return &rec, nil
}

func debit(tx *gorm.DB, unit, holder string, amount uint64) error {
	rec, err := lockBalance(tx, unit, holder)
	if err != nil {
		return err
	}
	var available uint64
	if rec != nil {
		available = rec.Amount
	}
	if available < amount {
		return fmt.Errorf("ledger: %w: %s holds %d %s, needs %d", staking.ErrInsufficientBalance, holder, available, unit, amount)
	}
	if amount == 0 {
		return nil
	}
	return tx.Model(&BalanceRecord{}).
		Where("unit = ? AND holder = ?", unit, holder).
		Update("amount", available-amount).Error
}

func credit(tx *gorm.DB, unit, holder string, amount uint64) error {
	rec, err := lockBalance(tx, unit, holder)
	if err != nil {
		return err
	}
	var current uint64
	if rec != nil {
		current = rec.Amount
	}
	if amount > MaxBalance || current > MaxBalance-amount {
		return fmt.Errorf("ledger: %w: credit of %d overflows %s balance of %s", staking.ErrMathOverflow, amount, unit, holder)
	}
	if rec == nil {
		return tx.Create(&BalanceRecord{Unit: unit, Holder: holder, Amount: amount}).Error
	}
	return tx.Model(&BalanceRecord{}).
		Where("unit = ? AND holder = ?", unit, holder).
		Update("amount", rec.Amount+amount).Error
}
