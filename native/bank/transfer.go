package bank

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability"
)

type balanceKey struct {
	unit   string
	holder string
}

// Ledger is an in-memory custody backend. Every transfer, single or batched,
// is exact and atomic.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
	vaults   map[balanceKey]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]uint64),
		vaults:   make(map[balanceKey]struct{}),
	}
}

func keyFor(unit string, holder crypto.Address) balanceKey {
	return balanceKey{unit: strings.ToUpper(strings.TrimSpace(unit)), holder: holder.String()}
}

// Mint credits amount units to holder. It is how participants and reward
// vaults are funded.
func (l *Ledger) Mint(unit string, holder crypto.Address, amount uint64) error {
	if holder.IsZero() {
		return fmt.Errorf("bank: mint holder required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := keyFor(unit, holder)
	current := l.balances[key]
	if current > math.MaxUint64-amount {
		return fmt.Errorf("bank: mint overflows balance of %s", holder)
	}
	l.balances[key] = current + amount
	return nil
}

// Balance implements staking.Custody.
func (l *Ledger) Balance(_ context.Context, unit string, holder crypto.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[keyFor(unit, holder)], nil
}

// OpenVault implements staking.VaultOpener. Reopening a vault is a no-op.
func (l *Ledger) OpenVault(_ context.Context, unit string, vault crypto.Address) error {
	if vault.IsZero() {
		return fmt.Errorf("bank: vault address required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults[keyFor(unit, vault)] = struct{}{}
	return nil
}

// HasVault reports whether OpenVault was called for the unit and address.
func (l *Ledger) HasVault(unit string, vault crypto.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.vaults[keyFor(unit, vault)]
	return ok
}

// Transfer implements staking.Custody.
func (l *Ledger) Transfer(ctx context.Context, transfer staking.Transfer) error {
	return l.TransferBatch(ctx, []staking.Transfer{transfer})
}

// TransferBatch implements staking.BatchCustody. Either every transfer is
// applied or none is.
func (l *Ledger) TransferBatch(_ context.Context, transfers []staking.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[balanceKey]uint64)
	read := func(key balanceKey) uint64 {
		if v, ok := staged[key]; ok {
			return v
		}
		return l.balances[key]
	}
	for i, t := range transfers {
		if err := validateTransfer(t); err != nil {
			return &staking.TransferError{Index: i, Transfer: t, Err: err}
		}
		from, to := keyFor(t.Unit, t.From), keyFor(t.Unit, t.To)
		available := read(from)
		if available < t.Amount {
			return &staking.TransferError{Index: i, Transfer: t, Err: fmt.Errorf("bank: %w: %s holds %d %s, needs %d",
				staking.ErrInsufficientBalance, t.From, available, from.unit, t.Amount)}
		}
		staged[from] = available - t.Amount
		received := read(to)
		if received > math.MaxUint64-t.Amount {
			return &staking.TransferError{Index: i, Transfer: t, Err: fmt.Errorf("bank: credit overflows balance of %s", t.To)}
		}
		staged[to] = received + t.Amount
	}
	for key, value := range staged {
		if value == 0 {
			delete(l.balances, key)
			continue
		}
		l.balances[key] = value
	}
	for _, t := range transfers {
		observability.Events().RecordTransfer(t.Unit)
	}
	return nil
}

func validateTransfer(t staking.Transfer) error {
	if strings.TrimSpace(t.Unit) == "" {
		return fmt.Errorf("bank: transfer unit required")
	}
	if t.From.IsZero() || t.To.IsZero() {
		return fmt.Errorf("bank: transfer endpoints required")
	}
	return nil
}
