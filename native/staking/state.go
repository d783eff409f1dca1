package staking

import (
	"context"
	"fmt"

	"stakeledger/crypto"
)

// Store persists pools and stakes. Update runs fn inside one transaction and
// commits only when fn returns nil; the context handed to fn carries the
// transaction so enlisted custody backends can join it. View runs fn
// read-only.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the records visible inside a store transaction. Implementations
// backed by a database lock the pool row on GetPool and the stake row on
// GetStake for the remainder of an Update.
type Tx interface {
	GetPool(id crypto.Address) (*Pool, bool, error)
	PutPool(pool *Pool) error
	GetStake(pool, owner crypto.Address) (*Stake, bool, error)
	PutStake(stake *Stake) error
	ListPools() ([]*Pool, error)
	ListStakes(pool crypto.Address) ([]*Stake, error)
	CountPoolsByAuthority(authority crypto.Address) (uint64, error)
}

// Transfer moves Amount units of Unit between two custody holders.
type Transfer struct {
	Unit   string
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

// Reverse returns the transfer that undoes t.
func (t Transfer) Reverse() Transfer {
	return Transfer{Unit: t.Unit, From: t.To, To: t.From, Amount: t.Amount}
}

// Custody moves value between participants and pool vaults. Transfers must
// be exact and atomic; a transfer the source cannot cover fails with an error
// wrapping ErrInsufficientBalance.
type Custody interface {
	Transfer(ctx context.Context, transfer Transfer) error
	Balance(ctx context.Context, unit string, holder crypto.Address) (uint64, error)
}

// BatchCustody applies several transfers as one all-or-nothing move.
type BatchCustody interface {
	Custody
	TransferBatch(ctx context.Context, transfers []Transfer) error
}

// TransactionalCustody is implemented by custody backends that apply
// transfers inside the store transaction carried by ctx. Enlisted transfers
// commit or roll back together with the ledger records.
type TransactionalCustody interface {
	Enlisted(ctx context.Context) bool
}

// VaultOpener is implemented by custody backends that must provision a vault
// before it can receive funds.
type VaultOpener interface {
	OpenVault(ctx context.Context, unit string, vault crypto.Address) error
}

// TransferError identifies the leg of a multi-transfer move that failed.
type TransferError struct {
	Index    int
	Transfer Transfer
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %d (%s %s -> %s): %v", e.Index, e.Transfer.Unit, e.Transfer.From, e.Transfer.To, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Authorizer decides who may open pools. Pool administration after creation
// is reserved to the pool authority.
type Authorizer interface {
	AuthorizeCreatePool(ctx context.Context, caller crypto.Address) error
}

// AllowAll authorises every caller.
type AllowAll struct{}

// AuthorizeCreatePool implements Authorizer.
func (AllowAll) AuthorizeCreatePool(context.Context, crypto.Address) error { return nil }

// AllowList authorises only the listed participants.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from addresses.
func NewAllowList(addrs ...crypto.Address) AllowList {
	out := make(AllowList, len(addrs))
	for _, addr := range addrs {
		out[addr.String()] = struct{}{}
	}
	return out
}

// AuthorizeCreatePool implements Authorizer.
func (a AllowList) AuthorizeCreatePool(_ context.Context, caller crypto.Address) error {
	if _, ok := a[caller.String()]; !ok {
		return wrapf(ErrUnauthorized, "%s may not create pools", caller)
	}
	return nil
}
