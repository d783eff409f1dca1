package staking_test

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"stakeledger/core/events"
	"stakeledger/crypto"
	"stakeledger/native/bank"
	"stakeledger/native/staking"
)

// memStore is a copy-on-write transactional store used by the engine tests.
type memStore struct {
	mu         sync.Mutex
	pools      map[string]*staking.Pool
	stakes     map[string]*staking.Stake
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{pools: map[string]*staking.Pool{}, stakes: map[string]*staking.Stake{}}
}

func stakeKey(pool, owner crypto.Address) string { return pool.String() + "/" + owner.String() }

func (s *memStore) Update(ctx context.Context, fn func(ctx context.Context, tx staking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{pools: map[string]*staking.Pool{}, stakes: map[string]*staking.Stake{}}
	for k, v := range s.pools {
		tx.pools[k] = v.Clone()
	}
	for k, v := range s.stakes {
		tx.stakes[k] = v.Clone()
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.failCommit != nil {
		return s.failCommit
	}
	s.pools, s.stakes = tx.pools, tx.stakes
	return nil
}

func (s *memStore) View(ctx context.Context, fn func(tx staking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{pools: s.pools, stakes: s.stakes, readOnly: true})
}

type memTx struct {
	pools    map[string]*staking.Pool
	stakes   map[string]*staking.Stake
	readOnly bool
}

var errReadOnly = errors.New("memstore: read-only transaction")

func (tx *memTx) GetPool(id crypto.Address) (*staking.Pool, bool, error) {
	pool, ok := tx.pools[id.String()]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (tx *memTx) PutPool(pool *staking.Pool) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.pools[pool.ID.String()] = pool.Clone()
	return nil
}

func (tx *memTx) GetStake(pool, owner crypto.Address) (*staking.Stake, bool, error) {
	stake, ok := tx.stakes[stakeKey(pool, owner)]
	if !ok {
		return nil, false, nil
	}
	return stake.Clone(), true, nil
}

func (tx *memTx) PutStake(stake *staking.Stake) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.stakes[stakeKey(stake.Pool, stake.Owner)] = stake.Clone()
	return nil
}

func (tx *memTx) ListPools() ([]*staking.Pool, error) {
	out := make([]*staking.Pool, 0, len(tx.pools))
	for _, pool := range tx.pools {
		out = append(out, pool.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (tx *memTx) ListStakes(pool crypto.Address) ([]*staking.Stake, error) {
	var out []*staking.Stake
	for _, stake := range tx.stakes {
		if stake.Pool.Equal(pool) {
			out = append(out, stake.Clone())
		}
	}
	return out, nil
}

func (tx *memTx) CountPoolsByAuthority(authority crypto.Address) (uint64, error) {
	var n uint64
	for _, pool := range tx.pools {
		if pool.Authority.Equal(authority) {
			n++
		}
	}
	return n, nil
}

// sequentialCustody hides the batch interface of the wrapped ledger and can be
// told to fail the n-th transfer it sees.
type sequentialCustody struct {
	inner  *bank.Ledger
	failAt int64
	seen   atomic.Int64
}

var errCustodyDown = errors.New("custody unavailable")

func (c *sequentialCustody) Transfer(ctx context.Context, t staking.Transfer) error {
	if n := c.seen.Add(1); c.failAt > 0 && n == c.failAt {
		return errCustodyDown
	}
	return c.inner.Transfer(ctx, t)
}

func (c *sequentialCustody) Balance(ctx context.Context, unit string, holder crypto.Address) (uint64, error) {
	return c.inner.Balance(ctx, unit, holder)
}

const (
	principalUnit = "STK"
	rewardUnit    = "RWD"
	units         = uint64(1_000_000)
	fullRate      = staking.RatePrecision
)

type harness struct {
	t         *testing.T
	engine    *staking.Engine
	store     *memStore
	ledger    *bank.Ledger
	recorder  *events.Recorder
	clock     atomic.Int64
	authority crypto.Address
}

func participant(b byte) crypto.Address {
	return crypto.NewAddress(crypto.ParticipantPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		store:     newMemStore(),
		ledger:    bank.NewLedger(),
		recorder:  events.NewRecorder(0),
		authority: participant(0xAA),
	}
	h.engine = staking.NewEngine(h.store, h.ledger)
	h.engine.SetNowFunc(h.clock.Load)
	h.engine.SetEmitter(h.recorder)
	return h
}

func (h *harness) at(ts int64) { h.clock.Store(ts) }

func (h *harness) createPool(rate uint64, lock int64) *staking.Pool {
	h.t.Helper()
	pool, err := h.engine.CreatePool(context.Background(), staking.PoolParams{
		Authority:     h.authority,
		PrincipalUnit: principalUnit,
		RewardUnit:    rewardUnit,
		RewardRate:    rate,
		LockDuration:  lock,
	})
	if err != nil {
		h.t.Fatalf("create pool: %v", err)
	}
	return pool
}

func (h *harness) fund(unit string, holder crypto.Address, amount uint64) {
	h.t.Helper()
	if err := h.ledger.Mint(unit, holder, amount); err != nil {
		h.t.Fatalf("mint: %v", err)
	}
}

func (h *harness) balance(unit string, holder crypto.Address) uint64 {
	h.t.Helper()
	bal, err := h.ledger.Balance(context.Background(), unit, holder)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) stake(pool *staking.Pool, who crypto.Address, amount uint64) string {
	h.t.Helper()
	id, err := h.engine.Stake(context.Background(), who, pool.ID, amount)
	if err != nil {
		h.t.Fatalf("stake %d: %v", amount, err)
	}
	return id
}

func (h *harness) pool(id crypto.Address) *staking.Pool {
	h.t.Helper()
	pool, err := h.engine.Pool(context.Background(), id)
	if err != nil {
		h.t.Fatalf("load pool: %v", err)
	}
	return pool
}

func (h *harness) position(pool, owner crypto.Address) *staking.Stake {
	h.t.Helper()
	stake, err := h.engine.Position(context.Background(), pool, owner)
	if err != nil {
		h.t.Fatalf("load stake: %v", err)
	}
	return stake
}
