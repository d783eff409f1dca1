package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

type txKey struct{}

type activeTx struct {
	root *gorm.DB
	tx   *gorm.DB
}

func withTx(ctx context.Context, root, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, activeTx{root: root, tx: tx})
}

// txFrom returns the transaction opened on root that ctx carries, if any.
func txFrom(ctx context.Context, root *gorm.DB) (*gorm.DB, bool) {
	active, ok := ctx.Value(txKey{}).(activeTx)
	if !ok || active.root != root {
		return nil, false
	}
	return active.tx, true
}

// Store implements staking.Store on top of gorm. Pool and stake rows are
// locked FOR UPDATE on dialects that support it; SQLite serialises writers
// through its single connection instead.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened ledger database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Update implements staking.Store.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx staking.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, s.db, tx), &gormTx{db: tx, lock: supportsRowLocks(tx)})
	})
}

// View implements staking.Store.
func (s *Store) View(ctx context.Context, fn func(tx staking.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, readOnly: true})
	})
}

var errReadOnly = errors.New("ledger: write in read-only transaction")

type gormTx struct {
	db       *gorm.DB
	lock     bool
	readOnly bool
}

func (t *gormTx) query() *gorm.DB {
	if t.lock {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *gormTx) GetPool(id crypto.Address) (*staking.Pool, bool, error) {
	var rec PoolRecord
	err := t.query().Where("id = ?", id.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load pool: %w", err)
	}
	pool, err := rec.toPool()
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

func (t *gormTx) PutPool(pool *staking.Pool) error {
	if t.readOnly {
		return errReadOnly
	}
	rec := poolRecordFrom(pool)
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	return nil
}

func (t *gormTx) GetStake(pool, owner crypto.Address) (*staking.Stake, bool, error) {
	var rec StakeRecord
	err := t.query().Where("pool_id = ? AND owner = ?", pool.String(), owner.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load stake: %w", err)
	}
	stake, err := rec.toStake()
	if err != nil {
		return nil, false, err
	}
	return stake, true, nil
}

func (t *gormTx) PutStake(stake *staking.Stake) error {
	if t.readOnly {
		return errReadOnly
	}
	rec := stakeRecordFrom(stake)
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}, {Name: "owner"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save stake: %w", err)
	}
	return nil
}

func (t *gormTx) ListPools() ([]*staking.Pool, error) {
	var recs []PoolRecord
	if err := t.db.Order("opened_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	out := make([]*staking.Pool, 0, len(recs))
	for i := range recs {
		pool, err := recs[i].toPool()
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

func (t *gormTx) ListStakes(pool crypto.Address) ([]*staking.Stake, error) {
	var recs []StakeRecord
	if err := t.db.Where("pool_id = ?", pool.String()).Order("owner").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list stakes: %w", err)
	}
	out := make([]*staking.Stake, 0, len(recs))
	for i := range recs {
		stake, err := recs[i].toStake()
		if err != nil {
			return nil, err
		}
		out = append(out, stake)
	}
	return out, nil
}

func (t *gormTx) CountPoolsByAuthority(authority crypto.Address) (uint64, error) {
	var n int64
	if err := t.db.Model(&PoolRecord{}).Where("authority = ?", authority.String()).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pools: %w", err)
	}
	return uint64(n), nil
}

func poolRecordFrom(pool *staking.Pool) PoolRecord {
	return PoolRecord{
		ID:             pool.ID.String(),
		Authority:      pool.Authority.String(),
		Nonce:          pool.Nonce,
		PrincipalUnit:  pool.PrincipalUnit,
		RewardUnit:     pool.RewardUnit,
		PrincipalVault: pool.PrincipalVault.String(),
		RewardVault:    pool.RewardVault.String(),
		RewardRate:     pool.RewardRate,
		TotalStaked:    pool.TotalStaked,
		Accumulator:    staking.FormatAccumulator(pool.Accumulator),
		LastSettledAt:  pool.LastSettledAt,
		LockDuration:   pool.LockDuration,
		Active:         pool.Active,
		OpenedAt:       pool.CreatedAt,
	}
}

func (r PoolRecord) toPool() (*staking.Pool, error) {
	id, err := crypto.DecodeAddressWithPrefix(r.ID, crypto.PoolPrefix)
	if err != nil {
		return nil, fmt.Errorf("pool %q id: %w", r.ID, err)
	}
	authority, err := crypto.DecodeAddress(r.Authority)
	if err != nil {
		return nil, fmt.Errorf("pool %q authority: %w", r.ID, err)
	}
	principalVault, err := crypto.DecodeAddressWithPrefix(r.PrincipalVault, crypto.VaultPrefix)
	if err != nil {
		return nil, fmt.Errorf("pool %q principal vault: %w", r.ID, err)
	}
	rewardVault, err := crypto.DecodeAddressWithPrefix(r.RewardVault, crypto.VaultPrefix)
	if err != nil {
		return nil, fmt.Errorf("pool %q reward vault: %w", r.ID, err)
	}
	acc, err := staking.ParseAccumulator(r.Accumulator)
	if err != nil {
		return nil, fmt.Errorf("pool %q accumulator: %w", r.ID, err)
	}
	return &staking.Pool{
		ID:             id,
		Authority:      authority,
		Nonce:          r.Nonce,
		PrincipalUnit:  r.PrincipalUnit,
		RewardUnit:     r.RewardUnit,
		PrincipalVault: principalVault,
		RewardVault:    rewardVault,
		RewardRate:     r.RewardRate,
		TotalStaked:    r.TotalStaked,
		Accumulator:    acc,
		LastSettledAt:  r.LastSettledAt,
		LockDuration:   r.LockDuration,
		Active:         r.Active,
		CreatedAt:      r.OpenedAt,
	}, nil
}

func stakeRecordFrom(stake *staking.Stake) StakeRecord {
	return StakeRecord{
		PoolID:           stake.Pool.String(),
		Owner:            stake.Owner.String(),
		StakeID:          stake.ID,
		Amount:           stake.Amount,
		Checkpoint:       staking.FormatAccumulator(stake.Checkpoint),
		UnclaimedRewards: stake.UnclaimedRewards,
		StakedAt:         stake.StakedAt,
		UnlockAt:         stake.UnlockAt,
		Active:           stake.Active,
	}
}

func (r StakeRecord) toStake() (*staking.Stake, error) {
	pool, err := crypto.DecodeAddressWithPrefix(r.PoolID, crypto.PoolPrefix)
	if err != nil {
		return nil, fmt.Errorf("stake pool %q: %w", r.PoolID, err)
	}
	owner, err := crypto.DecodeAddress(r.Owner)
	if err != nil {
		return nil, fmt.Errorf("stake owner %q: %w", r.Owner, err)
	}
	checkpoint, err := staking.ParseAccumulator(r.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("stake checkpoint: %w", err)
	}
	return &staking.Stake{
		ID:               r.StakeID,
		Pool:             pool,
		Owner:            owner,
		Amount:           r.Amount,
		Checkpoint:       checkpoint,
		UnclaimedRewards: r.UnclaimedRewards,
		StakedAt:         r.StakedAt,
		UnlockAt:         r.UnlockAt,
		Active:           r.Active,
	}, nil
}
