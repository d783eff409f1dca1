package staking

import (
	"github.com/holiman/uint256"

	"stakeledger/crypto"
)

// Pool is the shared accounting record for a staking program. Accumulator
// holds reward per staked unit scaled by AccumulatorPrecision and only ever
// grows.
type Pool struct {
	ID             crypto.Address
	Authority      crypto.Address
	Nonce          uint64
	PrincipalUnit  string
	RewardUnit     string
	PrincipalVault crypto.Address
	RewardVault    crypto.Address
	RewardRate     uint64
	TotalStaked    uint64
	Accumulator    *uint256.Int
	LastSettledAt  int64
	LockDuration   int64
	Active         bool
	CreatedAt      int64
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.Accumulator = cloneAccumulator(p.Accumulator)
	return &out
}

// Stake is a single participant's position inside a pool.
type Stake struct {
	ID               string
	Pool             crypto.Address
	Owner            crypto.Address
	Amount           uint64
	Checkpoint       *uint256.Int
	UnclaimedRewards uint64
	StakedAt         int64
	UnlockAt         int64
	Active           bool
}

// Clone returns a deep copy of the stake.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	out := *s
	out.Checkpoint = cloneAccumulator(s.Checkpoint)
	return &out
}

// Unlocked reports whether the lock window has elapsed at now.
func (s *Stake) Unlocked(now int64) bool {
	return s != nil && now >= s.UnlockAt
}

// PoolParams describes a pool to be created.
type PoolParams struct {
	Authority     crypto.Address
	PrincipalUnit string
	RewardUnit    string
	RewardRate    uint64
	// LockDuration in seconds. Zero selects DefaultLockDuration.
	LockDuration int64
}

func (p PoolParams) normalized() PoolParams {
	p.PrincipalUnit = normalizeUnit(p.PrincipalUnit)
	p.RewardUnit = normalizeUnit(p.RewardUnit)
	if p.LockDuration == 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// Limits bounds the parameters accepted by the engine. Operators may tighten
// the defaults but never widen them past the module constants.
type Limits struct {
	MinStakeAmount  uint64
	MaxStakeAmount  uint64
	MinRewardRate   uint64
	MaxRewardRate   uint64
	MinLockDuration int64
	MaxLockDuration int64
}

// DefaultLimits returns the module-wide bounds.
func DefaultLimits() Limits {
	return Limits{
		MinStakeAmount:  MinStakeAmount,
		MaxStakeAmount:  MaxStakeAmount,
		MinRewardRate:   MinRewardRate,
		MaxRewardRate:   MaxRewardRate,
		MinLockDuration: MinLockDuration,
		MaxLockDuration: MaxLockDuration,
	}
}

// Validate rejects empty, inverted or out-of-module ranges.
func (l Limits) Validate() error {
	switch {
	case l.MinStakeAmount == 0 || l.MinStakeAmount > l.MaxStakeAmount:
		return wrapf(ErrInvalidParameter, "stake amount range [%d, %d]", l.MinStakeAmount, l.MaxStakeAmount)
	case l.MinStakeAmount < MinStakeAmount || l.MaxStakeAmount > MaxStakeAmount:
		return wrapf(ErrInvalidParameter, "stake amount range exceeds module bounds")
	case l.MinRewardRate == 0 || l.MinRewardRate > l.MaxRewardRate:
		return wrapf(ErrInvalidParameter, "reward rate range [%d, %d]", l.MinRewardRate, l.MaxRewardRate)
	case l.MinRewardRate < MinRewardRate || l.MaxRewardRate > MaxRewardRate:
		return wrapf(ErrInvalidParameter, "reward rate range exceeds module bounds")
	case l.MinLockDuration <= 0 || l.MinLockDuration > l.MaxLockDuration:
		return wrapf(ErrInvalidParameter, "lock duration range [%d, %d]", l.MinLockDuration, l.MaxLockDuration)
	case l.MinLockDuration < MinLockDuration || l.MaxLockDuration > MaxLockDuration:
		return wrapf(ErrInvalidParameter, "lock duration range exceeds module bounds")
	}
	return nil
}

func (l Limits) checkStakeAmount(amount uint64) error {
	if amount < l.MinStakeAmount {
		return wrapf(ErrStakeTooSmall, "%d < %d", amount, l.MinStakeAmount)
	}
	if amount > l.MaxStakeAmount {
		return wrapf(ErrStakeTooLarge, "%d > %d", amount, l.MaxStakeAmount)
	}
	return nil
}

func (l Limits) checkPool(params PoolParams) error {
	if params.RewardRate < l.MinRewardRate || params.RewardRate > l.MaxRewardRate {
		return wrapf(ErrInvalidRewardRate, "%d not in [%d, %d]", params.RewardRate, l.MinRewardRate, l.MaxRewardRate)
	}
	if params.LockDuration < l.MinLockDuration || params.LockDuration > l.MaxLockDuration {
		return wrapf(ErrInvalidLockDuration, "%d not in [%d, %d]", params.LockDuration, l.MinLockDuration, l.MaxLockDuration)
	}
	return nil
}

// UnstakeResult reports the amounts released by a withdrawal.
type UnstakeResult struct {
	PrincipalPaid uint64
	RewardPaid    uint64
}

// StakeSummary is a read-only projection of a stake at a point in time.
type StakeSummary struct {
	Pool               crypto.Address
	Owner              crypto.Address
	StakeID            string
	Amount             uint64
	UnclaimedRewards   uint64
	PendingRewards     uint64
	TotalRewards       uint64
	StakedAt           int64
	UnlockAt           int64
	SecondsUntilUnlock int64
	CanUnstake         bool
	Active             bool
}

// PoolStats summarises a pool for dashboards and the keeper.
type PoolStats struct {
	Pool               crypto.Address
	TotalStaked        uint64
	RewardRate         uint64
	AprPercent         uint64
	DailyEmission      uint64
	Accumulator        *uint256.Int
	PendingAccumulator *uint256.Int
	LastSettledAt      int64
	SecondsSinceSettle int64
	Age                int64
	Active             bool
}
