package events

import (
	"strconv"

	"stakeledger/core/types"
)

const (
	// TypePoolCreated is emitted when an authority opens a new staking pool.
	TypePoolCreated = "staking.poolCreated"
	// TypePoolStatusChanged is emitted when a pool starts or stops accepting stakes.
	TypePoolStatusChanged = "staking.poolStatusChanged"
	// TypeStaked captures a first deposit or a top-up.
	TypeStaked = "staking.staked"
	// TypeUnstaked captures a full withdrawal of principal plus rewards.
	TypeUnstaked = "staking.unstaked"
	// TypeRewardsClaimed is emitted when unclaimed rewards are paid out.
	TypeRewardsClaimed = "staking.rewardsClaimed"
	// TypePoolSettled is emitted when an explicit settle advanced the accumulator.
	TypePoolSettled = "staking.poolSettled"
)

// PoolCreated describes a freshly allocated pool.
type PoolCreated struct {
	Pool           string
	Authority      string
	PrincipalUnit  string
	RewardUnit     string
	PrincipalVault string
	RewardVault    string
	RewardRate     uint64
	LockDuration   int64
	CreatedAt      int64
}

// EventType satisfies the Event interface.
func (PoolCreated) EventType() string { return TypePoolCreated }

// Event converts the structured payload into a broadcastable event.
func (e PoolCreated) Event() *types.Event {
	return &types.Event{
		Type: TypePoolCreated,
		Attributes: map[string]string{
			"pool":           e.Pool,
			"authority":      e.Authority,
			"principalUnit":  normalizeUnit(e.PrincipalUnit),
			"rewardUnit":     normalizeUnit(e.RewardUnit),
			"principalVault": e.PrincipalVault,
			"rewardVault":    e.RewardVault,
			"rewardRate":     uintToString(e.RewardRate),
			"lockDuration":   intToString(e.LockDuration),
			"createdAt":      intToString(e.CreatedAt),
		},
	}
}

// PoolStatusChanged captures an is_active toggle.
type PoolStatusChanged struct {
	Pool   string
	Active bool
	At     int64
}

// EventType satisfies the Event interface.
func (PoolStatusChanged) EventType() string { return TypePoolStatusChanged }

// Event converts the structured payload into a broadcastable event.
func (e PoolStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePoolStatusChanged,
		Attributes: map[string]string{
			"pool":   e.Pool,
			"active": strconv.FormatBool(e.Active),
			"at":     intToString(e.At),
		},
	}
}

// Staked captures a deposit into a pool.
type Staked struct {
	Pool        string
	Owner       string
	StakeID     string
	Amount      uint64
	NewAmount   uint64
	TotalStaked uint64
	UnlockAt    int64
	TopUp       bool
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	attrs := map[string]string{
		"pool":        e.Pool,
		"owner":       e.Owner,
		"amount":      uintToString(e.Amount),
		"newAmount":   uintToString(e.NewAmount),
		"totalStaked": uintToString(e.TotalStaked),
		"unlockAt":    intToString(e.UnlockAt),
		"topUp":       strconv.FormatBool(e.TopUp),
	}
	if e.StakeID != "" {
		attrs["stakeId"] = e.StakeID
	}
	return &types.Event{Type: TypeStaked, Attributes: attrs}
}

// Unstaked captures a completed withdrawal.
type Unstaked struct {
	Pool          string
	Owner         string
	PrincipalPaid uint64
	RewardPaid    uint64
	TotalStaked   uint64
}

// EventType satisfies the Event interface.
func (Unstaked) EventType() string { return TypeUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e Unstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeUnstaked,
		Attributes: map[string]string{
			"pool":          e.Pool,
			"owner":         e.Owner,
			"principalPaid": uintToString(e.PrincipalPaid),
			"rewardPaid":    uintToString(e.RewardPaid),
			"totalStaked":   uintToString(e.TotalStaked),
		},
	}
}

// RewardsClaimed captures a reward payout without principal movement.
type RewardsClaimed struct {
	Pool   string
	Owner  string
	Amount uint64
}

// EventType satisfies the Event interface.
func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsClaimed,
		Attributes: map[string]string{
			"pool":   e.Pool,
			"owner":  e.Owner,
			"amount": uintToString(e.Amount),
		},
	}
}

// PoolSettled captures an accumulator advance triggered by a public settle.
type PoolSettled struct {
	Pool                string
	PreviousAccumulator string
	Accumulator         string
	SettledAt           int64
	Elapsed             int64
}

// EventType satisfies the Event interface.
func (PoolSettled) EventType() string { return TypePoolSettled }

// Event converts the structured payload into a broadcastable event.
func (e PoolSettled) Event() *types.Event {
	return &types.Event{
		Type: TypePoolSettled,
		Attributes: map[string]string{
			"pool":                e.Pool,
			"previousAccumulator": e.PreviousAccumulator,
			"accumulator":         e.Accumulator,
			"settledAt":           intToString(e.SettledAt),
			"elapsed":             intToString(e.Elapsed),
		},
	}
}
