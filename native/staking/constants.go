package staking

import "math"

const moduleName = "staking"

// ModuleName identifies the staking module for pause toggles and metrics.
const ModuleName = moduleName

// Fixed-point scaling factors. Reward rates are stored as reward units
// emitted per second multiplied by RatePrecision; the pool accumulator is
// reward per staked unit multiplied by AccumulatorPrecision.
const (
	RatePrecision        uint64 = 1_000_000_000
	AccumulatorPrecision uint64 = 1_000_000_000_000_000_000
)

// Lock window bounds in seconds.
const (
	MinLockDuration     int64 = 24 * 60 * 60
	MaxLockDuration     int64 = 365 * 24 * 60 * 60
	DefaultLockDuration int64 = 7 * 24 * 60 * 60
)

// Stake amount bounds in base units (six decimal places).
const (
	MinStakeAmount uint64 = 1_000_000
	MaxStakeAmount uint64 = 1_000_000_000_000
)

// Reward rate bounds. The minimum emits one reward unit every 1e9 seconds,
// the maximum one reward unit per second.
const (
	MinRewardRate uint64 = 1
	MaxRewardRate uint64 = RatePrecision
)

const secondsPerYear uint64 = 365 * 24 * 60 * 60

// The reward rate is a pool-wide emission: every second the pool releases
// RewardRate / RatePrecision reward units, shared pro rata across the stake.
// The helpers below translate between that emission and the annual
// percentage earned by the stake currently in the pool.

// RewardRateForApr returns the scaled reward rate that pays aprPercent per
// year on totalStaked units. It returns zero when the inputs are empty or the
// computation does not fit in 64 bits.
func RewardRateForApr(aprPercent, totalStaked uint64) uint64 {
	if aprPercent == 0 || totalStaked == 0 {
		return 0
	}
	rate, err := mulDiv3(aprPercent, totalStaked, RatePrecision, 100*secondsPerYear)
	if err != nil {
		return 0
	}
	return rate
}

// AprForRewardRate returns the annual percentage currently earned by
// totalStaked units under rewardRate, truncated toward zero. Empty pools
// report zero.
func AprForRewardRate(rewardRate, totalStaked uint64) uint64 {
	if rewardRate == 0 || totalStaked == 0 {
		return 0
	}
	numerator, err := mulDiv3(rewardRate, secondsPerYear, 100, RatePrecision)
	if err != nil {
		return math.MaxUint64
	}
	return numerator / totalStaked
}

// EmissionForPeriod returns the reward units released by the pool over period
// seconds. It saturates at math.MaxUint64 and is informational only.
func EmissionForPeriod(rewardRate uint64, period int64) uint64 {
	if period <= 0 || rewardRate == 0 {
		return 0
	}
	emitted, err := mulDiv(rewardRate, uint64(period), RatePrecision)
	if err != nil {
		return math.MaxUint64
	}
	return emitted
}

// EstimateRewards projects the reward a position of amount units would earn
// over period seconds in a pool holding totalStaked units (including the
// position itself) when nothing else changes. It is informational only and
// saturates at math.MaxUint64.
func EstimateRewards(amount, totalStaked, rewardRate uint64, period int64) uint64 {
	if period <= 0 || amount == 0 || rewardRate == 0 {
		return 0
	}
	if totalStaked < amount {
		totalStaked = amount
	}
	emitted, err := mulDiv3(rewardRate, uint64(period), amount, RatePrecision)
	if err != nil {
		return math.MaxUint64
	}
	return emitted / totalStaked
}
