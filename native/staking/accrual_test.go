package staking

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
)

func testPool(rate, total uint64, last int64) *Pool {
	return &Pool{RewardRate: rate, TotalStaked: total, Accumulator: ZeroAccumulator(), LastSettledAt: last, Active: true}
}

func TestSettlePoolEmptyOnlyMovesTimestamp(t *testing.T) {
	pool := testPool(RatePrecision, 0, 10)
	if err := SettlePool(pool, 50); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !pool.Accumulator.IsZero() || pool.LastSettledAt != 50 {
		t.Fatalf("unexpected pool after empty settle: acc %s last %d", pool.Accumulator, pool.LastSettledAt)
	}
}

func TestSettlePoolDelta(t *testing.T) {
	pool := testPool(RatePrecision, 100_000_000, 0)
	if err := SettlePool(pool, 100); err != nil {
		t.Fatalf("settle: %v", err)
	}
	want := uint256.NewInt(1_000_000_000_000)
	if !pool.Accumulator.Eq(want) {
		t.Fatalf("accumulator: got %s want %s", pool.Accumulator, want)
	}
}

func TestSettlePoolClockRegression(t *testing.T) {
	pool := testPool(RatePrecision, 1_000_000, 100)
	pool.Accumulator = uint256.NewInt(42)
	err := SettlePool(pool, 99)
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected invalid timestamp, got %v", err)
	}
	if pool.LastSettledAt != 100 || pool.Accumulator.Uint64() != 42 {
		t.Fatalf("regression mutated pool")
	}
}

func TestSettlePoolLongIdleDoesNotOverflow(t *testing.T) {
	pool := testPool(MaxRewardRate, MinStakeAmount, 0)
	if err := SettlePool(pool, math.MaxInt64); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if pool.Accumulator.IsZero() {
		t.Fatalf("expected accumulator to advance")
	}
}

func TestAccumulatorMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := testPool(123_456_789, 1_000_000, 0)
	now := int64(0)
	prev := ZeroAccumulator()
	for i := 0; i < 500; i++ {
		now += rng.Int63n(10_000)
		pool.TotalStaked = MinStakeAmount + uint64(rng.Int63n(int64(MaxStakeAmount-MinStakeAmount)))
		if err := SettlePool(pool, now); err != nil {
			t.Fatalf("settle at %d: %v", now, err)
		}
		if pool.Accumulator.Lt(prev) {
			t.Fatalf("accumulator decreased at step %d", i)
		}
		prev = cloneAccumulator(pool.Accumulator)
	}
}

func TestSettleStake(t *testing.T) {
	pool := testPool(RatePrecision, 400_000_000, 0)
	stake := &Stake{Amount: 100_000_000, Checkpoint: ZeroAccumulator(), Active: true}
	if err := SettlePool(pool, 100); err != nil {
		t.Fatalf("settle pool: %v", err)
	}
	if err := SettleStake(stake, pool); err != nil {
		t.Fatalf("settle stake: %v", err)
	}
	if stake.UnclaimedRewards != 25 || !stake.Checkpoint.Eq(pool.Accumulator) {
		t.Fatalf("unexpected stake %+v", stake)
	}
	if err := SettleStake(stake, pool); err != nil || stake.UnclaimedRewards != 25 {
		t.Fatalf("repeat settle changed rewards: %d %v", stake.UnclaimedRewards, err)
	}

	stake.Checkpoint = new(uint256.Int).AddUint64(pool.Accumulator, 1)
	if err := SettleStake(stake, pool); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation for checkpoint ahead of pool, got %v", err)
	}
}

func TestPendingRewardsDoesNotMutate(t *testing.T) {
	pool := testPool(RatePrecision, 100_000_000, 0)
	stake := &Stake{Amount: 100_000_000, Checkpoint: ZeroAccumulator(), Active: true}
	pending, err := PendingRewards(stake, pool, 100)
	if err != nil || pending != 100 {
		t.Fatalf("pending: %d %v", pending, err)
	}
	if pool.LastSettledAt != 0 || !pool.Accumulator.IsZero() {
		t.Fatalf("preview mutated pool")
	}
	if pending, _ := PendingRewards(stake, pool, -5); pending != 0 {
		t.Fatalf("preview before last settlement should accrue nothing, got %d", pending)
	}
}

func TestMulDiv(t *testing.T) {
	got, err := mulDiv(math.MaxUint64, 2, 4)
	if err != nil || got != math.MaxUint64/2 {
		t.Fatalf("mulDiv wide product: %d %v", got, err)
	}
	if _, err := mulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulDiv(1, 1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := safeAdd(math.MaxUint64, 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected add overflow, got %v", err)
	}
	if _, err := safeSub(1, 2); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected sub underflow, got %v", err)
	}
}

func TestRateHelpers(t *testing.T) {
	rate := RewardRateForApr(10, MaxStakeAmount)
	if rate != 3_170_979_198_376 {
		t.Fatalf("unexpected rate %d", rate)
	}
	if apr := AprForRewardRate(rate, MaxStakeAmount); apr != 9 {
		t.Fatalf("expected truncated apr of 9, got %d", apr)
	}
	if got := EmissionForPeriod(RatePrecision, 86_400); got != 86_400 {
		t.Fatalf("unexpected daily emission %d", got)
	}
	if got := EstimateRewards(100, 400, RatePrecision, 100); got != 25 {
		t.Fatalf("unexpected estimate %d", got)
	}
	if got := AprForRewardRate(RatePrecision, 0); got != 0 {
		t.Fatalf("empty pool apr should be zero, got %d", got)
	}
}

func TestAccumulatorFormatting(t *testing.T) {
	acc, err := ParseAccumulator("340282366920938463463374607431768211456")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if FormatAccumulator(acc) != "340282366920938463463374607431768211456" {
		t.Fatalf("round trip mismatch: %s", FormatAccumulator(acc))
	}
	if zero, err := ParseAccumulator(""); err != nil || !zero.IsZero() {
		t.Fatalf("empty accumulator should parse as zero")
	}
	if _, err := ParseAccumulator("-1"); err == nil {
		t.Fatalf("expected negative accumulator to be rejected")
	}
}
