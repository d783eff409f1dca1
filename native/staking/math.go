package staking

import (
	"math"

	"github.com/holiman/uint256"
)

var (
	accumulatorScale = uint256.NewInt(AccumulatorPrecision)
	rateScale        = uint256.NewInt(RatePrecision)
)

// ZeroAccumulator returns a fresh zero-valued accumulator.
func ZeroAccumulator() *uint256.Int {
	return new(uint256.Int)
}

// ParseAccumulator decodes the decimal representation produced by
// FormatAccumulator.
func ParseAccumulator(value string) (*uint256.Int, error) {
	if value == "" {
		return ZeroAccumulator(), nil
	}
	out := new(uint256.Int)
	if err := out.SetFromDecimal(value); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatAccumulator renders an accumulator as a base-10 string. Nil renders
// as zero.
func FormatAccumulator(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.Dec()
}

func cloneAccumulator(value *uint256.Int) *uint256.Int {
	if value == nil {
		return ZeroAccumulator()
	}
	return new(uint256.Int).Set(value)
}

// accumulatorDelta computes rate * elapsed * AccumulatorPrecision /
// (RatePrecision * totalStaked) in 256-bit arithmetic.
func accumulatorDelta(rewardRate uint64, elapsed int64, totalStaked uint64) (*uint256.Int, error) {
	if totalStaked == 0 {
		return nil, ErrDivisionByZero
	}
	if elapsed < 0 {
		return nil, ErrInvalidTimestamp
	}
	if elapsed == 0 || rewardRate == 0 {
		return ZeroAccumulator(), nil
	}
	numerator, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(rewardRate), uint256.NewInt(uint64(elapsed)))
	if overflow {
		return nil, ErrMathOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, accumulatorScale); overflow {
		return nil, ErrMathOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(rateScale, uint256.NewInt(totalStaked))
	if overflow {
		return nil, ErrMathOverflow
	}
	return numerator.Div(numerator, denominator), nil
}

// rewardOwed computes amount * (current - checkpoint) / AccumulatorPrecision.
// A checkpoint ahead of the pool accumulator means the records diverged.
func rewardOwed(amount uint64, current, checkpoint *uint256.Int) (uint64, error) {
	if current == nil || checkpoint == nil {
		return 0, ErrInvariantViolation
	}
	if current.Lt(checkpoint) {
		return 0, ErrInvariantViolation
	}
	if amount == 0 {
		return 0, nil
	}
	diff := new(uint256.Int).Sub(current, checkpoint)
	product, overflow := new(uint256.Int).MulOverflow(diff, uint256.NewInt(amount))
	if overflow {
		return 0, ErrMathOverflow
	}
	product.Div(product, accumulatorScale)
	if !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

// mulDiv returns a * b / c without intermediate overflow. The quotient must
// fit in 64 bits.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Div(product, uint256.NewInt(c))
	if !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

// mulDiv3 returns a * b * c / d without intermediate overflow.
func mulDiv3(a, b, c, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Mul(product, uint256.NewInt(c))
	product.Div(product, uint256.NewInt(d))
	if !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

func safeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

func safeSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

func safeAddTime(ts, delta int64) (int64, error) {
	if delta > 0 && ts > math.MaxInt64-delta {
		return 0, ErrMathOverflow
	}
	return ts + delta, nil
}
