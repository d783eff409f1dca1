package staking

import (
	"errors"
	"fmt"
)

// Category groups error codes by the area of the ledger that raised them.
type Category uint16

const (
	CategoryPoolManagement    Category = 1000
	CategoryStakingOperations Category = 1100
	CategoryUnstakeOperations Category = 1200
	CategoryRewardOperations  Category = 1300
	CategoryMathOperations    Category = 1400
	CategoryTokenOperations   Category = 1500
	CategoryVaultOperations   Category = 1600
	CategoryAccountValidation Category = 1700
	CategoryBusinessLogic     Category = 1800
	categoryUnknown           Category = 0
)

func (c Category) String() string {
	switch c {
	case CategoryPoolManagement:
		return "pool management"
	case CategoryStakingOperations:
		return "staking operations"
	case CategoryUnstakeOperations:
		return "unstaking operations"
	case CategoryRewardOperations:
		return "reward operations"
	case CategoryMathOperations:
		return "mathematical operations"
	case CategoryTokenOperations:
		return "token operations"
	case CategoryVaultOperations:
		return "vault operations"
	case CategoryAccountValidation:
		return "account validation"
	case CategoryBusinessLogic:
		return "business logic"
	default:
		return "unknown"
	}
}

// Error is a coded staking failure. Errors form a shallow tree: a specific
// error matches its parent under errors.Is, so ErrStakeTooSmall is also an
// ErrAmountOutOfRange.
type Error struct {
	Code     uint16
	Category Category
	msg      string
	parent   *Error
}

func newError(code uint16, category Category, msg string, parent *Error) *Error {
	return &Error{Code: code, Category: category, msg: msg, parent: parent}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "staking engine: " + e.msg
}

// Is reports whether target is e or one of its ancestors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur == t {
			return true
		}
	}
	return false
}

var (
	ErrInvalidParameter         = newError(1000, CategoryPoolManagement, "invalid parameter", nil)
	ErrPoolInactive             = newError(1001, CategoryPoolManagement, "pool is not active", nil)
	ErrUnauthorized             = newError(1002, CategoryPoolManagement, "caller is not authorised", nil)
	ErrPoolAlreadyExists        = newError(1003, CategoryPoolManagement, "pool already exists", nil)
	ErrInvalidRewardRate        = newError(1004, CategoryPoolManagement, "reward rate out of bounds", ErrInvalidParameter)
	ErrInvalidLockDuration      = newError(1005, CategoryPoolManagement, "lock duration out of bounds", ErrInvalidParameter)
	ErrAmountOutOfRange         = newError(1100, CategoryStakingOperations, "amount out of range", nil)
	ErrStakeTooSmall            = newError(1101, CategoryStakingOperations, "stake amount below minimum", ErrAmountOutOfRange)
	ErrStakeTooLarge            = newError(1102, CategoryStakingOperations, "stake amount above maximum", ErrAmountOutOfRange)
	ErrInsufficientBalance      = newError(1104, CategoryStakingOperations, "insufficient balance", nil)
	ErrNoActiveStake            = newError(1201, CategoryUnstakeOperations, "no active stake", nil)
	ErrStakeLocked              = newError(1202, CategoryUnstakeOperations, "stake is still locked", nil)
	ErrCannotUnstakeZero        = newError(1203, CategoryUnstakeOperations, "cannot unstake zero amount", ErrNoActiveStake)
	ErrInsufficientRewardTokens = newError(1302, CategoryRewardOperations, "insufficient reward tokens in vault", nil)
	ErrInvalidTimestamp         = newError(1401, CategoryMathOperations, "timestamp precedes last settlement", nil)
	ErrMathOverflow             = newError(1402, CategoryMathOperations, "math overflow", nil)
	ErrDivisionByZero           = newError(1403, CategoryMathOperations, "division by zero", nil)
	ErrVaultUnavailable         = newError(1503, CategoryTokenOperations, "vault could not be attached", ErrInvalidParameter)
	ErrInvariantViolation       = newError(1603, CategoryVaultOperations, "ledger invariant violated", nil)
	ErrInsufficientVaultBalance = newError(1601, CategoryVaultOperations, "principal vault cannot cover withdrawal", ErrInvariantViolation)
	ErrInvalidAddress           = newError(1701, CategoryAccountValidation, "invalid address", ErrInvalidParameter)
	ErrPoolNotFound             = newError(1702, CategoryAccountValidation, "pool not found", nil)
	ErrStateNotConfigured       = newError(1801, CategoryBusinessLogic, "state not configured", nil)
	ErrCustodyNotConfigured     = newError(1802, CategoryBusinessLogic, "custody not configured", nil)
)

// CodeOf returns the numeric code of the first staking error in err's chain,
// or zero when err carries none.
func CodeOf(err error) uint16 {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Code
	}
	return 0
}

// CategoryOf returns the category of the first staking error in err's chain.
func CategoryOf(err error) Category {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Category
	}
	return categoryUnknown
}

func wrapf(base *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// ErrorCode exposes the numeric code to packages that must not import this
// one, such as metrics.
func (e *Error) ErrorCode() uint16 { return e.Code }
