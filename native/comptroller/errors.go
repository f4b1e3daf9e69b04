package comptroller

import (
	"errors"
	"fmt"
)

// Code is the verdict returned by policy hooks and admin setters. NoError
// allows the action; any other value is a denial the calling market decides
// how to handle. Fatal conditions are reported through the error return.
type Code uint8

const (
	NoError Code = iota
	Unauthorized
	ComptrollerMismatch
	InsufficientShortfall
	InsufficientLiquidity
	InvalidCloseFactor
	InvalidCollateralFactor
	InvalidLiquidationIncentive
	MarketNotEntered
	MarketNotListed
	MarketAlreadyListed
	MathError
	NonzeroBorrowBalance
	PriceUnavailable
	Rejected
	SnapshotError
	TooManyAssets
	TooMuchRepay
	BorrowCapReached
)

var codeNames = map[Code]string{
	NoError:                     "NO_ERROR",
	Unauthorized:                "UNAUTHORIZED",
	ComptrollerMismatch:         "COMPTROLLER_MISMATCH",
	InsufficientShortfall:       "INSUFFICIENT_SHORTFALL",
	InsufficientLiquidity:       "INSUFFICIENT_LIQUIDITY",
	InvalidCloseFactor:          "INVALID_CLOSE_FACTOR",
	InvalidCollateralFactor:     "INVALID_COLLATERAL_FACTOR",
	InvalidLiquidationIncentive: "INVALID_LIQUIDATION_INCENTIVE",
	MarketNotEntered:            "MARKET_NOT_ENTERED",
	MarketNotListed:             "MARKET_NOT_LISTED",
	MarketAlreadyListed:         "MARKET_ALREADY_LISTED",
	MathError:                   "MATH_ERROR",
	NonzeroBorrowBalance:        "NONZERO_BORROW_BALANCE",
	PriceUnavailable:            "PRICE_UNAVAILABLE",
	Rejected:                    "REJECTED",
	SnapshotError:               "SNAPSHOT_ERROR",
	TooManyAssets:               "TOO_MANY_ASSETS",
	TooMuchRepay:                "TOO_MUCH_REPAY",
	BorrowCapReached:            "BORROW_CAP_REACHED",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", uint8(c))
}

// OK reports whether the code allows the action.
func (c Code) OK() bool { return c == NoError }

// Err converts a denial into an error for callers that abort on any
// non-allow verdict. NoError converts to nil.
func (c Code) Err() error {
	if c == NoError {
		return nil
	}
	return &PolicyError{Code: c}
}

// PolicyError wraps a denial code so it can travel through error returns.
type PolicyError struct {
	Code Code
}

func (e *PolicyError) Error() string {
	return "comptroller: policy denied: " + e.Code.String()
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyDenied
}

// CodeOf extracts the denial code from err, if any.
func CodeOf(err error) (Code, bool) {
	var perr *PolicyError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	return NoError, false
}

var (
	ErrPolicyDenied        = errors.New("comptroller: policy denied")
	ErrUnauthorized        = errors.New("comptroller: unauthorized")
	ErrActionPaused        = errors.New("comptroller: action paused")
	ErrSenderNotMarket     = errors.New("comptroller: sender must be market")
	ErrSnapshot            = errors.New("comptroller: account snapshot failed")
	ErrMath                = errors.New("comptroller: math error")
	ErrReentrant           = errors.New("comptroller: re-entered")
	ErrInvalidInput        = errors.New("comptroller: invalid input")
	ErrMarketNotListed     = errors.New("comptroller: market not listed")
	ErrMarketAlreadyAdded  = errors.New("comptroller: market already added")
	ErrNotMarket           = errors.New("comptroller: address is not a market")
	ErrRedeemTokensZero    = errors.New("comptroller: redeemTokens zero")
	ErrInsufficientRewards = errors.New("comptroller: insufficient rewards for grant")
	ErrInvalidRewardType   = errors.New("comptroller: invalid reward type")
	ErrStateUnavailable    = errors.New("comptroller: state not configured")
	ErrOracleUnavailable   = errors.New("comptroller: price oracle not configured")
)
