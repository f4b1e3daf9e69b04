package market

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
)

var (
	ErrStateUnavailable       = errors.New("market: state not configured")
	ErrUnknownMarket          = errors.New("market: not initialised")
	ErrAlreadyInitialized     = errors.New("market: already initialised")
	ErrUnauthorized           = errors.New("market: unauthorized")
	ErrInvalidAmount          = errors.New("market: invalid amount")
	ErrInsufficientUnderlying = errors.New("market: insufficient underlying balance")
	ErrInsufficientCash       = errors.New("market: insufficient cash")
	ErrInsufficientBalance    = errors.New("market: insufficient token balance")
	ErrRepayExceedsBorrow     = errors.New("market: repay exceeds borrow balance")
	ErrLiquidateSelf          = errors.New("market: borrower cannot liquidate self")
	ErrUnknownCollateral      = errors.New("market: unknown collateral market")
	ErrSeizeTooMuch           = errors.New("market: seize exceeds collateral balance")
	ErrTransferSelf           = errors.New("market: cannot transfer to self")
	ErrBorrowIndexDecrease    = errors.New("market: borrow index cannot decrease")
	ErrMath                   = errors.New("market: math overflow")
)

// ExpScale is the fixed point scale of exchange rates and borrow indices.
var ExpScale = uint256.NewInt(1e18)

// Record holds the totals and rates of one market.
type Record struct {
	Address common.Address
	Symbol  string
	Admin   common.Address
	// ExchangeRate converts market tokens to underlying, scaled by 1e18.
	ExchangeRate *uint256.Int
	// BorrowIndex is the cumulative interest index, scaled by 1e18.
	BorrowIndex  *uint256.Int
	TotalSupply  *uint256.Int
	TotalBorrows *uint256.Int
	Cash         *uint256.Int
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ExchangeRate = clone(r.ExchangeRate)
	out.BorrowIndex = clone(r.BorrowIndex)
	out.TotalSupply = clone(r.TotalSupply)
	out.TotalBorrows = clone(r.TotalBorrows)
	out.Cash = clone(r.Cash)
	return &out
}

// BorrowSnapshot is an account's borrow principal together with the
// borrow index at the time it was last updated.
type BorrowSnapshot struct {
	Principal     *uint256.Int
	InterestIndex *uint256.Int
}

type marketState interface {
	MarketRecord(market common.Address) (*Record, error)
	PutMarketRecord(record *Record) error
	MarketTokenBalance(market, account common.Address) (*uint256.Int, error)
	PutMarketTokenBalance(market, account common.Address, amount *uint256.Int) error
	MarketBorrowSnapshot(market, account common.Address) (*BorrowSnapshot, error)
	PutMarketBorrowSnapshot(market, account common.Address, snapshot *BorrowSnapshot) error
	UnderlyingBalance(market, account common.Address) (*uint256.Int, error)
	PutUnderlyingBalance(market, account common.Address, amount *uint256.Int) error
}

// Comptroller is the policy gate a market consults before each action.
// *comptroller.Engine satisfies it.
type Comptroller interface {
	Address() common.Address
	MintAllowed(market, minter common.Address, mintAmount *uint256.Int) (comptroller.Code, error)
	RedeemAllowed(market, redeemer common.Address, redeemTokens *uint256.Int) (comptroller.Code, error)
	BorrowAllowed(caller, market, borrower common.Address, borrowAmount *uint256.Int) (comptroller.Code, error)
	RepayBorrowAllowed(market, payer, borrower common.Address, repayAmount *uint256.Int) (comptroller.Code, error)
	LiquidateBorrowAllowed(marketBorrowed, marketCollateral, liquidator, borrower common.Address, repayAmount *uint256.Int) (comptroller.Code, error)
	SeizeAllowed(marketCollateral, marketBorrowed, liquidator, borrower common.Address, seizeTokens *uint256.Int) (comptroller.Code, error)
	TransferAllowed(market, src, dst common.Address, transferTokens *uint256.Int) (comptroller.Code, error)
	LiquidateCalculateSeizeTokens(marketBorrowed, marketCollateral common.Address, repayAmount *uint256.Int) (comptroller.Code, *uint256.Int, error)
	Verify(v comptroller.Verification) error
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, ErrMath
	}
	return out, nil
}

// subFloor subtracts b from a, stopping at zero.
func subFloor(a, b *uint256.Int) *uint256.Int {
	if orZero(b).Gt(orZero(a)) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(orZero(a), orZero(b))
}

// mulDiv computes a*b/den truncating, with a zero denominator giving zero.
func mulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if orZero(den).IsZero() {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(orZero(a), orZero(b), den)
	if overflow {
		return nil, ErrMath
	}
	return out, nil
}
