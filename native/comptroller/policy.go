package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Action names a policy gated market operation.
type Action uint8

const (
	ActionMint Action = iota
	ActionRedeem
	ActionBorrow
	ActionRepay
	ActionLiquidate
	ActionSeize
	ActionTransfer
)

func (a Action) String() string {
	switch a {
	case ActionMint:
		return "mint"
	case ActionRedeem:
		return "redeem"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	case ActionLiquidate:
		return "liquidate"
	case ActionSeize:
		return "seize"
	case ActionTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// hook runs a policy check under the reentrancy guard. Denials and fatal
// errors leave no state behind.
func (e *Engine) hook(action Action, fn func() (Code, error)) (Code, error) {
	release, err := e.enter()
	if err != nil {
		e.observe(action.String(), NoError, err)
		return NoError, err
	}
	defer release()
	code, err := e.atomically(fn)
	e.observe(action.String(), code, err)
	return code, err
}

// MintAllowed checks whether minter may supply to market.
func (e *Engine) MintAllowed(market, minter common.Address, mintAmount *uint256.Int) (Code, error) {
	return e.hook(ActionMint, func() (Code, error) {
		record, err := e.state.ComptrollerMarket(market)
		if err != nil {
			return NoError, err
		}
		if record != nil && record.MintPaused {
			return NoError, fmt.Errorf("%w: mint", ErrActionPaused)
		}
		if record == nil || !record.Listed {
			return MarketNotListed, nil
		}
		if err := e.updateAndDistributeSupplier(market, minter); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// RedeemAllowed checks whether redeemer may redeem redeemTokens of market.
func (e *Engine) RedeemAllowed(market, redeemer common.Address, redeemTokens *uint256.Int) (Code, error) {
	return e.hook(ActionRedeem, func() (Code, error) {
		code, err := e.redeemAllowed(market, redeemer, orZero(redeemTokens))
		if err != nil || code != NoError {
			return code, err
		}
		if err := e.updateAndDistributeSupplier(market, redeemer); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// redeemAllowed is the liquidity half of the redeem policy, shared by
// redeem, transfer and market exit.
func (e *Engine) redeemAllowed(market, redeemer common.Address, redeemTokens *uint256.Int) (Code, error) {
	record, err := e.listedMarket(market)
	if err != nil {
		return NoError, err
	}
	if record == nil {
		return MarketNotListed, nil
	}
	position, err := e.state.ComptrollerMembership(market, redeemer)
	if err != nil {
		return NoError, err
	}
	// Tokens outside the liquidity calculation can be redeemed freely.
	if position == 0 {
		return NoError, nil
	}
	code, liquidity, err := e.hypotheticalLiquidity(redeemer, market, redeemTokens, zero())
	if err != nil || code != NoError {
		return code, err
	}
	if !liquidity.Shortfall.IsZero() {
		e.telemetry.ObserveShortfall("redeem")
		return InsufficientLiquidity, nil
	}
	return NoError, nil
}

// BorrowAllowed checks whether borrower may borrow borrowAmount from market.
// caller is the address invoking the hook; only the market itself may enter
// a borrower into the market implicitly.
func (e *Engine) BorrowAllowed(caller, market, borrower common.Address, borrowAmount *uint256.Int) (Code, error) {
	amount := orZero(borrowAmount)
	return e.hook(ActionBorrow, func() (Code, error) {
		record, err := e.state.ComptrollerMarket(market)
		if err != nil {
			return NoError, err
		}
		if record != nil && record.BorrowPaused {
			return NoError, fmt.Errorf("%w: borrow", ErrActionPaused)
		}
		if record == nil || !record.Listed {
			return MarketNotListed, nil
		}
		price, err := e.price(market)
		if err != nil {
			return NoError, err
		}
		if price.IsZero() {
			return PriceUnavailable, nil
		}
		position, err := e.state.ComptrollerMembership(market, borrower)
		if err != nil {
			return NoError, err
		}
		if position == 0 {
			if caller != market {
				return NoError, ErrSenderNotMarket
			}
			code, err := e.addToMarket(market, borrower)
			if err != nil || code != NoError {
				return code, err
			}
		}
		view, err := e.view(market)
		if err != nil {
			return NoError, err
		}
		if borrowCap := orZero(record.BorrowCap); !borrowCap.IsZero() {
			totalBorrows, err := view.TotalBorrows()
			if err != nil {
				return NoError, err
			}
			nextTotalBorrows, err := add(totalBorrows, amount)
			if err != nil {
				return NoError, err
			}
			if !nextTotalBorrows.Lt(borrowCap) {
				return BorrowCapReached, nil
			}
		}
		code, liquidity, err := e.hypotheticalLiquidity(borrower, market, zero(), amount)
		if err != nil || code != NoError {
			return code, err
		}
		if !liquidity.Shortfall.IsZero() {
			e.telemetry.ObserveShortfall("borrow")
			return InsufficientLiquidity, nil
		}
		if err := e.updateAndDistributeBorrower(market, view, borrower); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// RepayBorrowAllowed checks whether payer may repay on behalf of borrower.
func (e *Engine) RepayBorrowAllowed(market, payer, borrower common.Address, repayAmount *uint256.Int) (Code, error) {
	return e.hook(ActionRepay, func() (Code, error) {
		record, err := e.listedMarket(market)
		if err != nil {
			return NoError, err
		}
		if record == nil {
			return MarketNotListed, nil
		}
		view, err := e.view(market)
		if err != nil {
			return NoError, err
		}
		if err := e.updateAndDistributeBorrower(market, view, borrower); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// LiquidateBorrowAllowed checks whether liquidator may repay repayAmount of
// borrower's debt in marketBorrowed against marketCollateral. Reward
// accrual happens in the seize hook.
func (e *Engine) LiquidateBorrowAllowed(marketBorrowed, marketCollateral, liquidator, borrower common.Address, repayAmount *uint256.Int) (Code, error) {
	return e.hook(ActionLiquidate, func() (Code, error) {
		borrowed, err := e.listedMarket(marketBorrowed)
		if err != nil {
			return NoError, err
		}
		collateral, err := e.listedMarket(marketCollateral)
		if err != nil {
			return NoError, err
		}
		if borrowed == nil || collateral == nil {
			return MarketNotListed, nil
		}
		code, liquidity, err := e.hypotheticalLiquidity(borrower, common.Address{}, zero(), zero())
		if err != nil || code != NoError {
			return code, err
		}
		if liquidity.Shortfall.IsZero() {
			return InsufficientShortfall, nil
		}
		view, err := e.view(marketBorrowed)
		if err != nil {
			return NoError, err
		}
		borrowBalance, err := view.BorrowBalanceStored(borrower)
		if err != nil {
			return NoError, err
		}
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		maxClose, err := mulScalarTruncate(NewExp(params.CloseFactor), orZero(borrowBalance))
		if err != nil {
			return NoError, err
		}
		if orZero(repayAmount).Gt(maxClose) {
			return TooMuchRepay, nil
		}
		return NoError, nil
	})
}

// SeizeAllowed checks whether liquidator may seize borrower's collateral
// tokens in marketCollateral.
func (e *Engine) SeizeAllowed(marketCollateral, marketBorrowed, liquidator, borrower common.Address, seizeTokens *uint256.Int) (Code, error) {
	return e.hook(ActionSeize, func() (Code, error) {
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		if params.SeizePaused {
			return NoError, fmt.Errorf("%w: seize", ErrActionPaused)
		}
		collateral, err := e.listedMarket(marketCollateral)
		if err != nil {
			return NoError, err
		}
		borrowed, err := e.listedMarket(marketBorrowed)
		if err != nil {
			return NoError, err
		}
		if collateral == nil || borrowed == nil {
			return MarketNotListed, nil
		}
		collateralView, err := e.view(marketCollateral)
		if err != nil {
			return NoError, err
		}
		borrowedView, err := e.view(marketBorrowed)
		if err != nil {
			return NoError, err
		}
		if collateralView.Comptroller() != borrowedView.Comptroller() {
			return ComptrollerMismatch, nil
		}
		if err := e.updateAndDistributeSupplier(marketCollateral, borrower, liquidator); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// TransferAllowed checks whether src may transfer transferTokens of market
// to dst. A transfer is treated as a redemption by src.
func (e *Engine) TransferAllowed(market, src, dst common.Address, transferTokens *uint256.Int) (Code, error) {
	return e.hook(ActionTransfer, func() (Code, error) {
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		if params.TransferPaused {
			return NoError, fmt.Errorf("%w: transfer", ErrActionPaused)
		}
		code, err := e.redeemAllowed(market, src, orZero(transferTokens))
		if err != nil || code != NoError {
			return code, err
		}
		if err := e.updateAndDistributeSupplier(market, src, dst); err != nil {
			return NoError, err
		}
		return NoError, nil
	})
}

// Verification describes a completed market action for post-execution
// checks.
type Verification struct {
	Action Action
	Market common.Address
	// Account is the primary actor (minter, redeemer, borrower, ...).
	Account common.Address
	// Amount is the underlying amount moved.
	Amount *uint256.Int
	// Tokens is the market token amount moved.
	Tokens *uint256.Int
}

// Verify runs the post-execution checks. Only redemptions are checked: a
// redemption that burns no tokens must not release any underlying.
func (e *Engine) Verify(v Verification) error {
	if v.Action == ActionRedeem && orZero(v.Tokens).IsZero() && !orZero(v.Amount).IsZero() {
		return ErrRedeemTokensZero
	}
	return nil
}
