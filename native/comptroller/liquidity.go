package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountLiquidity reports the account's excess collateral or shortfall
// across every entered market.
func (e *Engine) AccountLiquidity(account common.Address) (Code, Liquidity, error) {
	return e.HypotheticalAccountLiquidity(account, common.Address{}, nil, nil)
}

// HypotheticalAccountLiquidity reports liquidity as if the account redeemed
// redeemTokens of modify and borrowed borrowAmount of its underlying. A zero
// modify address applies no hypothetical change.
func (e *Engine) HypotheticalAccountLiquidity(account, modify common.Address, redeemTokens, borrowAmount *uint256.Int) (Code, Liquidity, error) {
	if e == nil || e.state == nil {
		return NoError, Liquidity{}, ErrStateUnavailable
	}
	return e.hypotheticalLiquidity(account, modify, orZero(redeemTokens), orZero(borrowAmount))
}

func (e *Engine) hypotheticalLiquidity(account, modify common.Address, redeemTokens, borrowAmount *uint256.Int) (Code, Liquidity, error) {
	empty := Liquidity{Liquidity: zero(), Shortfall: zero()}
	assets, err := e.state.ComptrollerAccountAssets(account)
	if err != nil {
		return NoError, empty, err
	}
	sumCollateral := zero()
	sumBorrowPlusEffects := zero()
	for _, asset := range assets {
		view, err := e.view(asset)
		if err != nil {
			return NoError, empty, err
		}
		snapshot, err := view.GetAccountSnapshot(account)
		if err != nil {
			return NoError, empty, fmt.Errorf("%w: %s: %v", ErrSnapshot, asset.Hex(), err)
		}
		market, err := e.state.ComptrollerMarket(asset)
		if err != nil {
			return NoError, empty, err
		}
		collateralFactor := zero()
		if market != nil {
			collateralFactor = orZero(market.CollateralFactor)
		}
		price, err := e.price(asset)
		if err != nil {
			return NoError, empty, err
		}
		if price.IsZero() {
			return PriceUnavailable, empty, nil
		}
		oraclePrice := NewExp(price)

		// Factor and exchange rate combine first, then the price.
		factorRate, err := mulExp(NewExp(collateralFactor), NewExp(snapshot.ExchangeRate))
		if err != nil {
			return NoError, empty, err
		}
		tokensToDenom, err := mulExp(factorRate, oraclePrice)
		if err != nil {
			return NoError, empty, err
		}
		if sumCollateral, err = mulScalarTruncateAdd(tokensToDenom, orZero(snapshot.Tokens), sumCollateral); err != nil {
			return NoError, empty, err
		}
		if sumBorrowPlusEffects, err = mulScalarTruncateAdd(oraclePrice, orZero(snapshot.Borrow), sumBorrowPlusEffects); err != nil {
			return NoError, empty, err
		}
		if asset == modify {
			// A redemption removes collateral, modelled as extra borrow.
			if sumBorrowPlusEffects, err = mulScalarTruncateAdd(tokensToDenom, redeemTokens, sumBorrowPlusEffects); err != nil {
				return NoError, empty, err
			}
			if sumBorrowPlusEffects, err = mulScalarTruncateAdd(oraclePrice, borrowAmount, sumBorrowPlusEffects); err != nil {
				return NoError, empty, err
			}
		}
	}
	if sumCollateral.Gt(sumBorrowPlusEffects) {
		return NoError, Liquidity{Liquidity: new(uint256.Int).Sub(sumCollateral, sumBorrowPlusEffects), Shortfall: zero()}, nil
	}
	return NoError, Liquidity{Liquidity: zero(), Shortfall: new(uint256.Int).Sub(sumBorrowPlusEffects, sumCollateral)}, nil
}
