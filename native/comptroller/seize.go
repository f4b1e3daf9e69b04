package comptroller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LiquidateCalculateSeizeTokens converts repayAmount of marketBorrowed's
// underlying into the number of marketCollateral tokens the liquidator
// receives:
//
//	seizeTokens = repayAmount * (incentive * priceBorrowed) / (priceCollateral * exchangeRate)
//
// The two products are formed before the division and every step truncates.
func (e *Engine) LiquidateCalculateSeizeTokens(marketBorrowed, marketCollateral common.Address, repayAmount *uint256.Int) (Code, *uint256.Int, error) {
	if e == nil || e.state == nil {
		return NoError, nil, ErrStateUnavailable
	}
	priceBorrowed, err := e.price(marketBorrowed)
	if err != nil {
		return NoError, nil, err
	}
	priceCollateral, err := e.price(marketCollateral)
	if err != nil {
		return NoError, nil, err
	}
	if priceBorrowed.IsZero() || priceCollateral.IsZero() {
		return PriceUnavailable, zero(), nil
	}
	view, err := e.view(marketCollateral)
	if err != nil {
		return NoError, nil, err
	}
	exchangeRate, err := view.ExchangeRateStored()
	if err != nil {
		return NoError, nil, err
	}
	params, err := e.params()
	if err != nil {
		return NoError, nil, err
	}
	numerator, err := mulExp(NewExp(params.LiquidationIncentive), NewExp(priceBorrowed))
	if err != nil {
		return NoError, nil, err
	}
	denominator, err := mulExp(NewExp(priceCollateral), NewExp(exchangeRate))
	if err != nil {
		return NoError, nil, err
	}
	ratio, err := divExp(numerator, denominator)
	if err != nil {
		return MathError, zero(), nil
	}
	seizeTokens, err := mulScalarTruncate(ratio, orZero(repayAmount))
	if err != nil {
		return NoError, nil, err
	}
	return NoError, seizeTokens, nil
}
