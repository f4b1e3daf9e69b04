package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/types"
)

const (
	TypeMarketMint        = "market.mint"
	TypeMarketRedeem      = "market.redeem"
	TypeMarketBorrow      = "market.borrow"
	TypeMarketRepayBorrow = "market.repay_borrow"
	TypeMarketLiquidate   = "market.liquidate_borrow"
	TypeMarketTransfer    = "market.transfer"
	TypeMarketRateUpdated = "market.rates.updated"

	// TypePricePosted is emitted when the oracle admin posts a price.
	TypePricePosted = "oracle.price.posted"
)

// MarketAction captures a completed market operation. Amount is in the
// underlying asset and Tokens in market tokens.
type MarketAction struct {
	Type    string
	Market  common.Address
	Account common.Address
	// Counterparty is the borrower for repay and liquidation, the receiver
	// for transfers.
	Counterparty common.Address
	Amount       *uint256.Int
	Tokens       *uint256.Int
}

// EventType implements the Event interface.
func (e MarketAction) EventType() string { return e.Type }

// Event converts the payload into a broadcastable event.
func (e MarketAction) Event() *types.Event {
	attrs := map[string]string{
		"market":  e.Market.Hex(),
		"account": e.Account.Hex(),
		"amount":  amountString(e.Amount),
		"tokens":  amountString(e.Tokens),
	}
	if e.Counterparty != (common.Address{}) {
		attrs["counterparty"] = e.Counterparty.Hex()
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// MarketRatesUpdated captures an admin change to a market's exchange rate or
// borrow index.
type MarketRatesUpdated struct {
	Market       common.Address
	ExchangeRate *uint256.Int
	BorrowIndex  *uint256.Int
}

// EventType implements the Event interface.
func (MarketRatesUpdated) EventType() string { return TypeMarketRateUpdated }

// Event converts the payload into a broadcastable event.
func (e MarketRatesUpdated) Event() *types.Event {
	return &types.Event{Type: TypeMarketRateUpdated, Attributes: map[string]string{
		"market":       e.Market.Hex(),
		"exchangeRate": amountString(e.ExchangeRate),
		"borrowIndex":  amountString(e.BorrowIndex),
	}}
}

// PricePosted captures a new underlying price.
type PricePosted struct {
	Market common.Address
	Old    *uint256.Int
	New    *uint256.Int
}

// EventType implements the Event interface.
func (PricePosted) EventType() string { return TypePricePosted }

// Event converts the payload into a broadcastable event.
func (e PricePosted) Event() *types.Event {
	return &types.Event{Type: TypePricePosted, Attributes: map[string]string{
		"market": e.Market.Hex(),
		"old":    amountString(e.Old),
		"new":    amountString(e.New),
	}}
}
