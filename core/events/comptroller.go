package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/types"
)

const (
	// TypeMarketListed is emitted when the admin supports a new market.
	TypeMarketListed = "comptroller.market.listed"
	// TypeMarketEntered is emitted when an account enters a market.
	TypeMarketEntered = "comptroller.market.entered"
	// TypeMarketExited is emitted when an account exits a market.
	TypeMarketExited = "comptroller.market.exited"

	TypeNewCloseFactor          = "comptroller.close_factor.updated"
	TypeNewCollateralFactor     = "comptroller.collateral_factor.updated"
	TypeNewLiquidationIncentive = "comptroller.liquidation_incentive.updated"
	TypeNewMaxAssets            = "comptroller.max_assets.updated"
	TypeNewPriceOracle          = "comptroller.oracle.updated"
	TypeNewAdmin                = "comptroller.admin.updated"
	TypeNewPendingAdmin         = "comptroller.admin.pending"
	TypeNewPauseGuardian        = "comptroller.pause_guardian.updated"
	TypeNewBorrowCapGuardian    = "comptroller.borrow_cap_guardian.updated"
	TypeNewBorrowCap            = "comptroller.borrow_cap.updated"
	TypeNewRewardToken          = "comptroller.reward_token.updated"

	// TypeActionPaused is emitted whenever a pause flag changes, in either
	// direction.
	TypeActionPaused = "comptroller.action.paused"
	// TypeRewardSpeedUpdated is emitted for each track whose speed changed.
	TypeRewardSpeedUpdated = "comptroller.reward.speed_updated"
	// TypeRewardDistributed is emitted when accrual is credited to an
	// account.
	TypeRewardDistributed = "comptroller.reward.distributed"
	// TypeRewardGranted is emitted when accrued rewards leave the vault.
	TypeRewardGranted = "comptroller.reward.granted"
	// TypeRewardPayoutDeferred is emitted when the vault cannot cover an
	// account's accrued balance and the payout is retried later.
	TypeRewardPayoutDeferred = "comptroller.reward.payout_deferred"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// MarketListed captures a newly supported market.
type MarketListed struct {
	Market common.Address
}

// EventType implements the Event interface.
func (MarketListed) EventType() string { return TypeMarketListed }

// Event converts the payload into a broadcastable event.
func (e MarketListed) Event() *types.Event {
	return &types.Event{Type: TypeMarketListed, Attributes: map[string]string{
		"market": e.Market.Hex(),
	}}
}

// MarketMembership captures an account entering or leaving a market.
type MarketMembership struct {
	Market  common.Address
	Account common.Address
	Entered bool
}

// EventType implements the Event interface.
func (e MarketMembership) EventType() string {
	if e.Entered {
		return TypeMarketEntered
	}
	return TypeMarketExited
}

// Event converts the payload into a broadcastable event.
func (e MarketMembership) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"market":  e.Market.Hex(),
		"account": e.Account.Hex(),
	}}
}

// ParamUpdated captures a change of a scalar risk parameter. Market is the
// zero address for protocol wide parameters.
type ParamUpdated struct {
	Type   string
	Market common.Address
	Old    *uint256.Int
	New    *uint256.Int
}

// EventType implements the Event interface.
func (e ParamUpdated) EventType() string { return e.Type }

// Event converts the payload into a broadcastable event.
func (e ParamUpdated) Event() *types.Event {
	attrs := map[string]string{
		"old": amountString(e.Old),
		"new": amountString(e.New),
	}
	if e.Market != (common.Address{}) {
		attrs["market"] = e.Market.Hex()
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// RoleUpdated captures a change of an address valued role or setting.
type RoleUpdated struct {
	Type string
	Old  common.Address
	New  common.Address
}

// EventType implements the Event interface.
func (e RoleUpdated) EventType() string { return e.Type }

// Event converts the payload into a broadcastable event.
func (e RoleUpdated) Event() *types.Event {
	return &types.Event{Type: e.Type, Attributes: map[string]string{
		"old": e.Old.Hex(),
		"new": e.New.Hex(),
	}}
}

// ActionPaused captures a pause flag change. Market is empty for the global
// transfer and seize flags.
type ActionPaused struct {
	Action string
	Market common.Address
	Paused bool
}

// EventType implements the Event interface.
func (ActionPaused) EventType() string { return TypeActionPaused }

// Event converts the payload into a broadcastable event.
func (e ActionPaused) Event() *types.Event {
	attrs := map[string]string{
		"action": e.Action,
		"paused": strconv.FormatBool(e.Paused),
	}
	if e.Market != (common.Address{}) {
		attrs["market"] = e.Market.Hex()
	}
	return &types.Event{Type: TypeActionPaused, Attributes: attrs}
}

// RewardSpeedUpdated captures a new emission speed for one track.
type RewardSpeedUpdated struct {
	RewardType string
	Side       string
	Market     common.Address
	Speed      *uint256.Int
}

// EventType implements the Event interface.
func (RewardSpeedUpdated) EventType() string { return TypeRewardSpeedUpdated }

// Event converts the payload into a broadcastable event.
func (e RewardSpeedUpdated) Event() *types.Event {
	return &types.Event{Type: TypeRewardSpeedUpdated, Attributes: map[string]string{
		"rewardType": e.RewardType,
		"side":       e.Side,
		"market":     e.Market.Hex(),
		"speed":      amountString(e.Speed),
	}}
}

// RewardDistributed captures accrual credited to an account on one track.
type RewardDistributed struct {
	RewardType string
	Side       string
	Market     common.Address
	Account    common.Address
	Delta      *uint256.Int
	Index      *uint256.Int
}

// EventType implements the Event interface.
func (RewardDistributed) EventType() string { return TypeRewardDistributed }

// Event converts the payload into a broadcastable event.
func (e RewardDistributed) Event() *types.Event {
	return &types.Event{Type: TypeRewardDistributed, Attributes: map[string]string{
		"rewardType": e.RewardType,
		"side":       e.Side,
		"market":     e.Market.Hex(),
		"account":    e.Account.Hex(),
		"delta":      amountString(e.Delta),
		"index":      amountString(e.Index),
	}}
}

// RewardPayout captures a granted or deferred payout.
type RewardPayout struct {
	RewardType string
	Account    common.Address
	Amount     *uint256.Int
	Deferred   bool
}

// EventType implements the Event interface.
func (e RewardPayout) EventType() string {
	if e.Deferred {
		return TypeRewardPayoutDeferred
	}
	return TypeRewardGranted
}

// Event converts the payload into a broadcastable event.
func (e RewardPayout) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"rewardType": e.RewardType,
		"account":    e.Account.Hex(),
		"amount":     amountString(e.Amount),
	}}
}
