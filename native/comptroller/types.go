package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RewardType selects one of the two independent reward flywheels.
type RewardType uint8

const (
	// RewardGovernance emits the protocol governance token.
	RewardGovernance RewardType = iota
	// RewardNative emits the chain's native coin.
	RewardNative
)

// RewardTypes lists every flywheel in update order.
var RewardTypes = []RewardType{RewardGovernance, RewardNative}

func (r RewardType) Valid() bool { return r <= RewardNative }

func (r RewardType) String() string {
	switch r {
	case RewardGovernance:
		return "governance"
	case RewardNative:
		return "native"
	default:
		return fmt.Sprintf("reward(%d)", uint8(r))
	}
}

// ParseRewardType accepts the names produced by String as well as the
// numeric form.
func ParseRewardType(value string) (RewardType, error) {
	switch value {
	case "governance", "0":
		return RewardGovernance, nil
	case "native", "1":
		return RewardNative, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRewardType, value)
	}
}

// Side selects the supply or borrow accrual track of a flywheel.
type Side uint8

const (
	SideSupply Side = iota
	SideBorrow
)

func (s Side) String() string {
	if s == SideBorrow {
		return "borrow"
	}
	return "supply"
}

// Market is the comptroller's view of one listed money market.
type Market struct {
	// Address identifies the market contract.
	Address common.Address
	// Listed is set once the admin supports the market and never cleared.
	Listed bool
	// CollateralFactor is the 1e18 scaled share of supplied value that can
	// back borrows. Bounded by MaxCollateralFactor.
	CollateralFactor *uint256.Int
	// BorrowCap limits total borrows. Zero means unlimited.
	BorrowCap *uint256.Int
	// MintPaused blocks new supply when set.
	MintPaused bool
	// BorrowPaused blocks new borrows when set.
	BorrowPaused bool
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	out := *m
	out.CollateralFactor = clone(m.CollateralFactor)
	out.BorrowCap = clone(m.BorrowCap)
	return &out
}

// Params groups the protocol wide risk configuration and roles.
type Params struct {
	// Admin may list markets and change every parameter.
	Admin common.Address
	// PendingAdmin becomes Admin once it accepts the role.
	PendingAdmin common.Address
	// PauseGuardian may pause, but not unpause, actions.
	PauseGuardian common.Address
	// BorrowCapGuardian may set borrow caps alongside the admin.
	BorrowCapGuardian common.Address
	// Oracle is the address of the configured price source.
	Oracle common.Address
	// CloseFactor is the 1e18 scaled maximum share of a borrow that one
	// liquidation may repay.
	CloseFactor *uint256.Int
	// LiquidationIncentive is the 1e18 scaled collateral bonus paid to
	// liquidators.
	LiquidationIncentive *uint256.Int
	// MaxAssets caps the number of markets an account may enter. Zero
	// disables the cap.
	MaxAssets uint64
	// TransferPaused blocks market token transfers protocol wide.
	TransferPaused bool
	// SeizePaused blocks collateral seizure protocol wide.
	SeizePaused bool
	// GovernanceToken is the token emitted by the governance flywheel.
	GovernanceToken common.Address
}

// Clone returns a deep copy of the params.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	out := *p
	out.CloseFactor = clone(p.CloseFactor)
	out.LiquidationIncentive = clone(p.LiquidationIncentive)
	return &out
}

// RewardMarketState is the accrual index of one flywheel track.
type RewardMarketState struct {
	// Index is the cumulative reward per market token scaled by
	// RewardScale.
	Index *uint256.Int
	// Timestamp is the block time the index was last brought current.
	Timestamp uint32
}

// Clone returns a deep copy of the state.
func (s *RewardMarketState) Clone() *RewardMarketState {
	if s == nil {
		return nil
	}
	return &RewardMarketState{Index: clone(s.Index), Timestamp: s.Timestamp}
}

// AccountSnapshot is what a market reports for one account.
type AccountSnapshot struct {
	Tokens       *uint256.Int
	Borrow       *uint256.Int
	ExchangeRate *uint256.Int
}

// Liquidity is the result of a liquidity computation. At most one of
// Liquidity and Shortfall is non-zero.
type Liquidity struct {
	Liquidity *uint256.Int
	Shortfall *uint256.Int
}

// RewardSpeeds reports both track speeds of one flywheel for a market.
type RewardSpeeds struct {
	Supply *uint256.Int
	Borrow *uint256.Int
}
