package comptroller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MarketView is the read surface the comptroller needs from a money market.
type MarketView interface {
	IsMarket() bool
	Comptroller() common.Address
	GetAccountSnapshot(account common.Address) (AccountSnapshot, error)
	TotalSupply() (*uint256.Int, error)
	TotalBorrows() (*uint256.Int, error)
	BorrowIndex() (*uint256.Int, error)
	BalanceOf(account common.Address) (*uint256.Int, error)
	BorrowBalanceStored(account common.Address) (*uint256.Int, error)
	ExchangeRateStored() (*uint256.Int, error)
}

// MarketSource resolves market addresses to their views.
type MarketSource interface {
	Market(addr common.Address) (MarketView, bool)
}

// PriceOracle reports underlying prices scaled to 1e18. A zero or nil price
// means the price is unavailable.
type PriceOracle interface {
	UnderlyingPrice(market common.Address) (*uint256.Int, error)
}

// RewardVault holds the reward reserves paid out by the flywheels.
type RewardVault interface {
	RewardBalance(rewardType RewardType) (*uint256.Int, error)
	TransferReward(rewardType RewardType, to common.Address, amount *uint256.Int) error
}

type engineState interface {
	ComptrollerParams() (*Params, error)
	ComptrollerPutParams(params *Params) error
	ComptrollerMarket(addr common.Address) (*Market, error)
	ComptrollerPutMarket(market *Market) error
	ComptrollerAllMarkets() ([]common.Address, error)
	ComptrollerPutAllMarkets(markets []common.Address) error
	ComptrollerAccountAssets(account common.Address) ([]common.Address, error)
	ComptrollerPutAccountAssets(account common.Address, assets []common.Address) error
	// ComptrollerMembership returns the 1-based position of market in the
	// account's asset list, or zero when the account is not a member.
	ComptrollerMembership(market, account common.Address) (uint64, error)
	ComptrollerPutMembership(market, account common.Address, position uint64) error
	ComptrollerRewardState(rewardType RewardType, side Side, market common.Address) (*RewardMarketState, error)
	ComptrollerPutRewardState(rewardType RewardType, side Side, market common.Address, st *RewardMarketState) error
	ComptrollerRewardSpeed(rewardType RewardType, side Side, market common.Address) (*uint256.Int, error)
	ComptrollerPutRewardSpeed(rewardType RewardType, side Side, market common.Address, speed *uint256.Int) error
	ComptrollerRewardIndex(rewardType RewardType, side Side, market, account common.Address) (*uint256.Int, error)
	ComptrollerPutRewardIndex(rewardType RewardType, side Side, market, account common.Address, index *uint256.Int) error
	ComptrollerRewardAccrued(rewardType RewardType, account common.Address) (*uint256.Int, error)
	ComptrollerPutRewardAccrued(rewardType RewardType, account common.Address, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}
