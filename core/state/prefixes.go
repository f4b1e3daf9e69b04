package state

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	comptrollerParamsKey  = []byte("comptroller/params")
	comptrollerMarketsKey = []byte("comptroller/markets")
)

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// ComptrollerMarketKey stores the listing record of one market.
func ComptrollerMarketKey(market common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/market/%s", lowerHex(market)))
}

// ComptrollerAssetsKey stores the ordered markets an account has entered.
func ComptrollerAssetsKey(account common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/assets/%s", lowerHex(account)))
}

// ComptrollerMemberKey stores the 1-based position of market in the
// account's asset list.
func ComptrollerMemberKey(market, account common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/member/%s/%s", lowerHex(market), lowerHex(account)))
}

// RewardStateKey stores the accrual index of one flywheel track.
func RewardStateKey(rewardType, side string, market common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/reward/state/%s/%s/%s", rewardType, side, lowerHex(market)))
}

// RewardSpeedKey stores the emission speed of one flywheel track.
func RewardSpeedKey(rewardType, side string, market common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/reward/speed/%s/%s/%s", rewardType, side, lowerHex(market)))
}

// RewardIndexKey stores an account's snapshot of one flywheel track.
func RewardIndexKey(rewardType, side string, market, account common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/reward/index/%s/%s/%s/%s", rewardType, side, lowerHex(market), lowerHex(account)))
}

// RewardAccruedKey stores an account's unpaid reward balance.
func RewardAccruedKey(rewardType string, account common.Address) []byte {
	return []byte(fmt.Sprintf("comptroller/reward/accrued/%s/%s", rewardType, lowerHex(account)))
}

// MarketStateKey stores the totals and rates of a reference market.
func MarketStateKey(market common.Address) []byte {
	return []byte(fmt.Sprintf("market/state/%s", lowerHex(market)))
}

// MarketBalanceKey stores an account's market token balance.
func MarketBalanceKey(market, account common.Address) []byte {
	return []byte(fmt.Sprintf("market/balance/%s/%s", lowerHex(market), lowerHex(account)))
}

// MarketBorrowKey stores an account's borrow snapshot.
func MarketBorrowKey(market, account common.Address) []byte {
	return []byte(fmt.Sprintf("market/borrow/%s/%s", lowerHex(market), lowerHex(account)))
}

// MarketUnderlyingKey stores an account's wallet balance of the market's
// underlying asset.
func MarketUnderlyingKey(market, account common.Address) []byte {
	return []byte(fmt.Sprintf("market/underlying/%s/%s", lowerHex(market), lowerHex(account)))
}

// OraclePriceKey stores the posted underlying price of a market.
func OraclePriceKey(market common.Address) []byte {
	return []byte(fmt.Sprintf("oracle/price/%s", lowerHex(market)))
}

// RewardVaultKey stores the vault balance of one reward token.
func RewardVaultKey(rewardType string) []byte {
	return []byte(fmt.Sprintf("rewards/vault/%s", rewardType))
}

// RewardBalanceKey stores an account's paid out balance of one reward token.
func RewardBalanceKey(rewardType string, account common.Address) []byte {
	return []byte(fmt.Sprintf("rewards/balance/%s/%s", rewardType, lowerHex(account)))
}
