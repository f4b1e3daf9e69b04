package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
)

type storedParams struct {
	Admin                [20]byte
	PendingAdmin         [20]byte
	PauseGuardian        [20]byte
	BorrowCapGuardian    [20]byte
	Oracle               [20]byte
	CloseFactor          *big.Int
	LiquidationIncentive *big.Int
	MaxAssets            uint64
	TransferPaused       bool
	SeizePaused          bool
	GovernanceToken      [20]byte
}

type storedMarket struct {
	Address          [20]byte
	Listed           bool
	CollateralFactor *big.Int
	BorrowCap        *big.Int
	MintPaused       bool
	BorrowPaused     bool
}

type storedRewardState struct {
	Index     *big.Int
	Timestamp uint32
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, fmt.Errorf("state: stored value %s out of range", v)
	}
	return out, nil
}

func (m *Manager) getAmount(key []byte) (*uint256.Int, error) {
	var stored big.Int
	ok, err := m.KVGet(key, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return fromBig(&stored)
}

func (m *Manager) putAmount(key []byte, amount *uint256.Int) error {
	return m.KVPut(key, toBig(amount))
}

func (m *Manager) getAddresses(key []byte) ([]common.Address, error) {
	var raw [][20]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, len(raw))
	for i := range raw {
		out[i] = common.Address(raw[i])
	}
	return out, nil
}

func (m *Manager) putAddresses(key []byte, addrs []common.Address) error {
	raw := make([][20]byte, len(addrs))
	for i := range addrs {
		raw[i] = addrs[i]
	}
	return m.KVPut(key, raw)
}

// ComptrollerParams returns the stored protocol parameters, or nil before
// they were first written.
func (m *Manager) ComptrollerParams() (*comptroller.Params, error) {
	var stored storedParams
	ok, err := m.KVGet(comptrollerParamsKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	closeFactor, err := fromBig(stored.CloseFactor)
	if err != nil {
		return nil, err
	}
	incentive, err := fromBig(stored.LiquidationIncentive)
	if err != nil {
		return nil, err
	}
	return &comptroller.Params{
		Admin:                stored.Admin,
		PendingAdmin:         stored.PendingAdmin,
		PauseGuardian:        stored.PauseGuardian,
		BorrowCapGuardian:    stored.BorrowCapGuardian,
		Oracle:               stored.Oracle,
		CloseFactor:          closeFactor,
		LiquidationIncentive: incentive,
		MaxAssets:            stored.MaxAssets,
		TransferPaused:       stored.TransferPaused,
		SeizePaused:          stored.SeizePaused,
		GovernanceToken:      stored.GovernanceToken,
	}, nil
}

func (m *Manager) ComptrollerPutParams(params *comptroller.Params) error {
	if params == nil {
		return fmt.Errorf("state: nil comptroller params")
	}
	return m.KVPut(comptrollerParamsKey, &storedParams{
		Admin:                params.Admin,
		PendingAdmin:         params.PendingAdmin,
		PauseGuardian:        params.PauseGuardian,
		BorrowCapGuardian:    params.BorrowCapGuardian,
		Oracle:               params.Oracle,
		CloseFactor:          toBig(params.CloseFactor),
		LiquidationIncentive: toBig(params.LiquidationIncentive),
		MaxAssets:            params.MaxAssets,
		TransferPaused:       params.TransferPaused,
		SeizePaused:          params.SeizePaused,
		GovernanceToken:      params.GovernanceToken,
	})
}

// ComptrollerMarket returns the listing record of addr, or nil when the
// market was never supported.
func (m *Manager) ComptrollerMarket(addr common.Address) (*comptroller.Market, error) {
	var stored storedMarket
	ok, err := m.KVGet(ComptrollerMarketKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	collateralFactor, err := fromBig(stored.CollateralFactor)
	if err != nil {
		return nil, err
	}
	borrowCap, err := fromBig(stored.BorrowCap)
	if err != nil {
		return nil, err
	}
	return &comptroller.Market{
		Address:          stored.Address,
		Listed:           stored.Listed,
		CollateralFactor: collateralFactor,
		BorrowCap:        borrowCap,
		MintPaused:       stored.MintPaused,
		BorrowPaused:     stored.BorrowPaused,
	}, nil
}

func (m *Manager) ComptrollerPutMarket(market *comptroller.Market) error {
	if market == nil {
		return fmt.Errorf("state: nil comptroller market")
	}
	return m.KVPut(ComptrollerMarketKey(market.Address), &storedMarket{
		Address:          market.Address,
		Listed:           market.Listed,
		CollateralFactor: toBig(market.CollateralFactor),
		BorrowCap:        toBig(market.BorrowCap),
		MintPaused:       market.MintPaused,
		BorrowPaused:     market.BorrowPaused,
	})
}

func (m *Manager) ComptrollerAllMarkets() ([]common.Address, error) {
	return m.getAddresses(comptrollerMarketsKey)
}

func (m *Manager) ComptrollerPutAllMarkets(markets []common.Address) error {
	return m.putAddresses(comptrollerMarketsKey, markets)
}

func (m *Manager) ComptrollerAccountAssets(account common.Address) ([]common.Address, error) {
	return m.getAddresses(ComptrollerAssetsKey(account))
}

func (m *Manager) ComptrollerPutAccountAssets(account common.Address, assets []common.Address) error {
	if len(assets) == 0 {
		return m.KVDelete(ComptrollerAssetsKey(account))
	}
	return m.putAddresses(ComptrollerAssetsKey(account), assets)
}

func (m *Manager) ComptrollerMembership(market, account common.Address) (uint64, error) {
	var position uint64
	if _, err := m.KVGet(ComptrollerMemberKey(market, account), &position); err != nil {
		return 0, err
	}
	return position, nil
}

func (m *Manager) ComptrollerPutMembership(market, account common.Address, position uint64) error {
	if position == 0 {
		return m.KVDelete(ComptrollerMemberKey(market, account))
	}
	return m.KVPut(ComptrollerMemberKey(market, account), position)
}

func (m *Manager) ComptrollerRewardState(rt comptroller.RewardType, side comptroller.Side, market common.Address) (*comptroller.RewardMarketState, error) {
	var stored storedRewardState
	ok, err := m.KVGet(RewardStateKey(rt.String(), side.String(), market), &stored)
	if err != nil || !ok {
		return nil, err
	}
	index, err := fromBig(stored.Index)
	if err != nil {
		return nil, err
	}
	return &comptroller.RewardMarketState{Index: index, Timestamp: stored.Timestamp}, nil
}

func (m *Manager) ComptrollerPutRewardState(rt comptroller.RewardType, side comptroller.Side, market common.Address, st *comptroller.RewardMarketState) error {
	if st == nil {
		return fmt.Errorf("state: nil reward state")
	}
	return m.KVPut(RewardStateKey(rt.String(), side.String(), market), &storedRewardState{
		Index:     toBig(st.Index),
		Timestamp: st.Timestamp,
	})
}

func (m *Manager) ComptrollerRewardSpeed(rt comptroller.RewardType, side comptroller.Side, market common.Address) (*uint256.Int, error) {
	return m.getAmount(RewardSpeedKey(rt.String(), side.String(), market))
}

func (m *Manager) ComptrollerPutRewardSpeed(rt comptroller.RewardType, side comptroller.Side, market common.Address, speed *uint256.Int) error {
	return m.putAmount(RewardSpeedKey(rt.String(), side.String(), market), speed)
}

func (m *Manager) ComptrollerRewardIndex(rt comptroller.RewardType, side comptroller.Side, market, account common.Address) (*uint256.Int, error) {
	return m.getAmount(RewardIndexKey(rt.String(), side.String(), market, account))
}

func (m *Manager) ComptrollerPutRewardIndex(rt comptroller.RewardType, side comptroller.Side, market, account common.Address, index *uint256.Int) error {
	return m.putAmount(RewardIndexKey(rt.String(), side.String(), market, account), index)
}

func (m *Manager) ComptrollerRewardAccrued(rt comptroller.RewardType, account common.Address) (*uint256.Int, error) {
	return m.getAmount(RewardAccruedKey(rt.String(), account))
}

func (m *Manager) ComptrollerPutRewardAccrued(rt comptroller.RewardType, account common.Address, amount *uint256.Int) error {
	return m.putAmount(RewardAccruedKey(rt.String(), account), amount)
}
