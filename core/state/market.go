package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
	"lendcore/native/market"
)

type storedMarketRecord struct {
	Address      [20]byte
	Symbol       string
	Admin        [20]byte
	ExchangeRate *big.Int
	BorrowIndex  *big.Int
	TotalSupply  *big.Int
	TotalBorrows *big.Int
	Cash         *big.Int
}

type storedBorrowSnapshot struct {
	Principal     *big.Int
	InterestIndex *big.Int
}

// MarketRecord returns the totals of a reference market, or nil when the
// market was never initialised.
func (m *Manager) MarketRecord(addr common.Address) (*market.Record, error) {
	var stored storedMarketRecord
	ok, err := m.KVGet(MarketStateKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	out := &market.Record{Address: stored.Address, Symbol: stored.Symbol, Admin: stored.Admin}
	for _, field := range []struct {
		dst **uint256.Int
		src *big.Int
	}{
		{&out.ExchangeRate, stored.ExchangeRate},
		{&out.BorrowIndex, stored.BorrowIndex},
		{&out.TotalSupply, stored.TotalSupply},
		{&out.TotalBorrows, stored.TotalBorrows},
		{&out.Cash, stored.Cash},
	} {
		value, err := fromBig(field.src)
		if err != nil {
			return nil, err
		}
		*field.dst = value
	}
	return out, nil
}

func (m *Manager) PutMarketRecord(record *market.Record) error {
	if record == nil {
		return fmt.Errorf("state: nil market record")
	}
	return m.KVPut(MarketStateKey(record.Address), &storedMarketRecord{
		Address:      record.Address,
		Symbol:       record.Symbol,
		Admin:        record.Admin,
		ExchangeRate: toBig(record.ExchangeRate),
		BorrowIndex:  toBig(record.BorrowIndex),
		TotalSupply:  toBig(record.TotalSupply),
		TotalBorrows: toBig(record.TotalBorrows),
		Cash:         toBig(record.Cash),
	})
}

func (m *Manager) MarketTokenBalance(addr, account common.Address) (*uint256.Int, error) {
	return m.getAmount(MarketBalanceKey(addr, account))
}

func (m *Manager) PutMarketTokenBalance(addr, account common.Address, amount *uint256.Int) error {
	return m.putAmount(MarketBalanceKey(addr, account), amount)
}

func (m *Manager) MarketBorrowSnapshot(addr, account common.Address) (*market.BorrowSnapshot, error) {
	var stored storedBorrowSnapshot
	ok, err := m.KVGet(MarketBorrowKey(addr, account), &stored)
	if err != nil || !ok {
		return nil, err
	}
	principal, err := fromBig(stored.Principal)
	if err != nil {
		return nil, err
	}
	index, err := fromBig(stored.InterestIndex)
	if err != nil {
		return nil, err
	}
	return &market.BorrowSnapshot{Principal: principal, InterestIndex: index}, nil
}

func (m *Manager) PutMarketBorrowSnapshot(addr, account common.Address, snapshot *market.BorrowSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("state: nil borrow snapshot")
	}
	return m.KVPut(MarketBorrowKey(addr, account), &storedBorrowSnapshot{
		Principal:     toBig(snapshot.Principal),
		InterestIndex: toBig(snapshot.InterestIndex),
	})
}

func (m *Manager) UnderlyingBalance(addr, account common.Address) (*uint256.Int, error) {
	return m.getAmount(MarketUnderlyingKey(addr, account))
}

func (m *Manager) PutUnderlyingBalance(addr, account common.Address, amount *uint256.Int) error {
	return m.putAmount(MarketUnderlyingKey(addr, account), amount)
}

func (m *Manager) OraclePrice(addr common.Address) (*uint256.Int, error) {
	return m.getAmount(OraclePriceKey(addr))
}

func (m *Manager) OraclePutPrice(addr common.Address, price *uint256.Int) error {
	return m.putAmount(OraclePriceKey(addr), price)
}

// RewardVaultBalance returns the undistributed reserve of one reward token.
func (m *Manager) RewardVaultBalance(rt comptroller.RewardType) (*uint256.Int, error) {
	balance, err := m.getAmount(RewardVaultKey(rt.String()))
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return balance, nil
}

func (m *Manager) PutRewardVaultBalance(rt comptroller.RewardType, amount *uint256.Int) error {
	return m.putAmount(RewardVaultKey(rt.String()), amount)
}

// RewardBalance returns the reward tokens paid out to account.
func (m *Manager) RewardBalance(rt comptroller.RewardType, account common.Address) (*uint256.Int, error) {
	balance, err := m.getAmount(RewardBalanceKey(rt.String(), account))
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return balance, nil
}

func (m *Manager) PutRewardBalance(rt comptroller.RewardType, account common.Address, amount *uint256.Int) error {
	return m.putAmount(RewardBalanceKey(rt.String(), account), amount)
}
