package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
)

// IsMarket reports that the market is a money market.
func (m *Market) IsMarket() bool { return true }

// Comptroller returns the address of the governing comptroller.
func (m *Market) Comptroller() common.Address {
	if m == nil || m.comptroller == nil {
		return common.Address{}
	}
	return m.comptroller.Address()
}

// GetAccountSnapshot reports account's token balance, borrow balance and the
// stored exchange rate.
func (m *Market) GetAccountSnapshot(account common.Address) (comptroller.AccountSnapshot, error) {
	rec, err := m.record()
	if err != nil {
		return comptroller.AccountSnapshot{}, err
	}
	tokens, err := m.BalanceOf(account)
	if err != nil {
		return comptroller.AccountSnapshot{}, err
	}
	borrow, err := m.BorrowBalanceStored(account)
	if err != nil {
		return comptroller.AccountSnapshot{}, err
	}
	return comptroller.AccountSnapshot{Tokens: tokens, Borrow: borrow, ExchangeRate: clone(rec.ExchangeRate)}, nil
}

func (m *Market) TotalSupply() (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return clone(rec.TotalSupply), nil
}

func (m *Market) TotalBorrows() (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return clone(rec.TotalBorrows), nil
}

func (m *Market) BorrowIndex() (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return clone(rec.BorrowIndex), nil
}

func (m *Market) ExchangeRateStored() (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return clone(rec.ExchangeRate), nil
}

func (m *Market) Cash() (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return clone(rec.Cash), nil
}

// BalanceOf returns account's market token balance.
func (m *Market) BalanceOf(account common.Address) (*uint256.Int, error) {
	if m == nil || m.state == nil {
		return nil, ErrStateUnavailable
	}
	balance, err := m.state.MarketTokenBalance(m.address, account)
	if err != nil {
		return nil, err
	}
	return clone(balance), nil
}

// BorrowBalanceStored returns account's debt at the stored borrow index:
// principal * borrowIndex / interestIndex.
func (m *Market) BorrowBalanceStored(account common.Address) (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	snapshot, err := m.state.MarketBorrowSnapshot(m.address, account)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || orZero(snapshot.Principal).IsZero() {
		return new(uint256.Int), nil
	}
	return mulDiv(snapshot.Principal, rec.BorrowIndex, snapshot.InterestIndex)
}

// UnderlyingBalance returns account's wallet balance of the underlying.
func (m *Market) UnderlyingBalance(account common.Address) (*uint256.Int, error) {
	if m == nil || m.state == nil {
		return nil, ErrStateUnavailable
	}
	balance, err := m.state.UnderlyingBalance(m.address, account)
	if err != nil {
		return nil, err
	}
	return clone(balance), nil
}
