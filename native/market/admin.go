package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

func (m *Market) requireAdmin(caller common.Address) (*Record, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	if caller != rec.Admin {
		return nil, fmt.Errorf("%w: %s is not market admin", ErrUnauthorized, caller.Hex())
	}
	return rec, nil
}

// SetExchangeRate replaces the stored exchange rate.
func (m *Market) SetExchangeRate(caller common.Address, rate *uint256.Int) error {
	rec, err := m.requireAdmin(caller)
	if err != nil {
		return err
	}
	if orZero(rate).IsZero() {
		return fmt.Errorf("%w: zero exchange rate", ErrInvalidAmount)
	}
	rec.ExchangeRate = clone(rate)
	if err := m.state.PutMarketRecord(rec); err != nil {
		return err
	}
	m.emitter.Emit(events.MarketRatesUpdated{Market: m.address, ExchangeRate: clone(rec.ExchangeRate), BorrowIndex: clone(rec.BorrowIndex)})
	return nil
}

// SetBorrowIndex moves the borrow index forward and scales total borrows by
// the same factor, as interest accrual would.
func (m *Market) SetBorrowIndex(caller common.Address, index *uint256.Int) error {
	rec, err := m.requireAdmin(caller)
	if err != nil {
		return err
	}
	if orZero(index).Lt(rec.BorrowIndex) {
		return ErrBorrowIndexDecrease
	}
	totalBorrows, err := mulDiv(rec.TotalBorrows, index, rec.BorrowIndex)
	if err != nil {
		return err
	}
	rec.TotalBorrows = totalBorrows
	rec.BorrowIndex = clone(index)
	if err := m.state.PutMarketRecord(rec); err != nil {
		return err
	}
	m.emitter.Emit(events.MarketRatesUpdated{Market: m.address, ExchangeRate: clone(rec.ExchangeRate), BorrowIndex: clone(rec.BorrowIndex)})
	m.logger.Info("borrow index updated", "market", m.address.Hex(), "index", index.Dec())
	return nil
}

// SeedCash adds underlying liquidity to the market without minting tokens.
func (m *Market) SeedCash(caller common.Address, amount *uint256.Int) error {
	rec, err := m.requireAdmin(caller)
	if err != nil {
		return err
	}
	if rec.Cash, err = add(rec.Cash, amount); err != nil {
		return err
	}
	return m.state.PutMarketRecord(rec)
}

// Fund credits account's underlying wallet. It stands in for the token
// transfers the market does not model.
func (m *Market) Fund(caller, account common.Address, amount *uint256.Int) error {
	if _, err := m.requireAdmin(caller); err != nil {
		return err
	}
	if orZero(amount).IsZero() {
		return ErrInvalidAmount
	}
	return m.creditUnderlying(account, amount)
}
