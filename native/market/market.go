package market

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/comptroller"
)

// Market is a reference money market. It keeps token balances, borrow
// snapshots and an underlying wallet per account, and asks its comptroller
// before every action. Exchange rate and borrow index only move by admin
// action.
type Market struct {
	address     common.Address
	state       marketState
	comptroller Comptroller
	registry    *Registry
	emitter     events.Emitter
	logger      *slog.Logger
}

// New constructs the market at address governed by comp.
func New(address common.Address, comp Comptroller) *Market {
	return &Market{
		address:     address,
		comptroller: comp,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default(),
	}
}

func (m *Market) Address() common.Address { return m.address }

func (m *Market) SetState(state marketState) { m.state = state }

func (m *Market) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

func (m *Market) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

func (m *Market) record() (*Record, error) {
	if m == nil || m.state == nil {
		return nil, ErrStateUnavailable
	}
	rec, err := m.state.MarketRecord(m.address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, m.address.Hex())
	}
	return rec, nil
}

// Initialize creates the market record. It fails when the market already
// exists.
func (m *Market) Initialize(admin common.Address, symbol string, exchangeRate *uint256.Int) error {
	if m == nil || m.state == nil {
		return ErrStateUnavailable
	}
	existing, err := m.state.MarketRecord(m.address)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, m.address.Hex())
	}
	if orZero(exchangeRate).IsZero() {
		return fmt.Errorf("%w: zero exchange rate", ErrInvalidAmount)
	}
	return m.state.PutMarketRecord(&Record{
		Address:      m.address,
		Symbol:       symbol,
		Admin:        admin,
		ExchangeRate: clone(exchangeRate),
		BorrowIndex:  clone(ExpScale),
		TotalSupply:  new(uint256.Int),
		TotalBorrows: new(uint256.Int),
		Cash:         new(uint256.Int),
	})
}

// Record returns a copy of the market totals.
func (m *Market) Record() (*Record, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func denied(action string, code comptroller.Code) error {
	return fmt.Errorf("market: %s rejected: %w", action, code.Err())
}

// Mint supplies amount of underlying from minter and credits market tokens
// at the stored exchange rate. It returns the tokens minted.
func (m *Market) Mint(minter common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if orZero(amount).IsZero() {
		return nil, ErrInvalidAmount
	}
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	code, err := m.comptroller.MintAllowed(m.address, minter, amount)
	if err != nil {
		return nil, err
	}
	if code != comptroller.NoError {
		return nil, denied("mint", code)
	}
	tokens, err := mulDiv(amount, ExpScale, rec.ExchangeRate)
	if err != nil {
		return nil, err
	}
	if tokens.IsZero() {
		return nil, fmt.Errorf("%w: mint rounds to zero tokens", ErrInvalidAmount)
	}
	if err := m.debitUnderlying(minter, amount); err != nil {
		return nil, err
	}
	if err := m.creditTokens(minter, tokens); err != nil {
		return nil, err
	}
	if rec.Cash, err = add(rec.Cash, amount); err != nil {
		return nil, err
	}
	if rec.TotalSupply, err = add(rec.TotalSupply, tokens); err != nil {
		return nil, err
	}
	if err := m.state.PutMarketRecord(rec); err != nil {
		return nil, err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionMint, Market: m.address, Account: minter, Amount: amount, Tokens: tokens}); err != nil {
		return nil, err
	}
	m.emit(events.TypeMarketMint, minter, common.Address{}, amount, tokens)
	return tokens, nil
}

// Redeem burns redeemTokens of redeemer and returns the underlying paid
// out.
func (m *Market) Redeem(redeemer common.Address, redeemTokens *uint256.Int) (*uint256.Int, error) {
	if orZero(redeemTokens).IsZero() {
		return nil, ErrInvalidAmount
	}
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	code, err := m.comptroller.RedeemAllowed(m.address, redeemer, redeemTokens)
	if err != nil {
		return nil, err
	}
	if code != comptroller.NoError {
		return nil, denied("redeem", code)
	}
	amount, err := mulDiv(redeemTokens, rec.ExchangeRate, ExpScale)
	if err != nil {
		return nil, err
	}
	if amount.Gt(orZero(rec.Cash)) {
		return nil, ErrInsufficientCash
	}
	if err := m.debitTokens(redeemer, redeemTokens); err != nil {
		return nil, err
	}
	if err := m.creditUnderlying(redeemer, amount); err != nil {
		return nil, err
	}
	rec.Cash = subFloor(rec.Cash, amount)
	rec.TotalSupply = subFloor(rec.TotalSupply, redeemTokens)
	if err := m.state.PutMarketRecord(rec); err != nil {
		return nil, err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionRedeem, Market: m.address, Account: redeemer, Amount: amount, Tokens: redeemTokens}); err != nil {
		return nil, err
	}
	m.emit(events.TypeMarketRedeem, redeemer, common.Address{}, amount, redeemTokens)
	return amount, nil
}

// Borrow lends amount of underlying to borrower. The market calls the
// borrow hook as itself so a borrower outside the market is entered
// automatically.
func (m *Market) Borrow(borrower common.Address, amount *uint256.Int) error {
	if orZero(amount).IsZero() {
		return ErrInvalidAmount
	}
	if _, err := m.record(); err != nil {
		return err
	}
	code, err := m.comptroller.BorrowAllowed(m.address, m.address, borrower, amount)
	if err != nil {
		return err
	}
	if code != comptroller.NoError {
		return denied("borrow", code)
	}
	rec, err := m.record()
	if err != nil {
		return err
	}
	if amount.Gt(orZero(rec.Cash)) {
		return ErrInsufficientCash
	}
	current, err := m.BorrowBalanceStored(borrower)
	if err != nil {
		return err
	}
	principal, err := add(current, amount)
	if err != nil {
		return err
	}
	if err := m.state.PutMarketBorrowSnapshot(m.address, borrower, &BorrowSnapshot{Principal: principal, InterestIndex: clone(rec.BorrowIndex)}); err != nil {
		return err
	}
	if rec.TotalBorrows, err = add(rec.TotalBorrows, amount); err != nil {
		return err
	}
	rec.Cash = subFloor(rec.Cash, amount)
	if err := m.state.PutMarketRecord(rec); err != nil {
		return err
	}
	if err := m.creditUnderlying(borrower, amount); err != nil {
		return err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionBorrow, Market: m.address, Account: borrower, Amount: amount}); err != nil {
		return err
	}
	m.emit(events.TypeMarketBorrow, borrower, common.Address{}, amount, nil)
	return nil
}

// RepayBorrow repays amount of borrower's debt from payer's underlying. A
// nil or maximal amount repays the full balance. It returns the amount
// repaid.
func (m *Market) RepayBorrow(payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error) {
	repaid, err := m.repay(payer, borrower, amount)
	if err != nil {
		return nil, err
	}
	m.emit(events.TypeMarketRepayBorrow, payer, borrower, repaid, nil)
	return repaid, nil
}

func (m *Market) repay(payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error) {
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	current, err := m.BorrowBalanceStored(borrower)
	if err != nil {
		return nil, err
	}
	repayAmount := clone(amount)
	if amount == nil || amount.Eq(maxUint256) {
		repayAmount = clone(current)
	}
	if repayAmount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if repayAmount.Gt(current) {
		return nil, ErrRepayExceedsBorrow
	}
	code, err := m.comptroller.RepayBorrowAllowed(m.address, payer, borrower, repayAmount)
	if err != nil {
		return nil, err
	}
	if code != comptroller.NoError {
		return nil, denied("repay", code)
	}
	if err := m.debitUnderlying(payer, repayAmount); err != nil {
		return nil, err
	}
	// The hook may have moved reward state but never market totals.
	rec, err = m.record()
	if err != nil {
		return nil, err
	}
	principal := new(uint256.Int).Sub(current, repayAmount)
	if err := m.state.PutMarketBorrowSnapshot(m.address, borrower, &BorrowSnapshot{Principal: principal, InterestIndex: clone(rec.BorrowIndex)}); err != nil {
		return nil, err
	}
	rec.TotalBorrows = subFloor(rec.TotalBorrows, repayAmount)
	if rec.Cash, err = add(rec.Cash, repayAmount); err != nil {
		return nil, err
	}
	if err := m.state.PutMarketRecord(rec); err != nil {
		return nil, err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionRepay, Market: m.address, Account: borrower, Amount: repayAmount}); err != nil {
		return nil, err
	}
	return repayAmount, nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

// LiquidateBorrow repays repayAmount of borrower's debt on behalf of
// liquidator and seizes the matching collateral tokens from the collateral
// market. It returns the tokens seized.
func (m *Market) LiquidateBorrow(liquidator, borrower common.Address, repayAmount *uint256.Int, collateralMarket common.Address) (*uint256.Int, error) {
	if liquidator == borrower {
		return nil, ErrLiquidateSelf
	}
	if orZero(repayAmount).IsZero() || repayAmount.Eq(maxUint256) {
		return nil, ErrInvalidAmount
	}
	if _, err := m.record(); err != nil {
		return nil, err
	}
	code, err := m.comptroller.LiquidateBorrowAllowed(m.address, collateralMarket, liquidator, borrower, repayAmount)
	if err != nil {
		return nil, err
	}
	if code != comptroller.NoError {
		return nil, denied("liquidate", code)
	}
	collateral, ok := m.registry.Get(collateralMarket)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollateral, collateralMarket.Hex())
	}
	repaid, err := m.repay(liquidator, borrower, repayAmount)
	if err != nil {
		return nil, err
	}
	code, seizeTokens, err := m.comptroller.LiquidateCalculateSeizeTokens(m.address, collateralMarket, repaid)
	if err != nil {
		return nil, err
	}
	if code != comptroller.NoError {
		return nil, denied("seize calculation", code)
	}
	held, err := collateral.BalanceOf(borrower)
	if err != nil {
		return nil, err
	}
	if seizeTokens.Gt(held) {
		return nil, ErrSeizeTooMuch
	}
	if err := collateral.Seize(m.address, liquidator, borrower, seizeTokens); err != nil {
		return nil, err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionLiquidate, Market: m.address, Account: borrower, Amount: repaid, Tokens: seizeTokens}); err != nil {
		return nil, err
	}
	m.emit(events.TypeMarketLiquidate, liquidator, borrower, repaid, seizeTokens)
	m.logger.Info("borrow liquidated",
		"market", m.address.Hex(),
		"collateral", collateralMarket.Hex(),
		"borrower", borrower.Hex(),
		"repaid", repaid.Dec(),
		"seized", seizeTokens.Dec())
	return seizeTokens, nil
}

// Seize moves seizeTokens of borrower's collateral to liquidator. seizer
// is the market whose borrow is being liquidated; only markets call Seize.
func (m *Market) Seize(seizer, liquidator, borrower common.Address, seizeTokens *uint256.Int) error {
	if liquidator == borrower {
		return ErrLiquidateSelf
	}
	if _, err := m.record(); err != nil {
		return err
	}
	code, err := m.comptroller.SeizeAllowed(m.address, seizer, liquidator, borrower, seizeTokens)
	if err != nil {
		return err
	}
	if code != comptroller.NoError {
		return denied("seize", code)
	}
	if err := m.debitTokens(borrower, orZero(seizeTokens)); err != nil {
		return err
	}
	if err := m.creditTokens(liquidator, orZero(seizeTokens)); err != nil {
		return err
	}
	return m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionSeize, Market: m.address, Account: liquidator, Tokens: seizeTokens})
}

// Transfer moves market tokens from src to dst.
func (m *Market) Transfer(src, dst common.Address, tokens *uint256.Int) error {
	if src == dst {
		return ErrTransferSelf
	}
	if orZero(tokens).IsZero() {
		return ErrInvalidAmount
	}
	if _, err := m.record(); err != nil {
		return err
	}
	code, err := m.comptroller.TransferAllowed(m.address, src, dst, tokens)
	if err != nil {
		return err
	}
	if code != comptroller.NoError {
		return denied("transfer", code)
	}
	if err := m.debitTokens(src, tokens); err != nil {
		return err
	}
	if err := m.creditTokens(dst, tokens); err != nil {
		return err
	}
	if err := m.comptroller.Verify(comptroller.Verification{Action: comptroller.ActionTransfer, Market: m.address, Account: src, Tokens: tokens}); err != nil {
		return err
	}
	m.emit(events.TypeMarketTransfer, src, dst, nil, tokens)
	return nil
}

func (m *Market) emit(eventType string, account, counterparty common.Address, amount, tokens *uint256.Int) {
	m.emitter.Emit(events.MarketAction{
		Type:         eventType,
		Market:       m.address,
		Account:      account,
		Counterparty: counterparty,
		Amount:       clone(amount),
		Tokens:       clone(tokens),
	})
}

func (m *Market) creditTokens(account common.Address, tokens *uint256.Int) error {
	balance, err := m.BalanceOf(account)
	if err != nil {
		return err
	}
	next, err := add(balance, tokens)
	if err != nil {
		return err
	}
	return m.state.PutMarketTokenBalance(m.address, account, next)
}

func (m *Market) debitTokens(account common.Address, tokens *uint256.Int) error {
	balance, err := m.BalanceOf(account)
	if err != nil {
		return err
	}
	if tokens.Gt(balance) {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, balance.Dec(), tokens.Dec())
	}
	return m.state.PutMarketTokenBalance(m.address, account, new(uint256.Int).Sub(balance, tokens))
}

func (m *Market) creditUnderlying(account common.Address, amount *uint256.Int) error {
	balance, err := m.UnderlyingBalance(account)
	if err != nil {
		return err
	}
	next, err := add(balance, amount)
	if err != nil {
		return err
	}
	return m.state.PutUnderlyingBalance(m.address, account, next)
}

func (m *Market) debitUnderlying(account common.Address, amount *uint256.Int) error {
	balance, err := m.UnderlyingBalance(account)
	if err != nil {
		return err
	}
	if amount.Gt(balance) {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientUnderlying, balance.Dec(), amount.Dec())
	}
	return m.state.PutUnderlyingBalance(m.address, account, new(uint256.Int).Sub(balance, amount))
}
