package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
)

// Bootstrap applies the genesis configuration through the admin surface so
// genesis obeys the same bounds as later changes. It runs once per ledger.
func (l *Ledger) Bootstrap(ctx context.Context, cfg comptroller.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return l.Execute(ctx, "bootstrap", func() error {
		params, err := l.engine.Params()
		if err != nil {
			return err
		}
		if params.Admin != (common.Address{}) {
			return ErrAlreadyBootstrapped
		}
		admin, err := comptroller.ParseAddress(cfg.Admin)
		if err != nil {
			return err
		}
		if err := l.engine.InitAdmin(admin); err != nil {
			return err
		}
		closeFactor, err := comptroller.ParseMantissa(cfg.CloseFactor)
		if err != nil {
			return err
		}
		if err := step("close factor")(l.engine.SetCloseFactor(admin, closeFactor)); err != nil {
			return err
		}
		incentive, err := comptroller.ParseMantissa(cfg.LiquidationIncentive)
		if err != nil {
			return err
		}
		if err := step("liquidation incentive")(l.engine.SetLiquidationIncentive(admin, incentive)); err != nil {
			return err
		}
		if cfg.MaxAssets != 0 {
			if err := step("max assets")(l.engine.SetMaxAssets(admin, cfg.MaxAssets)); err != nil {
				return err
			}
		}
		roles := []struct {
			name  string
			value string
			set   func(caller, value common.Address) (comptroller.Code, error)
		}{
			{"pause guardian", cfg.PauseGuardian, l.engine.SetPauseGuardian},
			{"borrow cap guardian", cfg.BorrowCapGuardian, l.engine.SetBorrowCapGuardian},
			{"governance token", cfg.GovernanceToken, l.engine.SetRewardToken},
		}
		for _, role := range roles {
			addr, err := comptroller.ParseAddress(role.value)
			if err != nil {
				return fmt.Errorf("%s: %w", role.name, err)
			}
			if addr == (common.Address{}) {
				continue
			}
			if err := step(role.name)(role.set(admin, addr)); err != nil {
				return err
			}
		}
		for i, mc := range cfg.Markets {
			if err := l.bootstrapMarket(admin, mc); err != nil {
				return fmt.Errorf("markets[%d]: %w", i, err)
			}
		}
		l.logger.Info("ledger bootstrapped", "admin", admin.Hex(), "markets", len(cfg.Markets))
		return nil
	})
}

// step adapts a (Code, error) result into an error tagged with name.
func step(name string) func(comptroller.Code, error) error {
	return func(code comptroller.Code, err error) error { return codeErr(name, code, err) }
}

func (l *Ledger) bootstrapMarket(admin common.Address, mc comptroller.MarketConfig) error {
	addr, err := comptroller.ParseAddress(mc.Address)
	if err != nil {
		return err
	}
	exchangeRate, err := comptroller.ParseMantissa(mc.ExchangeRate)
	if err != nil {
		return err
	}
	price, err := parseOptionalMantissa(mc.Price)
	if err != nil {
		return err
	}
	collateralFactor, err := parseOptionalMantissa(mc.CollateralFactor)
	if err != nil {
		return err
	}
	cash, err := comptroller.ParseAmount(mc.Cash)
	if err != nil {
		return err
	}
	borrowCap, err := comptroller.ParseAmount(mc.BorrowCap)
	if err != nil {
		return err
	}

	if err := l.createMarket(admin, addr, mc.Symbol, exchangeRate); err != nil {
		return err
	}
	m, err := l.Market(addr)
	if err != nil {
		return err
	}
	if !cash.IsZero() {
		if err := m.SeedCash(admin, cash); err != nil {
			return err
		}
	}
	if !price.IsZero() {
		if err := l.oracle.SetUnderlyingPrice(admin, addr, price); err != nil {
			return err
		}
	}
	if !collateralFactor.IsZero() {
		if err := step("collateral factor")(l.engine.SetCollateralFactor(admin, addr, collateralFactor)); err != nil {
			return err
		}
	}
	if !borrowCap.IsZero() {
		if err := step("borrow cap")(l.engine.SetMarketBorrowCaps(admin, []common.Address{addr}, []*uint256.Int{borrowCap})); err != nil {
			return err
		}
	}
	speeds := []struct {
		rt             comptroller.RewardType
		supply, borrow string
	}{
		{comptroller.RewardGovernance, mc.GovernanceSupplySpeed, mc.GovernanceBorrowSpeed},
		{comptroller.RewardNative, mc.NativeSupplySpeed, mc.NativeBorrowSpeed},
	}
	for _, s := range speeds {
		supply, err := comptroller.ParseAmount(s.supply)
		if err != nil {
			return err
		}
		borrow, err := comptroller.ParseAmount(s.borrow)
		if err != nil {
			return err
		}
		if supply.IsZero() && borrow.IsZero() {
			continue
		}
		if err := step(s.rt.String() + " speeds")(l.engine.SetRewardSpeeds(admin, s.rt, addr, supply, borrow)); err != nil {
			return err
		}
	}
	return nil
}

func parseOptionalMantissa(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	return comptroller.ParseMantissa(value)
}

// createMarket initialises a reference market and lists it. Callers run
// inside Execute, which unregisters the market again if the action reverts.
func (l *Ledger) createMarket(caller, addr common.Address, symbol string, exchangeRate *uint256.Int) error {
	if _, exists := l.markets.Get(addr); exists {
		return fmt.Errorf("ledger: market %s already registered", addr.Hex())
	}
	symbol, err := comptroller.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	m := l.registerMarket(addr)
	if err := m.Initialize(caller, symbol, exchangeRate); err != nil {
		return err
	}
	return step("support market")(l.engine.SupportMarket(caller, addr))
}

// CreateMarket initialises and lists a new reference market with caller as
// its admin. caller must be the comptroller admin.
func (l *Ledger) CreateMarket(ctx context.Context, caller, addr common.Address, symbol string, exchangeRate *uint256.Int) error {
	return l.Execute(ctx, "create_market", func() error {
		return l.createMarket(caller, addr, symbol, exchangeRate)
	})
}

// FundRewards adds amount to the reward vault. Only the comptroller admin
// may fund it.
func (l *Ledger) FundRewards(ctx context.Context, caller common.Address, rt comptroller.RewardType, amount *uint256.Int) error {
	if !rt.Valid() {
		return comptroller.ErrInvalidRewardType
	}
	return l.Execute(ctx, "fund_rewards", func() error {
		params, err := l.engine.Params()
		if err != nil {
			return err
		}
		if caller != params.Admin {
			return fmt.Errorf("%w: %s is not admin", comptroller.ErrUnauthorized, caller.Hex())
		}
		return l.vault.deposit(rt, amount)
	})
}

// RewardBalance returns the reward tokens paid out to account.
func (l *Ledger) RewardBalance(rt comptroller.RewardType, account common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.View(func() error {
		var err error
		out, err = l.state.RewardBalance(rt, account)
		return err
	})
	return out, err
}

// RewardReserve returns the undistributed vault balance of rt.
func (l *Ledger) RewardReserve(rt comptroller.RewardType) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.View(func() error {
		var err error
		out, err = l.vault.RewardBalance(rt)
		return err
	})
	return out, err
}

// Mint supplies amount of underlying to market for minter.
func (l *Ledger) Mint(ctx context.Context, marketAddr, minter common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var tokens *uint256.Int
	err := l.withMarket(ctx, "mint", marketAddr, func(m marketOps) error {
		var err error
		tokens, err = m.Mint(minter, amount)
		return err
	})
	return tokens, err
}

// Redeem burns tokens of market for redeemer.
func (l *Ledger) Redeem(ctx context.Context, marketAddr, redeemer common.Address, tokens *uint256.Int) (*uint256.Int, error) {
	var amount *uint256.Int
	err := l.withMarket(ctx, "redeem", marketAddr, func(m marketOps) error {
		var err error
		amount, err = m.Redeem(redeemer, tokens)
		return err
	})
	return amount, err
}

// Borrow lends amount of market's underlying to borrower.
func (l *Ledger) Borrow(ctx context.Context, marketAddr, borrower common.Address, amount *uint256.Int) error {
	return l.withMarket(ctx, "borrow", marketAddr, func(m marketOps) error {
		return m.Borrow(borrower, amount)
	})
}

// RepayBorrow repays borrower's debt in market from payer.
func (l *Ledger) RepayBorrow(ctx context.Context, marketAddr, payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := l.withMarket(ctx, "repay_borrow", marketAddr, func(m marketOps) error {
		var err error
		repaid, err = m.RepayBorrow(payer, borrower, amount)
		return err
	})
	return repaid, err
}

// LiquidateBorrow liquidates borrower's debt in marketAddr against
// collateral.
func (l *Ledger) LiquidateBorrow(ctx context.Context, marketAddr, liquidator, borrower common.Address, repay *uint256.Int, collateral common.Address) (*uint256.Int, error) {
	var seized *uint256.Int
	err := l.withMarket(ctx, "liquidate_borrow", marketAddr, func(m marketOps) error {
		var err error
		seized, err = m.LiquidateBorrow(liquidator, borrower, repay, collateral)
		return err
	})
	return seized, err
}

// Transfer moves market tokens between accounts.
func (l *Ledger) Transfer(ctx context.Context, marketAddr, src, dst common.Address, tokens *uint256.Int) error {
	return l.withMarket(ctx, "transfer", marketAddr, func(m marketOps) error {
		return m.Transfer(src, dst, tokens)
	})
}

// EnterMarkets adds markets to account's liquidity calculation. Denied
// entries are reported per market and do not abort the others.
func (l *Ledger) EnterMarkets(ctx context.Context, account common.Address, markets []common.Address) ([]comptroller.Code, error) {
	var codes []comptroller.Code
	err := l.Execute(ctx, "enter_markets", func() error {
		var err error
		codes, err = l.engine.EnterMarkets(account, markets)
		return err
	})
	return codes, err
}

// ExitMarket removes market from account's liquidity calculation.
func (l *Ledger) ExitMarket(ctx context.Context, account, market common.Address) (comptroller.Code, error) {
	var code comptroller.Code
	err := l.Execute(ctx, "exit_market", func() error {
		var err error
		code, err = l.engine.ExitMarket(account, market)
		return err
	})
	return code, err
}

// ClaimReward accrues and pays holder's rewards of type rt. markets limits
// the claim; nil claims every listed market.
func (l *Ledger) ClaimReward(ctx context.Context, rt comptroller.RewardType, holder common.Address, markets []common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := l.Execute(ctx, "claim_reward", func() error {
		var err error
		if markets == nil {
			paid, err = l.engine.ClaimReward(rt, holder)
		} else {
			paid, err = l.engine.ClaimRewardIn(rt, holder, markets)
		}
		return err
	})
	return paid, err
}

// PostPrice records a new underlying price for market.
func (l *Ledger) PostPrice(ctx context.Context, caller, market common.Address, price *uint256.Int) error {
	return l.Execute(ctx, "post_price", func() error {
		return l.oracle.SetUnderlyingPrice(caller, market, price)
	})
}

// AccountLiquidity reports account's liquidity against current state.
func (l *Ledger) AccountLiquidity(account common.Address) (comptroller.Code, comptroller.Liquidity, error) {
	var (
		code      comptroller.Code
		liquidity comptroller.Liquidity
	)
	err := l.View(func() error {
		var err error
		code, liquidity, err = l.engine.AccountLiquidity(account)
		return err
	})
	return code, liquidity, err
}

// HypotheticalAccountLiquidity reports account's liquidity after a
// hypothetical redeem of redeemTokens and borrow of borrowAmount in modify.
func (l *Ledger) HypotheticalAccountLiquidity(account, modify common.Address, redeemTokens, borrowAmount *uint256.Int) (comptroller.Code, comptroller.Liquidity, error) {
	var (
		code      comptroller.Code
		liquidity comptroller.Liquidity
	)
	err := l.View(func() error {
		var err error
		code, liquidity, err = l.engine.HypotheticalAccountLiquidity(account, modify, redeemTokens, borrowAmount)
		return err
	})
	return code, liquidity, err
}

// PendingReward reports what a claim of rt would accrue for holder now.
func (l *Ledger) PendingReward(rt comptroller.RewardType, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.View(func() error {
		var err error
		out, err = l.engine.PendingReward(rt, holder)
		return err
	})
	return out, err
}

// Admin runs fn, typically a comptroller admin setter, as one atomic
// action. A non-allow code reverts the action and is returned as an error.
func (l *Ledger) Admin(ctx context.Context, name string, fn func(engine *comptroller.Engine) (comptroller.Code, error)) error {
	return l.Execute(ctx, name, func() error {
		return step(name)(fn(l.engine))
	})
}

// MarketSummary is a read-only view of one market.
type MarketSummary struct {
	Market           *comptroller.Market
	Symbol           string
	ExchangeRate     *uint256.Int
	BorrowIndex      *uint256.Int
	TotalSupply      *uint256.Int
	TotalBorrows     *uint256.Int
	Cash             *uint256.Int
	Price            *uint256.Int
	GovernanceSpeeds comptroller.RewardSpeeds
	NativeSpeeds     comptroller.RewardSpeeds
}

// MarketSummaries describes every registered market.
func (l *Ledger) MarketSummaries() ([]MarketSummary, error) {
	var out []MarketSummary
	err := l.View(func() error {
		for _, addr := range l.markets.Addresses() {
			m, _ := l.markets.Get(addr)
			record, err := m.Record()
			if err != nil {
				return err
			}
			listing, err := l.engine.Market(addr)
			if err != nil {
				return err
			}
			price, err := l.oracle.UnderlyingPrice(addr)
			if err != nil {
				return err
			}
			governance, err := l.engine.RewardSpeedsOf(comptroller.RewardGovernance, addr)
			if err != nil {
				return err
			}
			native, err := l.engine.RewardSpeedsOf(comptroller.RewardNative, addr)
			if err != nil {
				return err
			}
			out = append(out, MarketSummary{
				Market:           listing,
				Symbol:           record.Symbol,
				ExchangeRate:     record.ExchangeRate,
				BorrowIndex:      record.BorrowIndex,
				TotalSupply:      record.TotalSupply,
				TotalBorrows:     record.TotalBorrows,
				Cash:             record.Cash,
				Price:            price,
				GovernanceSpeeds: governance,
				NativeSpeeds:     native,
			})
		}
		return nil
	})
	return out, err
}

// MarketAdmin runs fn against the concrete market as one atomic action,
// for market admin operations (rates, cash, funding).
func (l *Ledger) MarketAdmin(ctx context.Context, name string, marketAddr common.Address, fn func(m MarketAdminOps) error) error {
	return l.Execute(ctx, name, func() error {
		m, err := l.Market(marketAddr)
		if err != nil {
			return err
		}
		return fn(m)
	})
}

func (l *Ledger) withMarket(ctx context.Context, name string, marketAddr common.Address, fn func(m marketOps) error) error {
	return l.Execute(ctx, name, func() error {
		m, err := l.Market(marketAddr)
		if err != nil {
			return err
		}
		return fn(m)
	})
}

type marketOps interface {
	Mint(minter common.Address, amount *uint256.Int) (*uint256.Int, error)
	Redeem(redeemer common.Address, tokens *uint256.Int) (*uint256.Int, error)
	Borrow(borrower common.Address, amount *uint256.Int) error
	RepayBorrow(payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error)
	LiquidateBorrow(liquidator, borrower common.Address, repay *uint256.Int, collateral common.Address) (*uint256.Int, error)
	Transfer(src, dst common.Address, tokens *uint256.Int) error
}

// MarketAdminOps are the market admin operations MarketAdmin exposes.
type MarketAdminOps interface {
	SetExchangeRate(caller common.Address, rate *uint256.Int) error
	SetBorrowIndex(caller common.Address, index *uint256.Int) error
	SeedCash(caller common.Address, amount *uint256.Int) error
	Fund(caller, account common.Address, amount *uint256.Int) error
}
