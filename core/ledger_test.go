package core

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	"lendcore/native/comptroller"
	"lendcore/native/market"
	"lendcore/storage"
)

var (
	ledgerAdmin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	collateralX = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	borrowY     = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recordingSink) count(eventType string) int {
	n := 0
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mantissa(t *testing.T, value string) *uint256.Int {
	t.Helper()
	out, err := comptroller.ParseMantissa(value)
	require.NoError(t, err)
	return out
}

func testConfig() comptroller.Config {
	cfg := comptroller.DefaultConfig()
	cfg.Admin = ledgerAdmin.Hex()
	cfg.MaxAssets = 10
	cfg.Markets = []comptroller.MarketConfig{
		{
			Address:               collateralX.Hex(),
			Symbol:                "lX",
			CollateralFactor:      "0.5",
			ExchangeRate:          "1",
			Price:                 "10",
			GovernanceSupplySpeed: "10",
		},
		{
			Address:      borrowY.Hex(),
			Symbol:       "lY",
			ExchangeRate: "1",
			Price:        "1",
			Cash:         "10000",
		},
	}
	return cfg
}

type ledgerFixture struct {
	ctx    context.Context
	db     *storage.MemDB
	ledger *Ledger
	sink   *recordingSink
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := storage.NewMemDB()
	sink := &recordingSink{}
	l, err := NewLedger(db, ledgerAdmin, LedgerOptions{Emitter: sink})
	require.NoError(t, err)
	l.SetBlockTime(1000)
	ctx := context.Background()
	require.NoError(t, l.Bootstrap(ctx, testConfig()))
	return &ledgerFixture{ctx: ctx, db: db, ledger: l, sink: sink}
}

func (f *ledgerFixture) fund(t *testing.T, marketAddr, account common.Address, value uint64) {
	t.Helper()
	err := f.ledger.MarketAdmin(f.ctx, "fund", marketAddr, func(m MarketAdminOps) error {
		return m.Fund(ledgerAdmin, account, amount(value))
	})
	require.NoError(t, err)
}

// supplyCollateral mints 100 tokens of X for alice and enters X.
func (f *ledgerFixture) supplyCollateral(t *testing.T) {
	t.Helper()
	f.fund(t, collateralX, alice, 100)
	tokens, err := f.ledger.Mint(f.ctx, collateralX, alice, amount(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100), tokens.Uint64())
	codes, err := f.ledger.EnterMarkets(f.ctx, alice, []common.Address{collateralX})
	require.NoError(t, err)
	require.Equal(t, []comptroller.Code{comptroller.NoError}, codes)
}

func TestBootstrapListsConfiguredMarkets(t *testing.T) {
	f := newLedgerFixture(t)

	summaries, err := f.ledger.MarketSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "lX", summaries[0].Symbol)
	require.True(t, summaries[0].Market.Listed)
	require.Equal(t, mantissa(t, "0.5"), summaries[0].Market.CollateralFactor)
	require.Equal(t, mantissa(t, "10"), summaries[0].Price)
	require.Equal(t, uint64(10), summaries[0].GovernanceSpeeds.Supply.Uint64())
	require.Equal(t, uint64(10000), summaries[1].Cash.Uint64())

	require.ErrorIs(t, f.ledger.Bootstrap(f.ctx, testConfig()), ErrAlreadyBootstrapped)
	require.Equal(t, 2, f.sink.count(events.TypeMarketListed))
}

func TestBootstrapFailureLeavesNothingBehind(t *testing.T) {
	db := storage.NewMemDB()
	sink := &recordingSink{}
	l, err := NewLedger(db, ledgerAdmin, LedgerOptions{Emitter: sink})
	require.NoError(t, err)

	cfg := testConfig()
	// A price posted by someone other than the oracle admin fails halfway.
	cfg.Admin = bob.Hex()
	require.Error(t, l.Bootstrap(context.Background(), cfg))

	require.Empty(t, l.Markets())
	require.Empty(t, sink.events)
	require.Zero(t, db.Len())
	params, err := l.Comptroller().Params()
	require.NoError(t, err)
	require.Equal(t, common.Address{}, params.Admin)
}

func TestBootstrapMarketRejectsMalformedValues(t *testing.T) {
	f := newLedgerFixture(t)
	fresh := common.HexToAddress("0x0000000000000000000000000000000000000c06")
	cases := map[string]comptroller.MarketConfig{
		"address":       {Address: "not-hex", Symbol: "lW", ExchangeRate: "1"},
		"exchange rate": {Address: fresh.Hex(), Symbol: "lW", ExchangeRate: "one"},
		"cash":          {Address: fresh.Hex(), Symbol: "lW", ExchangeRate: "1", Cash: "-5"},
		"borrow speed":  {Address: fresh.Hex(), Symbol: "lW", ExchangeRate: "1", NativeBorrowSpeed: "fast"},
	}
	for name, mc := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.ledger.Execute(f.ctx, "bootstrap_market", func() error {
				return f.ledger.bootstrapMarket(ledgerAdmin, mc)
			})
			require.Error(t, err)
			_, err = f.ledger.Market(fresh)
			require.ErrorIs(t, err, ErrUnknownMarket)
		})
	}
}

func TestLiquidityAndBorrowLimit(t *testing.T) {
	f := newLedgerFixture(t)
	f.supplyCollateral(t)

	code, liquidity, err := f.ledger.AccountLiquidity(alice)
	require.NoError(t, err)
	require.Equal(t, comptroller.NoError, code)
	require.Equal(t, uint64(500), liquidity.Liquidity.Uint64())
	require.True(t, liquidity.Shortfall.IsZero())

	// Hypothetical effects only apply to entered markets.
	_, liquidity, err = f.ledger.HypotheticalAccountLiquidity(alice, borrowY, amount(0), amount(501))
	require.NoError(t, err)
	require.Equal(t, uint64(500), liquidity.Liquidity.Uint64())

	codes, err := f.ledger.EnterMarkets(f.ctx, alice, []common.Address{borrowY})
	require.NoError(t, err)
	require.Equal(t, []comptroller.Code{comptroller.NoError}, codes)
	code, liquidity, err = f.ledger.HypotheticalAccountLiquidity(alice, borrowY, amount(0), amount(501))
	require.NoError(t, err)
	require.Equal(t, comptroller.NoError, code)
	require.Equal(t, uint64(1), liquidity.Shortfall.Uint64())

	before := len(f.sink.events)
	err = f.ledger.Borrow(f.ctx, borrowY, alice, amount(501))
	denial, ok := comptroller.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, comptroller.InsufficientLiquidity, denial)
	require.Len(t, f.sink.events, before)

	require.NoError(t, f.ledger.Borrow(f.ctx, borrowY, alice, amount(500)))
	m, err := f.ledger.Market(borrowY)
	require.NoError(t, err)
	var wallet *uint256.Int
	require.NoError(t, f.ledger.View(func() error {
		var err error
		wallet, err = m.UnderlyingBalance(alice)
		return err
	}))
	require.Equal(t, uint64(500), wallet.Uint64())
	require.Equal(t, 1, f.sink.count(events.TypeMarketBorrow))
	require.Equal(t, 2, f.sink.count(events.TypeMarketEntered))
}

func TestLiquidationSeizesCollateral(t *testing.T) {
	f := newLedgerFixture(t)
	f.supplyCollateral(t)
	require.NoError(t, f.ledger.Borrow(f.ctx, borrowY, alice, amount(400)))

	_, err := f.ledger.LiquidateBorrow(f.ctx, borrowY, bob, alice, amount(100), collateralX)
	denial, ok := comptroller.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, comptroller.InsufficientShortfall, denial)

	require.NoError(t, f.ledger.PostPrice(f.ctx, ledgerAdmin, collateralX, mantissa(t, "6")))
	_, liquidity, err := f.ledger.AccountLiquidity(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), liquidity.Shortfall.Uint64())

	f.fund(t, borrowY, bob, 500)
	_, err = f.ledger.LiquidateBorrow(f.ctx, borrowY, bob, alice, amount(201), collateralX)
	denial, ok = comptroller.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, comptroller.TooMuchRepay, denial)

	seized, err := f.ledger.LiquidateBorrow(f.ctx, borrowY, bob, alice, amount(200), collateralX)
	require.NoError(t, err)
	require.Equal(t, uint64(36), seized.Uint64())

	x, err := f.ledger.Market(collateralX)
	require.NoError(t, err)
	y, err := f.ledger.Market(borrowY)
	require.NoError(t, err)
	require.NoError(t, f.ledger.View(func() error {
		held, err := x.BalanceOf(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(64), held.Uint64())
		gained, err := x.BalanceOf(bob)
		require.NoError(t, err)
		require.Equal(t, uint64(36), gained.Uint64())
		owed, err := y.BorrowBalanceStored(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(200), owed.Uint64())
		return nil
	}))
	require.Equal(t, 1, f.sink.count(events.TypeMarketLiquidate))
}

func TestRewardClaimThroughVault(t *testing.T) {
	f := newLedgerFixture(t)
	f.supplyCollateral(t)

	f.ledger.SetBlockTime(1100)
	pending, err := f.ledger.PendingReward(comptroller.RewardGovernance, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), pending.Uint64())

	require.NoError(t, f.ledger.FundRewards(f.ctx, ledgerAdmin, comptroller.RewardGovernance, amount(500)))
	paid, err := f.ledger.ClaimReward(f.ctx, comptroller.RewardGovernance, alice, nil)
	require.NoError(t, err)
	require.True(t, paid.IsZero())
	require.Equal(t, 1, f.sink.count(events.TypeRewardPayoutDeferred))

	require.NoError(t, f.ledger.FundRewards(f.ctx, ledgerAdmin, comptroller.RewardGovernance, amount(1000)))
	paid, err = f.ledger.ClaimReward(f.ctx, comptroller.RewardGovernance, alice, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), paid.Uint64())

	balance, err := f.ledger.RewardBalance(comptroller.RewardGovernance, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance.Uint64())
	reserve, err := f.ledger.RewardReserve(comptroller.RewardGovernance)
	require.NoError(t, err)
	require.Equal(t, uint64(500), reserve.Uint64())

	err = f.ledger.FundRewards(f.ctx, alice, comptroller.RewardGovernance, amount(1))
	require.ErrorIs(t, err, comptroller.ErrUnauthorized)
}

func TestFailedActionRevertsWritesAndEvents(t *testing.T) {
	f := newLedgerFixture(t)
	f.fund(t, collateralX, alice, 100)
	before := len(f.sink.events)

	boom := errors.New("boom")
	err := f.ledger.Execute(f.ctx, "mint_then_fail", func() error {
		m, err := f.ledger.Market(collateralX)
		if err != nil {
			return err
		}
		if _, err := m.Mint(alice, amount(100)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, f.sink.events, before)

	summaries, err := f.ledger.MarketSummaries()
	require.NoError(t, err)
	require.True(t, summaries[0].TotalSupply.IsZero())
}

func TestReopenRestoresMarkets(t *testing.T) {
	f := newLedgerFixture(t)
	f.supplyCollateral(t)

	reopened, err := NewLedger(f.db, ledgerAdmin, LedgerOptions{})
	require.NoError(t, err)
	require.Equal(t, []common.Address{collateralX, borrowY}, reopened.Markets())

	_, liquidity, err := reopened.AccountLiquidity(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(500), liquidity.Liquidity.Uint64())
}

func TestCreateMarketRequiresAdmin(t *testing.T) {
	f := newLedgerFixture(t)
	newMarket := common.HexToAddress("0x0000000000000000000000000000000000000c03")

	err := f.ledger.CreateMarket(f.ctx, alice, newMarket, "lZ", mantissa(t, "0.02"))
	require.ErrorIs(t, err, comptroller.ErrUnauthorized)
	_, err = f.ledger.Market(newMarket)
	require.ErrorIs(t, err, ErrUnknownMarket)

	require.NoError(t, f.ledger.CreateMarket(f.ctx, ledgerAdmin, newMarket, "lZ", mantissa(t, "0.02")))
	m, err := f.ledger.Market(newMarket)
	require.NoError(t, err)
	require.NoError(t, f.ledger.View(func() error {
		record, err := m.Record()
		require.NoError(t, err)
		require.Equal(t, "lZ", record.Symbol)
		return nil
	}))

	err = f.ledger.CreateMarket(f.ctx, ledgerAdmin, newMarket, "lZ", mantissa(t, "0.02"))
	require.Error(t, err)
}

func TestCreateMarketNormalizesSymbol(t *testing.T) {
	f := newLedgerFixture(t)
	wide := common.HexToAddress("0x0000000000000000000000000000000000000c04")
	require.NoError(t, f.ledger.CreateMarket(f.ctx, ledgerAdmin, wide, " ｌＵＳＤＣ ", mantissa(t, "0.02")))

	summaries, err := f.ledger.MarketSummaries()
	require.NoError(t, err)
	require.Equal(t, "lUSDC", summaries[len(summaries)-1].Symbol)

	blank := common.HexToAddress("0x0000000000000000000000000000000000000c05")
	err = f.ledger.CreateMarket(f.ctx, ledgerAdmin, blank, "  ", mantissa(t, "0.02"))
	require.ErrorIs(t, err, comptroller.ErrInvalidInput)
	_, err = f.ledger.Market(blank)
	require.ErrorIs(t, err, ErrUnknownMarket)
}

// counterValue reads a counter from the default registry; missing series
// read as zero.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	if len(metric.GetLabel()) != len(want) {
		return false
	}
	for _, pair := range metric.GetLabel() {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestDistributionMetricCountsCommittedAccrualOnly(t *testing.T) {
	f := newLedgerFixture(t)
	f.supplyCollateral(t)
	const name = "comptroller_reward_distributions_total"
	labels := map[string]string{"reward": "governance", "side": "supply"}
	before := counterValue(t, name, labels)

	f.ledger.SetBlockTime(1100)
	for i := 0; i < 5; i++ {
		pending, err := f.ledger.PendingReward(comptroller.RewardGovernance, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(1000), pending.Uint64())
	}
	require.Equal(t, before, counterValue(t, name, labels))

	boom := errors.New("boom")
	err := f.ledger.Execute(f.ctx, "claim_then_fail", func() error {
		if _, err := f.ledger.Comptroller().ClaimReward(comptroller.RewardGovernance, alice); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, before, counterValue(t, name, labels))

	_, err = f.ledger.ClaimReward(f.ctx, comptroller.RewardGovernance, alice, nil)
	require.NoError(t, err)
	require.Equal(t, before+1, counterValue(t, name, labels))
}

func TestAdminRunsSetterAtomically(t *testing.T) {
	f := newLedgerFixture(t)

	err := f.ledger.Admin(f.ctx, "set_close_factor", func(engine *comptroller.Engine) (comptroller.Code, error) {
		return engine.SetCloseFactor(ledgerAdmin, mantissa(t, "0.95"))
	})
	denial, ok := comptroller.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, comptroller.InvalidCloseFactor, denial)

	err = f.ledger.MarketAdmin(f.ctx, "set_borrow_index", borrowY, func(m MarketAdminOps) error {
		return m.SetBorrowIndex(alice, mantissa(t, "1.1"))
	})
	require.ErrorIs(t, err, market.ErrUnauthorized)
}
