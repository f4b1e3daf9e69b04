package comptroller

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// liquidityFixture lists collateral market A (factor 0.5, price 10) and
// borrow market B (price 1) and supplies 100 A tokens at exchange rate 1.
func liquidityFixture(t *testing.T) (*fixture, common.Address, common.Address, *fakeMarket, *fakeMarket, common.Address) {
	t.Helper()
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(10), frac(1, 2))
	b, bm := f.listMarket(t, 0x0B, e18(1), nil)
	account := makeAddress(0x50)
	f.enter(t, account, a, b)
	am.tokens[account] = u(100)
	return f, a, b, am, bm, account
}

func TestAccountLiquidityScenario(t *testing.T) {
	cases := []struct {
		borrow    uint64
		liquidity uint64
		shortfall uint64
	}{
		{borrow: 499, liquidity: 1},
		{borrow: 500},
		{borrow: 501, shortfall: 1},
	}
	for _, tc := range cases {
		f, _, _, _, bm, account := liquidityFixture(t)
		bm.borrows[account] = u(tc.borrow)

		code, result, err := f.engine.AccountLiquidity(account)
		requireCode(t, NoError, code, err)
		if result.Liquidity.Uint64() != tc.liquidity || result.Shortfall.Uint64() != tc.shortfall {
			t.Fatalf("borrow %d: liquidity=%s shortfall=%s", tc.borrow, result.Liquidity, result.Shortfall)
		}
	}
}

func TestHypotheticalLiquidityAddsEffects(t *testing.T) {
	f, a, b, _, _, account := liquidityFixture(t)

	// Redeeming 20 A tokens removes 100 of collateral value.
	code, result, err := f.engine.HypotheticalAccountLiquidity(account, a, u(20), nil)
	requireCode(t, NoError, code, err)
	if result.Liquidity.Uint64() != 400 {
		t.Fatalf("expected liquidity 400, got %s", result.Liquidity)
	}

	code, result, err = f.engine.HypotheticalAccountLiquidity(account, b, nil, u(600))
	requireCode(t, NoError, code, err)
	if result.Shortfall.Uint64() != 100 || !result.Liquidity.IsZero() {
		t.Fatalf("expected shortfall 100, got %+v", result)
	}
}

func TestLiquidityPriceAndSnapshotFailures(t *testing.T) {
	f, a, _, am, _, account := liquidityFixture(t)

	f.oracle[a] = u(0)
	code, _, err := f.engine.AccountLiquidity(account)
	requireCode(t, PriceUnavailable, code, err)

	f.oracle[a] = e18(10)
	am.snapshotErr = errors.New("market halted")
	if _, _, err := f.engine.AccountLiquidity(account); !errors.Is(err, ErrSnapshot) {
		t.Fatalf("expected ErrSnapshot, got %v", err)
	}
}

func TestLiquidityNeverReportsBoth(t *testing.T) {
	f, _, _, am, bm, account := liquidityFixture(t)
	am.exchangeRate = frac(3, 7)
	for tokens := uint64(0); tokens < 50; tokens += 7 {
		for borrow := uint64(0); borrow < 200; borrow += 13 {
			am.tokens[account] = u(tokens * 11)
			bm.borrows[account] = u(borrow)
			code, result, err := f.engine.AccountLiquidity(account)
			requireCode(t, NoError, code, err)
			if !result.Liquidity.IsZero() && !result.Shortfall.IsZero() {
				t.Fatalf("tokens=%d borrow=%d: both liquidity and shortfall set", tokens, borrow)
			}
		}
	}
}

func TestLiquidityTruncationOrder(t *testing.T) {
	f := newFixture(t)
	// factor 0.333..., rate 0.333..., price 3: combining factor and rate
	// first truncates before the price is applied.
	a, am := f.listMarket(t, 0x0A, e18(3), frac(1, 3))
	account := makeAddress(0x50)
	f.enter(t, account, a)
	am.exchangeRate = frac(1, 3)
	am.tokens[account] = e18(9)

	factorRate, _ := mulExp(NewExp(frac(1, 3)), NewExp(frac(1, 3)))
	tokensToDenom, _ := mulExp(factorRate, NewExp(e18(3)))
	want, _ := mulScalarTruncate(tokensToDenom, e18(9))

	code, result, err := f.engine.AccountLiquidity(account)
	requireCode(t, NoError, code, err)
	if !result.Liquidity.Eq(want) {
		t.Fatalf("expected %s, got %s", want, result.Liquidity)
	}
	if result.Liquidity.Eq(new(uint256.Int).Mul(u(3), ExpScale)) {
		t.Fatalf("truncation was not applied")
	}
}
