package comptroller

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

func TestAdminRequiredForSetters(t *testing.T) {
	f := newFixture(t)
	a, _ := f.listMarket(t, 0x0A, e18(1), nil)
	stranger := makeAddress(0x99)

	calls := map[string]func() (Code, error){
		"close factor": func() (Code, error) { return f.engine.SetCloseFactor(stranger, frac(1, 2)) },
		"collateral":   func() (Code, error) { return f.engine.SetCollateralFactor(stranger, a, frac(1, 2)) },
		"incentive":    func() (Code, error) { return f.engine.SetLiquidationIncentive(stranger, frac(11, 10)) },
		"max assets":   func() (Code, error) { return f.engine.SetMaxAssets(stranger, 3) },
		"oracle":       func() (Code, error) { return f.engine.SetPriceOracle(stranger, stranger) },
		"pending":      func() (Code, error) { return f.engine.SetPendingAdmin(stranger, stranger) },
		"guardian":     func() (Code, error) { return f.engine.SetPauseGuardian(stranger, stranger) },
		"support":      func() (Code, error) { return f.engine.SupportMarket(stranger, a) },
		"speeds": func() (Code, error) {
			return f.engine.SetRewardSpeeds(stranger, RewardNative, a, u(1), u(1))
		},
	}
	for name, call := range calls {
		if _, err := call(); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestCloseFactorBounds(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		value *uint256.Int
		want  Code
	}{
		{frac(4, 100), InvalidCloseFactor},
		{frac(5, 100), NoError},
		{frac(9, 10), NoError},
		{new(uint256.Int).AddUint64(frac(9, 10), 1), InvalidCloseFactor},
	}
	for _, tc := range cases {
		code, err := f.engine.SetCloseFactor(f.admin, tc.value)
		requireCode(t, tc.want, code, err)
	}
	params, err := f.engine.Params()
	require.NoError(t, err)
	require.True(t, params.CloseFactor.Eq(frac(9, 10)))
}

func TestLiquidationIncentiveBounds(t *testing.T) {
	f := newFixture(t)
	code, err := f.engine.SetLiquidationIncentive(f.admin, frac(99, 100))
	requireCode(t, InvalidLiquidationIncentive, code, err)
	code, err = f.engine.SetLiquidationIncentive(f.admin, frac(151, 100))
	requireCode(t, InvalidLiquidationIncentive, code, err)
	code, err = f.engine.SetLiquidationIncentive(f.admin, e18(1))
	requireCode(t, NoError, code, err)
	code, err = f.engine.SetLiquidationIncentive(f.admin, frac(3, 2))
	requireCode(t, NoError, code, err)
}

func TestCollateralFactorRules(t *testing.T) {
	f := newFixture(t)
	a, _ := f.listMarket(t, 0x0A, e18(1), nil)

	code, err := f.engine.SetCollateralFactor(f.admin, a, frac(91, 100))
	requireCode(t, InvalidCollateralFactor, code, err)

	code, err = f.engine.SetCollateralFactor(f.admin, makeAddress(0x0F), frac(1, 2))
	requireCode(t, MarketNotListed, code, err)

	f.oracle[a] = u(0)
	code, err = f.engine.SetCollateralFactor(f.admin, a, frac(1, 2))
	requireCode(t, PriceUnavailable, code, err)
	// Zeroing a factor does not need a price.
	code, err = f.engine.SetCollateralFactor(f.admin, a, u(0))
	requireCode(t, NoError, code, err)

	f.oracle[a] = e18(2)
	code, err = f.engine.SetCollateralFactor(f.admin, a, frac(9, 10))
	requireCode(t, NoError, code, err)
	market, err := f.engine.Market(a)
	require.NoError(t, err)
	require.True(t, market.CollateralFactor.Eq(frac(9, 10)))
	require.Equal(t, 2, f.emitter.count(events.TypeNewCollateralFactor))
}

func TestPauseGuardianCannotUnpause(t *testing.T) {
	f := newFixture(t)
	a, _ := f.listMarket(t, 0x0A, e18(1), nil)
	guardian := makeAddress(0x60)
	code, err := f.engine.SetPauseGuardian(f.admin, guardian)
	requireCode(t, NoError, code, err)

	code, err = f.engine.SetBorrowPaused(guardian, a, true)
	requireCode(t, NoError, code, err)
	code, err = f.engine.SetTransferPaused(guardian, true)
	requireCode(t, NoError, code, err)

	_, err = f.engine.SetBorrowPaused(guardian, a, false)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.SetTransferPaused(guardian, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	market, _ := f.engine.Market(a)
	require.True(t, market.BorrowPaused)

	code, err = f.engine.SetBorrowPaused(f.admin, a, false)
	requireCode(t, NoError, code, err)
	code, err = f.engine.SetTransferPaused(f.admin, false)
	requireCode(t, NoError, code, err)
	params, _ := f.engine.Params()
	require.False(t, params.TransferPaused)

	_, err = f.engine.SetSeizePaused(makeAddress(0x61), true)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.SetMintPaused(f.admin, makeAddress(0x0F), true)
	require.ErrorIs(t, err, ErrMarketNotListed)
}

func TestBorrowCapGuardian(t *testing.T) {
	f := newFixture(t)
	a, _ := f.listMarket(t, 0x0A, e18(1), nil)
	b, _ := f.listMarket(t, 0x0B, e18(1), nil)
	guardian := makeAddress(0x62)
	code, err := f.engine.SetBorrowCapGuardian(f.admin, guardian)
	requireCode(t, NoError, code, err)

	code, err = f.engine.SetMarketBorrowCaps(guardian, []common.Address{a, b}, []*uint256.Int{u(100), u(0)})
	requireCode(t, NoError, code, err)
	market, _ := f.engine.Market(a)
	require.Equal(t, uint64(100), market.BorrowCap.Uint64())

	_, err = f.engine.SetMarketBorrowCaps(guardian, []common.Address{a}, []*uint256.Int{u(1), u(2)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.SetMarketBorrowCaps(makeAddress(0x63), []common.Address{a}, []*uint256.Int{u(1)})
	require.ErrorIs(t, err, ErrUnauthorized)

	// One unlisted market rolls back the whole batch.
	code, err = f.engine.SetMarketBorrowCaps(f.admin, []common.Address{a, makeAddress(0x0F)}, []*uint256.Int{u(5), u(5)})
	requireCode(t, MarketNotListed, code, err)
	market, _ = f.engine.Market(a)
	require.Equal(t, uint64(100), market.BorrowCap.Uint64())
}

func TestAdminHandover(t *testing.T) {
	f := newFixture(t)
	next := makeAddress(0x64)

	_, err := f.engine.AcceptAdmin(next)
	require.ErrorIs(t, err, ErrUnauthorized)

	code, err := f.engine.SetPendingAdmin(f.admin, next)
	requireCode(t, NoError, code, err)
	_, err = f.engine.AcceptAdmin(makeAddress(0x65))
	require.ErrorIs(t, err, ErrUnauthorized)

	code, err = f.engine.AcceptAdmin(next)
	requireCode(t, NoError, code, err)
	params, err := f.engine.Params()
	require.NoError(t, err)
	require.Equal(t, next, params.Admin)
	require.Equal(t, common.Address{}, params.PendingAdmin)

	_, err = f.engine.SetMaxAssets(f.admin, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestInitAdminOnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.state.params = nil
	admin := makeAddress(0x66)

	require.ErrorIs(t, f.engine.InitAdmin(common.Address{}), ErrInvalidInput)
	require.NoError(t, f.engine.InitAdmin(admin))
	require.ErrorIs(t, f.engine.InitAdmin(makeAddress(0x67)), ErrUnauthorized)

	params, err := f.engine.Params()
	require.NoError(t, err)
	require.Equal(t, admin, params.Admin)
}

func TestSetRewardSpeedsAccruesAtOldSpeed(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	am.totalSupply = u(100)
	am.tokens[holder] = u(100)

	code, err := f.engine.SetRewardSpeeds(f.admin, RewardGovernance, a, u(5), u(0))
	requireCode(t, NoError, code, err)
	code, err = f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	f.engine.SetBlockTime(1_010)
	code, err = f.engine.SetRewardSpeeds(f.admin, RewardGovernance, a, u(1), u(0))
	requireCode(t, NoError, code, err)
	f.engine.SetBlockTime(1_020)
	code, err = f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	// 10s at 5/s then 10s at 1/s.
	accrued, err := f.engine.RewardAccrued(RewardGovernance, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(60), accrued.Uint64())

	speeds, err := f.engine.RewardSpeedsOf(RewardGovernance, a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), speeds.Supply.Uint64())
	require.True(t, speeds.Borrow.IsZero())

	_, err = f.engine.SetRewardSpeeds(f.admin, RewardType(7), a, u(1), u(1))
	require.ErrorIs(t, err, ErrInvalidRewardType)
}

func TestAdminEventsFlushOnlyOnSuccess(t *testing.T) {
	f := newFixture(t)
	before := len(f.emitter.events)
	code, err := f.engine.SetCloseFactor(f.admin, frac(1, 100))
	requireCode(t, InvalidCloseFactor, code, err)
	require.Len(t, f.emitter.events, before)

	code, err = f.engine.SetCloseFactor(f.admin, frac(1, 4))
	requireCode(t, NoError, code, err)
	require.Equal(t, 1, f.emitter.count(events.TypeNewCloseFactor))
}
