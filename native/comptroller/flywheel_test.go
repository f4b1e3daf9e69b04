package comptroller

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

func setSupplySpeed(t *testing.T, f *fixture, rt RewardType, market common.Address, speed uint64) {
	t.Helper()
	current, err := f.engine.RewardSpeedsOf(rt, market)
	require.NoError(t, err)
	code, err := f.engine.SetRewardSpeeds(f.admin, rt, market, u(speed), current.Borrow)
	requireCode(t, NoError, code, err)
}

func TestRewardScenarioHalfSupplyEarnsHalf(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	am.totalSupply = u(1_000)
	am.tokens[holder] = u(500)

	setSupplySpeed(t, f, RewardGovernance, a, 10)
	// Holder is snapshotted before the window opens.
	code, err := f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	f.engine.SetBlockTime(1_100)
	code, err = f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	st, err := f.engine.RewardMarketStateOf(RewardGovernance, SideSupply, a)
	require.NoError(t, err)
	// index grew by 10*100*1e36/1000
	growth := new(uint256.Int).Sub(st.Index, InitialIndex)
	require.True(t, growth.Eq(RewardScale), "growth %s", growth)
	require.Equal(t, uint32(1_100), st.Timestamp)

	accrued, err := f.engine.RewardAccrued(RewardGovernance, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(500), accrued.Uint64())

	native, err := f.engine.RewardAccrued(RewardNative, holder)
	require.NoError(t, err)
	require.True(t, native.IsZero())
}

func TestDistributeIsIdempotentWithoutElapsedTime(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	am.totalSupply = u(1_000)
	am.tokens[holder] = u(250)
	setSupplySpeed(t, f, RewardGovernance, a, 4)

	f.engine.SetBlockTime(1_050)
	for i := 0; i < 3; i++ {
		code, err := f.engine.MintAllowed(a, holder, u(0))
		requireCode(t, NoError, code, err)
	}
	accrued, _ := f.engine.RewardAccrued(RewardGovernance, holder)
	// 4*50 emitted, a quarter to the holder.
	require.Equal(t, uint64(50), accrued.Uint64())
	require.Equal(t, 1, f.emitter.count(events.TypeRewardDistributed))
}

func TestEmptyTrackAdvancesTimestampWithoutBackPay(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	setSupplySpeed(t, f, RewardGovernance, a, 10)

	f.engine.SetBlockTime(1_500)
	code, err := f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	st, _ := f.engine.RewardMarketStateOf(RewardGovernance, SideSupply, a)
	require.True(t, st.Index.Eq(InitialIndex))
	require.Equal(t, uint32(1_500), st.Timestamp)

	am.totalSupply = u(100)
	am.tokens[holder] = u(100)
	f.engine.SetBlockTime(1_510)
	code, err = f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)
	accrued, _ := f.engine.RewardAccrued(RewardGovernance, holder)
	require.Equal(t, uint64(100), accrued.Uint64())
}

func TestIndexMonotonicAcrossInterleavedTracks(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(10), frac(1, 2))
	b, bm := f.listMarket(t, 0x0B, e18(1), nil)
	account := makeAddress(0x50)
	f.enter(t, account, a, b)
	am.tokens[account] = u(1_000)
	am.totalSupply = u(3_000)
	bm.totalBorrows = u(700)
	bm.borrowIndex = frac(11, 10)

	for _, rt := range RewardTypes {
		code, err := f.engine.SetRewardSpeeds(f.admin, rt, a, u(3), u(5))
		requireCode(t, NoError, code, err)
		code, err = f.engine.SetRewardSpeeds(f.admin, rt, b, u(7), u(11))
		requireCode(t, NoError, code, err)
	}

	previous := map[string]*uint256.Int{}
	ts := uint64(1_000)
	for step := 0; step < 20; step++ {
		ts += uint64(step%4) * 13
		f.engine.SetBlockTime(ts)
		switch step % 4 {
		case 0:
			_, _ = f.engine.MintAllowed(a, account, u(1))
		case 1:
			bm.borrows[account] = u(uint64(step))
			_, _ = f.engine.BorrowAllowed(b, b, account, u(1))
		case 2:
			_, _ = f.engine.RepayBorrowAllowed(b, account, account, u(1))
		case 3:
			_, err := f.engine.ClaimReward(RewardNative, account)
			require.NoError(t, err)
		}
		for _, rt := range RewardTypes {
			for _, market := range []common.Address{a, b} {
				for _, side := range []Side{SideSupply, SideBorrow} {
					st, err := f.engine.RewardMarketStateOf(rt, side, market)
					require.NoError(t, err)
					key := trackKey(rt, side, market)
					if prev, ok := previous[key]; ok {
						require.False(t, st.Index.Lt(prev), "index decreased on %s", key)
					}
					previous[key] = st.Index
				}
			}
		}
	}
}

func TestBorrowTrackUsesPrincipal(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(10), frac(1, 2))
	b, bm := f.listMarket(t, 0x0B, e18(1), nil)
	borrower := makeAddress(0x50)
	f.enter(t, borrower, a, b)
	am.tokens[borrower] = u(1_000)

	// Total borrows 2000 at index 2 is 1000 of principal.
	bm.totalBorrows = u(2_000)
	bm.borrowIndex = e18(2)
	bm.borrows[borrower] = u(1_000)
	code, err := f.engine.SetRewardSpeeds(f.admin, RewardGovernance, b, u(0), u(10))
	requireCode(t, NoError, code, err)

	code, err = f.engine.RepayBorrowAllowed(b, borrower, borrower, u(0))
	requireCode(t, NoError, code, err)
	f.engine.SetBlockTime(1_100)
	code, err = f.engine.RepayBorrowAllowed(b, borrower, borrower, u(0))
	requireCode(t, NoError, code, err)

	// 1000 emitted over 1000 principal; the borrower holds 500 principal.
	accrued, _ := f.engine.RewardAccrued(RewardGovernance, borrower)
	require.Equal(t, uint64(500), accrued.Uint64())
}

func TestUnsnapshottedAccountUsesInitialIndex(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	early := makeAddress(0x50)
	late := makeAddress(0x51)
	am.totalSupply = u(100)
	am.tokens[early] = u(100)
	setSupplySpeed(t, f, RewardGovernance, a, 1)

	f.engine.SetBlockTime(1_100)
	// late never touched the market but is credited from the initial
	// index once distributed.
	am.tokens[late] = u(10)
	code, err := f.engine.TransferAllowed(a, early, late, u(0))
	requireCode(t, NoError, code, err)

	earlyAccrued, _ := f.engine.RewardAccrued(RewardGovernance, early)
	lateAccrued, _ := f.engine.RewardAccrued(RewardGovernance, late)
	require.Equal(t, uint64(100), earlyAccrued.Uint64())
	require.Equal(t, uint64(10), lateAccrued.Uint64())
}

func TestClaimPaysAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	am.totalSupply = u(100)
	am.tokens[holder] = u(100)
	setSupplySpeed(t, f, RewardGovernance, a, 2)
	code, err := f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	f.engine.SetBlockTime(1_100)
	f.vault.balances[RewardGovernance] = u(150)

	paid, err := f.engine.ClaimReward(RewardGovernance, holder)
	require.NoError(t, err)
	require.True(t, paid.IsZero())
	accrued, _ := f.engine.RewardAccrued(RewardGovernance, holder)
	require.Equal(t, uint64(200), accrued.Uint64())
	require.Nil(t, f.vault.paid[holder])
	require.Equal(t, 1, f.emitter.count(events.TypeRewardPayoutDeferred))

	f.vault.balances[RewardGovernance] = u(1_000)
	paid, err = f.engine.ClaimReward(RewardGovernance, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(200), paid.Uint64())
	accrued, _ = f.engine.RewardAccrued(RewardGovernance, holder)
	require.True(t, accrued.IsZero())
	require.Equal(t, uint64(200), f.vault.paid[holder].Uint64())
	require.Equal(t, uint64(800), f.vault.balances[RewardGovernance].Uint64())
}

func TestClaimRewardForSelectedTracks(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holders := []common.Address{makeAddress(0x50), makeAddress(0x51)}
	am.totalSupply = u(200)
	am.tokens[holders[0]] = u(100)
	am.tokens[holders[1]] = u(100)
	code, err := f.engine.SetRewardSpeeds(f.admin, RewardNative, a, u(2), u(0))
	requireCode(t, NoError, code, err)
	for _, holder := range holders {
		code, err := f.engine.MintAllowed(a, holder, u(0))
		requireCode(t, NoError, code, err)
	}
	f.vault.balances[RewardNative] = u(1_000)
	f.engine.SetBlockTime(1_100)

	// Borrow side only accrues nothing.
	paid, err := f.engine.ClaimRewardFor(RewardNative, holders, []common.Address{a}, true, false)
	require.NoError(t, err)
	require.True(t, paid.IsZero())

	paid, err = f.engine.ClaimRewardFor(RewardNative, holders, []common.Address{a}, false, true)
	require.NoError(t, err)
	require.Equal(t, uint64(200), paid.Uint64())
	require.Equal(t, uint64(100), f.vault.paid[holders[1]].Uint64())

	_, err = f.engine.ClaimRewardIn(RewardNative, holders[0], []common.Address{makeAddress(0x0F)})
	require.True(t, errors.Is(err, ErrMarketNotListed))
}

func TestPendingRewardDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	a, am := f.listMarket(t, 0x0A, e18(1), nil)
	holder := makeAddress(0x50)
	am.totalSupply = u(100)
	am.tokens[holder] = u(100)
	setSupplySpeed(t, f, RewardGovernance, a, 3)
	code, err := f.engine.MintAllowed(a, holder, u(0))
	requireCode(t, NoError, code, err)

	f.engine.SetBlockTime(1_010)
	pending, err := f.engine.PendingReward(RewardGovernance, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(30), pending.Uint64())

	accrued, _ := f.engine.RewardAccrued(RewardGovernance, holder)
	require.True(t, accrued.IsZero())
	st, _ := f.engine.RewardMarketStateOf(RewardGovernance, SideSupply, a)
	require.Equal(t, uint32(1_000), st.Timestamp)
}

func TestGrantReward(t *testing.T) {
	f := newFixture(t)
	recipient := makeAddress(0x70)
	f.vault.balances[RewardNative] = u(50)

	err := f.engine.GrantReward(f.admin, RewardNative, recipient, u(60))
	require.ErrorIs(t, err, ErrInsufficientRewards)

	require.NoError(t, f.engine.GrantReward(f.admin, RewardNative, recipient, u(50)))
	require.Equal(t, uint64(50), f.vault.paid[recipient].Uint64())

	err = f.engine.GrantReward(recipient, RewardNative, recipient, u(1))
	require.ErrorIs(t, err, ErrUnauthorized)
}
