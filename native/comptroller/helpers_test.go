package comptroller

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

func makeAddress(b byte) common.Address {
	var addr common.Address
	addr[19] = b
	addr[0] = 0x10
	return addr
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// e18 returns v scaled by 1e18.
func e18(v uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(v), ExpScale) }

// frac returns num/den scaled by 1e18.
func frac(num, den uint64) *uint256.Int {
	out := new(uint256.Int).Mul(uint256.NewInt(num), ExpScale)
	return out.Div(out, uint256.NewInt(den))
}

type mockEngineState struct {
	params     *Params
	markets    map[common.Address]*Market
	all        []common.Address
	assets     map[common.Address][]common.Address
	membership map[string]uint64
	states     map[string]*RewardMarketState
	speeds     map[string]*uint256.Int
	indices    map[string]*uint256.Int
	accrued    map[string]*uint256.Int
	snapshots  []*mockEngineState
	failParams error
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		markets:    make(map[common.Address]*Market),
		assets:     make(map[common.Address][]common.Address),
		membership: make(map[string]uint64),
		states:     make(map[string]*RewardMarketState),
		speeds:     make(map[string]*uint256.Int),
		indices:    make(map[string]*uint256.Int),
		accrued:    make(map[string]*uint256.Int),
	}
}

func trackKey(rt RewardType, side Side, market common.Address) string {
	return fmt.Sprintf("%d/%d/%s", rt, side, market.Hex())
}

func (m *mockEngineState) copyState() *mockEngineState {
	out := newMockEngineState()
	out.params = m.params.Clone()
	for k, v := range m.markets {
		out.markets[k] = v.Clone()
	}
	out.all = append([]common.Address(nil), m.all...)
	for k, v := range m.assets {
		out.assets[k] = append([]common.Address(nil), v...)
	}
	for k, v := range m.membership {
		out.membership[k] = v
	}
	for k, v := range m.states {
		out.states[k] = v.Clone()
	}
	for k, v := range m.speeds {
		out.speeds[k] = clone(v)
	}
	for k, v := range m.indices {
		out.indices[k] = clone(v)
	}
	for k, v := range m.accrued {
		out.accrued[k] = clone(v)
	}
	return out
}

func (m *mockEngineState) restore(from *mockEngineState) {
	m.params = from.params
	m.markets = from.markets
	m.all = from.all
	m.assets = from.assets
	m.membership = from.membership
	m.states = from.states
	m.speeds = from.speeds
	m.indices = from.indices
	m.accrued = from.accrued
}

func (m *mockEngineState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copyState())
	return len(m.snapshots) - 1
}

func (m *mockEngineState) RevertToSnapshot(id int) {
	m.restore(m.snapshots[id])
	m.snapshots = m.snapshots[:id]
}

func (m *mockEngineState) ComptrollerParams() (*Params, error) {
	if m.failParams != nil {
		return nil, m.failParams
	}
	return m.params.Clone(), nil
}

func (m *mockEngineState) ComptrollerPutParams(params *Params) error {
	m.params = params.Clone()
	return nil
}

func (m *mockEngineState) ComptrollerMarket(addr common.Address) (*Market, error) {
	return m.markets[addr].Clone(), nil
}

func (m *mockEngineState) ComptrollerPutMarket(market *Market) error {
	m.markets[market.Address] = market.Clone()
	return nil
}

func (m *mockEngineState) ComptrollerAllMarkets() ([]common.Address, error) {
	return append([]common.Address(nil), m.all...), nil
}

func (m *mockEngineState) ComptrollerPutAllMarkets(markets []common.Address) error {
	m.all = append([]common.Address(nil), markets...)
	return nil
}

func (m *mockEngineState) ComptrollerAccountAssets(account common.Address) ([]common.Address, error) {
	return append([]common.Address(nil), m.assets[account]...), nil
}

func (m *mockEngineState) ComptrollerPutAccountAssets(account common.Address, assets []common.Address) error {
	m.assets[account] = append([]common.Address(nil), assets...)
	return nil
}

func (m *mockEngineState) ComptrollerMembership(market, account common.Address) (uint64, error) {
	return m.membership[market.Hex()+account.Hex()], nil
}

func (m *mockEngineState) ComptrollerPutMembership(market, account common.Address, position uint64) error {
	m.membership[market.Hex()+account.Hex()] = position
	return nil
}

func (m *mockEngineState) ComptrollerRewardState(rt RewardType, side Side, market common.Address) (*RewardMarketState, error) {
	return m.states[trackKey(rt, side, market)].Clone(), nil
}

func (m *mockEngineState) ComptrollerPutRewardState(rt RewardType, side Side, market common.Address, st *RewardMarketState) error {
	m.states[trackKey(rt, side, market)] = st.Clone()
	return nil
}

func (m *mockEngineState) ComptrollerRewardSpeed(rt RewardType, side Side, market common.Address) (*uint256.Int, error) {
	return clone(m.speeds[trackKey(rt, side, market)]), nil
}

func (m *mockEngineState) ComptrollerPutRewardSpeed(rt RewardType, side Side, market common.Address, speed *uint256.Int) error {
	m.speeds[trackKey(rt, side, market)] = clone(speed)
	return nil
}

func (m *mockEngineState) ComptrollerRewardIndex(rt RewardType, side Side, market, account common.Address) (*uint256.Int, error) {
	return clone(m.indices[trackKey(rt, side, market)+account.Hex()]), nil
}

func (m *mockEngineState) ComptrollerPutRewardIndex(rt RewardType, side Side, market, account common.Address, index *uint256.Int) error {
	m.indices[trackKey(rt, side, market)+account.Hex()] = clone(index)
	return nil
}

func (m *mockEngineState) ComptrollerRewardAccrued(rt RewardType, account common.Address) (*uint256.Int, error) {
	return clone(m.accrued[fmt.Sprintf("%d", rt)+account.Hex()]), nil
}

func (m *mockEngineState) ComptrollerPutRewardAccrued(rt RewardType, account common.Address, amount *uint256.Int) error {
	m.accrued[fmt.Sprintf("%d", rt)+account.Hex()] = clone(amount)
	return nil
}

type fakeMarket struct {
	comptroller  common.Address
	notMarket    bool
	tokens       map[common.Address]*uint256.Int
	borrows      map[common.Address]*uint256.Int
	exchangeRate *uint256.Int
	totalSupply  *uint256.Int
	totalBorrows *uint256.Int
	borrowIndex  *uint256.Int
	snapshotErr  error
}

func newFakeMarket(comptroller common.Address) *fakeMarket {
	return &fakeMarket{
		comptroller:  comptroller,
		tokens:       make(map[common.Address]*uint256.Int),
		borrows:      make(map[common.Address]*uint256.Int),
		exchangeRate: e18(1),
		totalSupply:  u(0),
		totalBorrows: u(0),
		borrowIndex:  e18(1),
	}
}

func (f *fakeMarket) IsMarket() bool              { return !f.notMarket }
func (f *fakeMarket) Comptroller() common.Address { return f.comptroller }

func (f *fakeMarket) GetAccountSnapshot(account common.Address) (AccountSnapshot, error) {
	if f.snapshotErr != nil {
		return AccountSnapshot{}, f.snapshotErr
	}
	return AccountSnapshot{
		Tokens:       clone(f.tokens[account]),
		Borrow:       clone(f.borrows[account]),
		ExchangeRate: clone(f.exchangeRate),
	}, nil
}

func (f *fakeMarket) TotalSupply() (*uint256.Int, error)  { return clone(f.totalSupply), nil }
func (f *fakeMarket) TotalBorrows() (*uint256.Int, error) { return clone(f.totalBorrows), nil }
func (f *fakeMarket) BorrowIndex() (*uint256.Int, error)  { return clone(f.borrowIndex), nil }

func (f *fakeMarket) BalanceOf(account common.Address) (*uint256.Int, error) {
	return clone(f.tokens[account]), nil
}

func (f *fakeMarket) BorrowBalanceStored(account common.Address) (*uint256.Int, error) {
	return clone(f.borrows[account]), nil
}

func (f *fakeMarket) ExchangeRateStored() (*uint256.Int, error) { return clone(f.exchangeRate), nil }

type fakeMarkets map[common.Address]*fakeMarket

func (f fakeMarkets) Market(addr common.Address) (MarketView, bool) {
	m, ok := f[addr]
	if !ok {
		return nil, false
	}
	return m, true
}

type fakeOracle map[common.Address]*uint256.Int

func (f fakeOracle) UnderlyingPrice(market common.Address) (*uint256.Int, error) {
	return clone(f[market]), nil
}

type fakeVault struct {
	balances map[RewardType]*uint256.Int
	paid     map[common.Address]*uint256.Int
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		balances: map[RewardType]*uint256.Int{RewardGovernance: u(0), RewardNative: u(0)},
		paid:     make(map[common.Address]*uint256.Int),
	}
}

func (f *fakeVault) RewardBalance(rt RewardType) (*uint256.Int, error) {
	return clone(f.balances[rt]), nil
}

func (f *fakeVault) TransferReward(rt RewardType, to common.Address, amount *uint256.Int) error {
	balance := orZero(f.balances[rt])
	if amount.Gt(balance) {
		return errors.New("vault: insufficient balance")
	}
	f.balances[rt] = new(uint256.Int).Sub(balance, amount)
	f.paid[to] = new(uint256.Int).Add(orZero(f.paid[to]), amount)
	return nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recordingEmitter) count(eventType string) int {
	n := 0
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	markets fakeMarkets
	oracle  fakeOracle
	vault   *fakeVault
	emitter *recordingEmitter
	admin   common.Address
	self    common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockEngineState(),
		markets: make(fakeMarkets),
		oracle:  make(fakeOracle),
		vault:   newFakeVault(),
		emitter: &recordingEmitter{},
		admin:   makeAddress(0xAD),
		self:    makeAddress(0xC0),
	}
	f.state.params = &Params{
		Admin:                f.admin,
		CloseFactor:          frac(1, 2),
		LiquidationIncentive: frac(108, 100),
	}
	f.engine = NewEngine(f.self)
	f.engine.SetState(f.state)
	f.engine.SetMarkets(f.markets)
	f.engine.SetOracle(f.oracle)
	f.engine.SetVault(f.vault)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetBlockTime(1_000)
	return f
}

// listMarket creates, supports and prices a market with the given
// collateral factor.
func (f *fixture) listMarket(t *testing.T, id byte, price, collateralFactor *uint256.Int) (common.Address, *fakeMarket) {
	t.Helper()
	addr := makeAddress(id)
	market := newFakeMarket(f.self)
	f.markets[addr] = market
	f.oracle[addr] = price
	if code, err := f.engine.SupportMarket(f.admin, addr); err != nil || code != NoError {
		t.Fatalf("support market: code=%s err=%v", code, err)
	}
	if collateralFactor != nil && !collateralFactor.IsZero() {
		if code, err := f.engine.SetCollateralFactor(f.admin, addr, collateralFactor); err != nil || code != NoError {
			t.Fatalf("collateral factor: code=%s err=%v", code, err)
		}
	}
	return addr, market
}

func (f *fixture) enter(t *testing.T, account common.Address, markets ...common.Address) {
	t.Helper()
	codes, err := f.engine.EnterMarkets(account, markets)
	if err != nil {
		t.Fatalf("enter markets: %v", err)
	}
	for i, code := range codes {
		if code != NoError {
			t.Fatalf("enter market %d: %s", i, code)
		}
	}
}

func requireCode(t *testing.T, want Code, got Code, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected code %s, got %s", want, got)
	}
}
