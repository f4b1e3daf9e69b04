package comptroller

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/observability/metrics"
)

const moduleName = "comptroller"

var (
	// MaxCollateralFactor bounds every market's collateral factor (0.9).
	MaxCollateralFactor = uint256.NewInt(9e17)
	// MinCloseFactor and MaxCloseFactor bound the close factor [0.05, 0.9].
	MinCloseFactor = uint256.NewInt(5e16)
	MaxCloseFactor = uint256.NewInt(9e17)
	// MinLiquidationIncentive and MaxLiquidationIncentive bound the
	// liquidation incentive [1.0, 1.5].
	MinLiquidationIncentive = uint256.NewInt(1e18)
	MaxLiquidationIncentive = uint256.NewInt(15e17)
)

// Engine is the comptroller state machine. It owns market listings,
// account memberships, risk parameters and both reward flywheels. The
// hosting ledger serialises calls; the engine holds no locks.
type Engine struct {
	address   common.Address
	state     engineState
	markets   MarketSource
	oracle    PriceOracle
	vault     RewardVault
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.ComptrollerMetrics
	pauses    nativecommon.PauseView
	blockTime uint64
	entered   bool
	pending   []events.Event
}

// NewEngine constructs a comptroller identified by address. Markets report
// this address from Comptroller() when they belong to it.
func NewEngine(address common.Address) *Engine {
	return &Engine{
		address:   address,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		telemetry: metrics.Comptroller(),
	}
}

// Address returns the comptroller identity.
func (e *Engine) Address() common.Address { return e.address }

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetMarkets wires the resolver used to read market balances.
func (e *Engine) SetMarkets(source MarketSource) {
	if e == nil {
		return
	}
	e.markets = source
}

// SetOracle configures the price source.
func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetVault configures the reserve reward payouts are drawn from.
func (e *Engine) SetVault(vault RewardVault) {
	if e == nil {
		return
	}
	e.vault = vault
}

// SetEmitter configures the destination for comptroller events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockTime records the block timestamp used for reward accrual.
func (e *Engine) SetBlockTime(ts uint64) {
	if e == nil {
		return
	}
	e.blockTime = ts
}

// enter takes the reentrancy guard and checks the module is runnable. The
// returned release func must be deferred by the caller.
func (e *Engine) enter() (func(), error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.entered {
		return nil, ErrReentrant
	}
	e.entered = true
	return func() { e.entered = false }, nil
}

// atomically runs fn inside a state snapshot. Writes and events made by fn
// are discarded unless fn allows the action without error.
func (e *Engine) atomically(fn func() (Code, error)) (Code, error) {
	id := e.state.Snapshot()
	mark := len(e.pending)
	code, err := fn()
	if err != nil || code != NoError {
		e.state.RevertToSnapshot(id)
		e.pending = e.pending[:mark]
		return code, err
	}
	if mark == 0 {
		e.flush()
	}
	return code, nil
}

func (e *Engine) emit(ev events.Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) flush() {
	for _, ev := range e.pending {
		e.emitter.Emit(ev)
	}
	e.pending = e.pending[:0]
}

func (e *Engine) now() (uint32, error) {
	return safe32(e.blockTime)
}

func (e *Engine) params() (*Params, error) {
	params, err := e.state.ComptrollerParams()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &Params{}
	}
	params = params.Clone()
	params.CloseFactor = orZero(params.CloseFactor)
	params.LiquidationIncentive = orZero(params.LiquidationIncentive)
	return params, nil
}

// listedMarket loads the market record, returning nil when the market was
// never listed.
func (e *Engine) listedMarket(addr common.Address) (*Market, error) {
	market, err := e.state.ComptrollerMarket(addr)
	if err != nil {
		return nil, err
	}
	if market == nil || !market.Listed {
		return nil, nil
	}
	market = market.Clone()
	return market, nil
}

func (e *Engine) view(addr common.Address) (MarketView, error) {
	if e.markets == nil {
		return nil, fmt.Errorf("%w: no market source", ErrNotMarket)
	}
	view, ok := e.markets.Market(addr)
	if !ok || view == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMarket, addr.Hex())
	}
	return view, nil
}

func (e *Engine) price(market common.Address) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, ErrOracleUnavailable
	}
	price, err := e.oracle.UnderlyingPrice(market)
	if err != nil {
		return nil, err
	}
	return orZero(price), nil
}

func (e *Engine) observe(action string, code Code, err error) {
	label := code.String()
	if err != nil {
		label = "FATAL"
	}
	e.telemetry.ObserveHook(action, label)
}

// Market returns the stored record of a market, or nil when unknown.
func (e *Engine) Market(addr common.Address) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	market, err := e.state.ComptrollerMarket(addr)
	if err != nil || market == nil {
		return nil, err
	}
	return market.Clone(), nil
}

// Params returns the current protocol parameters.
func (e *Engine) Params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	return e.params()
}
