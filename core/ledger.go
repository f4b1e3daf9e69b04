package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lendcore/core/events"
	ledgerstate "lendcore/core/state"
	nativecommon "lendcore/native/common"
	"lendcore/native/comptroller"
	"lendcore/native/market"
	"lendcore/native/oracle"
	"lendcore/observability/metrics"
	"lendcore/storage"
)

var (
	ErrAlreadyBootstrapped = errors.New("ledger: already bootstrapped")
	ErrUnknownMarket       = errors.New("ledger: unknown market")
)

// LedgerOptions configures a Ledger. Zero values select defaults.
type LedgerOptions struct {
	// Address identifies the comptroller; markets report it as their
	// comptroller.
	Address common.Address
	Logger  *slog.Logger
	Pauses  nativecommon.PauseView
	// Emitter receives events after their action commits.
	Emitter events.Emitter
	// Clock supplies block time when no fixed time was set.
	Clock func() time.Time
}

// Ledger hosts the comptroller, the reference markets and the oracle on
// one journaled state. Every mutation runs through Execute, which commits
// or reverts it as a unit and publishes its events only on commit.
type Ledger struct {
	mu        sync.Mutex
	db        storage.Database
	state     *ledgerstate.Manager
	buffer    *events.Buffer
	sink      events.Emitter
	engine    *comptroller.Engine
	markets   *market.Registry
	oracle    *oracle.Oracle
	vault     *rewardVault
	logger    *slog.Logger
	telemetry *metrics.LedgerMetrics
	clock     func() time.Time
	blockTime uint64
}

// NewLedger opens the ledger on db. admin is the oracle admin and the
// default market admin; markets already listed in state are registered.
func NewLedger(db storage.Database, admin common.Address, opts LedgerOptions) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: nil database")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Emitter
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	state := ledgerstate.NewManager(db)
	buffer := &events.Buffer{}
	l := &Ledger{
		db:        db,
		state:     state,
		buffer:    buffer,
		sink:      sink,
		markets:   market.NewRegistry(),
		oracle:    oracle.New(admin),
		vault:     &rewardVault{state: state},
		logger:    logger,
		telemetry: metrics.Ledger(),
		clock:     clock,
	}
	l.oracle.SetState(state)
	l.oracle.SetEmitter(buffer)
	l.oracle.SetLogger(logger)

	l.engine = comptroller.NewEngine(opts.Address)
	l.engine.SetState(state)
	l.engine.SetMarkets(l.markets)
	l.engine.SetOracle(l.oracle)
	l.engine.SetVault(l.vault)
	l.engine.SetEmitter(buffer)
	l.engine.SetLogger(logger.With("module", "comptroller"))
	l.engine.SetPauses(opts.Pauses)

	listed, err := l.engine.AllMarkets()
	if err != nil {
		return nil, fmt.Errorf("ledger: load markets: %w", err)
	}
	for _, addr := range listed {
		l.registerMarket(addr)
	}
	return l, nil
}

func (l *Ledger) registerMarket(addr common.Address) *market.Market {
	if existing, ok := l.markets.Get(addr); ok {
		return existing
	}
	m := market.New(addr, l.engine)
	m.SetState(l.state)
	m.SetEmitter(l.buffer)
	m.SetLogger(l.logger.With("module", "market"))
	l.markets.Add(m)
	return m
}

// pruneMarkets drops registered markets whose listing was reverted.
func (l *Ledger) pruneMarkets() {
	for _, addr := range l.markets.Addresses() {
		listing, err := l.engine.Market(addr)
		if err == nil && listing != nil && listing.Listed {
			continue
		}
		l.markets.Remove(addr)
	}
}

// SetBlockTime fixes the block time used for reward accrual. Zero returns
// to the clock.
func (l *Ledger) SetBlockTime(ts uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockTime = ts
}

func (l *Ledger) now() uint64 {
	if l.blockTime != 0 {
		return l.blockTime
	}
	return uint64(l.clock().Unix())
}

// Comptroller exposes the engine for callers already inside Execute or
// View.
func (l *Ledger) Comptroller() *comptroller.Engine { return l.engine }

// Oracle exposes the price table for callers already inside Execute or
// View.
func (l *Ledger) Oracle() *oracle.Oracle { return l.oracle }

// Market returns the reference market at addr.
func (l *Ledger) Market(addr common.Address) (*market.Market, error) {
	m, ok := l.markets.Get(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, addr.Hex())
	}
	return m, nil
}

// Markets lists the registered market addresses.
func (l *Ledger) Markets() []common.Address { return l.markets.Addresses() }

// Execute runs fn as one atomic action. Any error reverts every write and
// drops every event fn produced.
func (l *Ledger) Execute(ctx context.Context, name string, fn func() error) error {
	_, span := otel.Tracer("lendcore/core").Start(ctx, "ledger."+name)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	started := time.Now()
	now := l.now()
	span.SetAttributes(attribute.String("ledger.action", name), attribute.Int64("ledger.block_time", int64(now)))
	l.engine.SetBlockTime(now)

	id := l.state.Snapshot()
	mark := l.buffer.Mark()
	err := fn()
	if err == nil {
		if err = l.state.Commit(); err != nil {
			l.state.Discard()
		}
	} else {
		l.state.RevertToSnapshot(id)
	}
	if err != nil {
		l.buffer.Rewind(mark)
		l.pruneMarkets()
		l.telemetry.ObserveAction(name, false, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Debug("ledger action reverted", "action", name, "error", err)
		return err
	}
	published := l.buffer.Drain()
	for _, ev := range published {
		l.observeCommitted(ev)
		l.sink.Emit(ev)
	}
	l.telemetry.ObserveAction(name, true, time.Since(started))
	l.telemetry.AddPublished(len(published))
	return nil
}

// observeCommitted records metrics that must only count committed work.
func (l *Ledger) observeCommitted(ev events.Event) {
	if distributed, ok := ev.(events.RewardDistributed); ok {
		metrics.Comptroller().ObserveDistribution(distributed.RewardType, distributed.Side)
	}
}

// View runs fn against current state and discards whatever it writes.
func (l *Ledger) View(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.SetBlockTime(l.now())
	id := l.state.Snapshot()
	mark := l.buffer.Mark()
	defer func() {
		l.state.RevertToSnapshot(id)
		l.buffer.Rewind(mark)
	}()
	return fn()
}

func codeErr(step string, code comptroller.Code, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	if code != comptroller.NoError {
		return fmt.Errorf("%s: %w", step, code.Err())
	}
	return nil
}

// rewardVault keeps reward reserves and paid out balances in state.
type rewardVault struct {
	state *ledgerstate.Manager
}

func (v *rewardVault) RewardBalance(rt comptroller.RewardType) (*uint256.Int, error) {
	return v.state.RewardVaultBalance(rt)
}

func (v *rewardVault) TransferReward(rt comptroller.RewardType, to common.Address, amount *uint256.Int) error {
	reserve, err := v.state.RewardVaultBalance(rt)
	if err != nil {
		return err
	}
	if amount.Gt(reserve) {
		return fmt.Errorf("ledger: %s vault holds %s, need %s", rt, reserve.Dec(), amount.Dec())
	}
	balance, err := v.state.RewardBalance(rt, to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("ledger: reward balance overflow")
	}
	if err := v.state.PutRewardVaultBalance(rt, new(uint256.Int).Sub(reserve, amount)); err != nil {
		return err
	}
	return v.state.PutRewardBalance(rt, to, credited)
}

func (v *rewardVault) deposit(rt comptroller.RewardType, amount *uint256.Int) error {
	reserve, err := v.state.RewardVaultBalance(rt)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(reserve, amount)
	if overflow {
		return fmt.Errorf("ledger: reward vault overflow")
	}
	return v.state.PutRewardVaultBalance(rt, next)
}
