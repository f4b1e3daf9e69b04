package oracle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

var (
	ErrUnauthorized       = errors.New("oracle: unauthorized")
	ErrStateUnavailable   = errors.New("oracle: state unavailable")
	ErrPriceOutOfRange    = errors.New("oracle: price out of range")
	ErrMarketNotSpecified = errors.New("oracle: market required")
)

// MaxPrice bounds posted prices so that price times a 1e18 factor times
// any realistic balance stays inside 256 bits.
var MaxPrice = new(uint256.Int).Lsh(uint256.NewInt(1), 160)

type oracleState interface {
	OraclePrice(market common.Address) (*uint256.Int, error)
	OraclePutPrice(market common.Address, price *uint256.Int) error
}

// Oracle is an admin-posted price table. Prices are 1e18 scaled and
// already adjusted for the underlying asset's decimals. A market without a
// posted price reads as zero, which the comptroller treats as unavailable.
type Oracle struct {
	admin   common.Address
	state   oracleState
	emitter events.Emitter
	logger  *slog.Logger
}

func New(admin common.Address) *Oracle {
	return &Oracle{admin: admin, emitter: events.NoopEmitter{}, logger: slog.Default()}
}

func (o *Oracle) SetState(state oracleState) { o.state = state }

func (o *Oracle) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	o.emitter = emitter
}

func (o *Oracle) SetLogger(logger *slog.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// Admin returns the account allowed to post prices.
func (o *Oracle) Admin() common.Address { return o.admin }

// UnderlyingPrice returns the posted price of market's underlying asset.
func (o *Oracle) UnderlyingPrice(market common.Address) (*uint256.Int, error) {
	if o == nil || o.state == nil {
		return nil, ErrStateUnavailable
	}
	price, err := o.state.OraclePrice(market)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return new(uint256.Int), nil
	}
	return price, nil
}

// SetUnderlyingPrice posts a new price for market. Posting zero withdraws
// the price.
func (o *Oracle) SetUnderlyingPrice(caller, market common.Address, price *uint256.Int) error {
	if o == nil || o.state == nil {
		return ErrStateUnavailable
	}
	if caller != o.admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if market == (common.Address{}) {
		return ErrMarketNotSpecified
	}
	if price == nil {
		price = new(uint256.Int)
	}
	if price.Gt(MaxPrice) {
		return ErrPriceOutOfRange
	}
	old, err := o.UnderlyingPrice(market)
	if err != nil {
		return err
	}
	if err := o.state.OraclePutPrice(market, price); err != nil {
		return err
	}
	o.emitter.Emit(events.PricePosted{Market: market, Old: old, New: new(uint256.Int).Set(price)})
	o.logger.Debug("price posted", "market", market.Hex(), "price", price.Dec())
	return nil
}
