package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/core/events"
)

// SupportMarket lists market with a zero collateral factor and starts both
// reward flywheels at InitialIndex. Only the admin may list markets.
func (e *Engine) SupportMarket(caller, market common.Address) (Code, error) {
	release, err := e.enter()
	if err != nil {
		return NoError, err
	}
	defer release()
	return e.atomically(func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		existing, err := e.state.ComptrollerMarket(market)
		if err != nil {
			return NoError, err
		}
		if existing != nil && existing.Listed {
			return MarketAlreadyListed, nil
		}
		view, err := e.view(market)
		if err != nil {
			return NoError, err
		}
		if !view.IsMarket() {
			return NoError, fmt.Errorf("%w: %s", ErrNotMarket, market.Hex())
		}
		record := &Market{
			Address:          market,
			Listed:           true,
			CollateralFactor: zero(),
			BorrowCap:        zero(),
		}
		if err := e.state.ComptrollerPutMarket(record); err != nil {
			return NoError, err
		}
		if err := e.addMarket(market); err != nil {
			return NoError, err
		}
		now, err := e.now()
		if err != nil {
			return NoError, err
		}
		for _, rt := range RewardTypes {
			for _, side := range []Side{SideSupply, SideBorrow} {
				st, err := e.state.ComptrollerRewardState(rt, side, market)
				if err != nil {
					return NoError, err
				}
				if st == nil || orZero(st.Index).IsZero() {
					st = &RewardMarketState{Index: clone(InitialIndex), Timestamp: now}
				}
				st.Timestamp = now
				if err := e.state.ComptrollerPutRewardState(rt, side, market, st); err != nil {
					return NoError, err
				}
			}
		}
		e.emit(events.MarketListed{Market: market})
		e.logger.Info("market listed", "market", market.Hex())
		return NoError, nil
	})
}

func (e *Engine) addMarket(market common.Address) error {
	all, err := e.state.ComptrollerAllMarkets()
	if err != nil {
		return err
	}
	for _, existing := range all {
		if existing == market {
			return fmt.Errorf("%w: %s", ErrMarketAlreadyAdded, market.Hex())
		}
	}
	return e.state.ComptrollerPutAllMarkets(append(all, market))
}

// EnterMarkets adds the markets to the account's liquidity calculation and
// returns one code per requested market.
func (e *Engine) EnterMarkets(account common.Address, markets []common.Address) ([]Code, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	results := make([]Code, len(markets))
	for i, market := range markets {
		code, err := e.atomically(func() (Code, error) {
			return e.addToMarket(market, account)
		})
		if err != nil {
			return nil, err
		}
		results[i] = code
	}
	return results, nil
}

// addToMarket appends market to the account's asset list. Already entered
// markets are a no-op.
func (e *Engine) addToMarket(market, account common.Address) (Code, error) {
	record, err := e.listedMarket(market)
	if err != nil {
		return NoError, err
	}
	if record == nil {
		return MarketNotListed, nil
	}
	position, err := e.state.ComptrollerMembership(market, account)
	if err != nil {
		return NoError, err
	}
	if position != 0 {
		return NoError, nil
	}
	assets, err := e.state.ComptrollerAccountAssets(account)
	if err != nil {
		return NoError, err
	}
	params, err := e.params()
	if err != nil {
		return NoError, err
	}
	if params.MaxAssets != 0 && uint64(len(assets)) >= params.MaxAssets {
		return TooManyAssets, nil
	}
	assets = append(assets, market)
	if err := e.state.ComptrollerPutAccountAssets(account, assets); err != nil {
		return NoError, err
	}
	if err := e.state.ComptrollerPutMembership(market, account, uint64(len(assets))); err != nil {
		return NoError, err
	}
	e.emit(events.MarketMembership{Market: market, Account: account, Entered: true})
	return NoError, nil
}

// ExitMarket removes market from the account's asset list. The account must
// not owe anything on the market and must stay solvent without the
// collateral it holds there.
func (e *Engine) ExitMarket(account, market common.Address) (Code, error) {
	release, err := e.enter()
	if err != nil {
		return NoError, err
	}
	defer release()
	return e.atomically(func() (Code, error) {
		view, err := e.view(market)
		if err != nil {
			return NoError, err
		}
		snapshot, err := view.GetAccountSnapshot(account)
		if err != nil {
			return NoError, fmt.Errorf("%w: %s: %v", ErrSnapshot, market.Hex(), err)
		}
		if !orZero(snapshot.Borrow).IsZero() {
			return NonzeroBorrowBalance, nil
		}
		code, err := e.redeemAllowed(market, account, orZero(snapshot.Tokens))
		if err != nil {
			return NoError, err
		}
		if code != NoError {
			return Rejected, nil
		}
		position, err := e.state.ComptrollerMembership(market, account)
		if err != nil {
			return NoError, err
		}
		if position == 0 {
			return NoError, nil
		}
		assets, err := e.state.ComptrollerAccountAssets(account)
		if err != nil {
			return NoError, err
		}
		if position > uint64(len(assets)) || assets[position-1] != market {
			return NoError, fmt.Errorf("comptroller: membership index corrupted for %s", account.Hex())
		}
		// Swap with the last entry and truncate; order is not preserved.
		last := len(assets) - 1
		moved := assets[last]
		assets[position-1] = moved
		assets = assets[:last]
		if moved != market {
			if err := e.state.ComptrollerPutMembership(moved, account, position); err != nil {
				return NoError, err
			}
		}
		if err := e.state.ComptrollerPutMembership(market, account, 0); err != nil {
			return NoError, err
		}
		if err := e.state.ComptrollerPutAccountAssets(account, assets); err != nil {
			return NoError, err
		}
		e.emit(events.MarketMembership{Market: market, Account: account, Entered: false})
		return NoError, nil
	})
}

// AssetsIn returns the markets the account has entered.
func (e *Engine) AssetsIn(account common.Address) ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	assets, err := e.state.ComptrollerAccountAssets(account)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), assets...), nil
}

// CheckMembership reports whether the account has entered market.
func (e *Engine) CheckMembership(account, market common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrStateUnavailable
	}
	position, err := e.state.ComptrollerMembership(market, account)
	if err != nil {
		return false, err
	}
	return position != 0, nil
}

// AllMarkets returns every listed market in listing order.
func (e *Engine) AllMarkets() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	all, err := e.state.ComptrollerAllMarkets()
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), all...), nil
}
