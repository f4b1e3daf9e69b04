package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

func (e *Engine) rewardState(rt RewardType, side Side, market common.Address) (*RewardMarketState, error) {
	st, err := e.state.ComptrollerRewardState(rt, side, market)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &RewardMarketState{Index: zero()}, nil
	}
	st = st.Clone()
	return st, nil
}

func (e *Engine) rewardSpeed(rt RewardType, side Side, market common.Address) (*uint256.Int, error) {
	speed, err := e.state.ComptrollerRewardSpeed(rt, side, market)
	if err != nil {
		return nil, err
	}
	return orZero(speed), nil
}

// updateIndex brings one track current. totalTokens is only consulted when
// the track emits; an empty track advances its timestamp without accruing.
func (e *Engine) updateIndex(rt RewardType, side Side, market common.Address, totalTokens func() (*uint256.Int, error)) error {
	st, err := e.rewardState(rt, side, market)
	if err != nil {
		return err
	}
	now, err := e.now()
	if err != nil {
		return err
	}
	if now <= st.Timestamp {
		return nil
	}
	speed, err := e.rewardSpeed(rt, side, market)
	if err != nil {
		return err
	}
	if !speed.IsZero() {
		total, err := totalTokens()
		if err != nil {
			return err
		}
		accrued, err := mul(uint256.NewInt(uint64(now-st.Timestamp)), speed)
		if err != nil {
			return err
		}
		ratio, err := fractionScaled(accrued, total, RewardScale)
		if err != nil {
			return err
		}
		index, err := add(st.Index, ratio)
		if err != nil {
			return err
		}
		if st.Index, err = safe224(index); err != nil {
			return err
		}
	}
	st.Timestamp = now
	return e.state.ComptrollerPutRewardState(rt, side, market, st)
}

func (e *Engine) updateSupplyIndex(rt RewardType, market common.Address, view MarketView) error {
	return e.updateIndex(rt, SideSupply, market, view.TotalSupply)
}

// updateBorrowIndex accrues the borrow track against total principal, i.e.
// total borrows divided by the market borrow index.
func (e *Engine) updateBorrowIndex(rt RewardType, market common.Address, view MarketView, borrowIndex *uint256.Int) error {
	return e.updateIndex(rt, SideBorrow, market, func() (*uint256.Int, error) {
		totalBorrows, err := view.TotalBorrows()
		if err != nil {
			return nil, err
		}
		return fractionScaled(totalBorrows, borrowIndex, ExpScale)
	})
}

// distribute credits account with the accrual of one track since its last
// snapshot. An account that was never snapshotted starts from InitialIndex
// once the track has a non-zero index.
func (e *Engine) distribute(rt RewardType, side Side, market, account common.Address, balance *uint256.Int) error {
	st, err := e.rewardState(rt, side, market)
	if err != nil {
		return err
	}
	snapshot, err := e.state.ComptrollerRewardIndex(rt, side, market, account)
	if err != nil {
		return err
	}
	snapshot = orZero(snapshot)
	if err := e.state.ComptrollerPutRewardIndex(rt, side, market, account, clone(st.Index)); err != nil {
		return err
	}
	if snapshot.IsZero() && !st.Index.IsZero() {
		snapshot = clone(InitialIndex)
	}
	deltaIndex, err := sub(st.Index, snapshot)
	if err != nil {
		return err
	}
	delta, err := mulScaled(balance, deltaIndex, RewardScale)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	accrued, err := e.state.ComptrollerRewardAccrued(rt, account)
	if err != nil {
		return err
	}
	total, err := add(accrued, delta)
	if err != nil {
		return err
	}
	if err := e.state.ComptrollerPutRewardAccrued(rt, account, total); err != nil {
		return err
	}
	e.emit(events.RewardDistributed{
		RewardType: rt.String(),
		Side:       side.String(),
		Market:     market,
		Account:    account,
		Delta:      delta,
		Index:      clone(st.Index),
	})
	return nil
}

func (e *Engine) distributeSupplier(rt RewardType, market common.Address, view MarketView, supplier common.Address) error {
	balance, err := view.BalanceOf(supplier)
	if err != nil {
		return err
	}
	return e.distribute(rt, SideSupply, market, supplier, orZero(balance))
}

func (e *Engine) distributeBorrower(rt RewardType, market common.Address, view MarketView, borrower common.Address, borrowIndex *uint256.Int) error {
	borrowed, err := view.BorrowBalanceStored(borrower)
	if err != nil {
		return err
	}
	principal, err := fractionScaled(borrowed, borrowIndex, ExpScale)
	if err != nil {
		return err
	}
	return e.distribute(rt, SideBorrow, market, borrower, principal)
}

// updateAndDistributeSupplier runs the supply track of both flywheels for
// market and credits each account.
func (e *Engine) updateAndDistributeSupplier(market common.Address, accounts ...common.Address) error {
	view, err := e.view(market)
	if err != nil {
		return err
	}
	for _, rt := range RewardTypes {
		if err := e.updateSupplyIndex(rt, market, view); err != nil {
			return err
		}
		for _, account := range accounts {
			if err := e.distributeSupplier(rt, market, view, account); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateAndDistributeBorrower runs the borrow track of both flywheels for
// market and credits borrower.
func (e *Engine) updateAndDistributeBorrower(market common.Address, view MarketView, borrower common.Address) error {
	borrowIndex, err := view.BorrowIndex()
	if err != nil {
		return err
	}
	for _, rt := range RewardTypes {
		if err := e.updateBorrowIndex(rt, market, view, borrowIndex); err != nil {
			return err
		}
		if err := e.distributeBorrower(rt, market, view, borrower, borrowIndex); err != nil {
			return err
		}
	}
	return nil
}

// payout transfers the full accrued amount when the vault covers it and
// returns what remains owed. A short vault defers the whole amount.
func (e *Engine) payout(rt RewardType, account common.Address, accrued *uint256.Int) (*uint256.Int, error) {
	if accrued.IsZero() {
		return zero(), nil
	}
	available := zero()
	if e.vault != nil {
		balance, err := e.vault.RewardBalance(rt)
		if err != nil {
			return nil, err
		}
		available = orZero(balance)
	}
	if e.vault == nil || accrued.Gt(available) {
		e.telemetry.ObservePayout(rt.String(), true)
		e.logger.Warn("reward payout deferred",
			"reward", rt.String(),
			"account", account.Hex(),
			"accrued", accrued.Dec(),
			"available", available.Dec())
		e.emit(events.RewardPayout{RewardType: rt.String(), Account: account, Amount: clone(accrued), Deferred: true})
		return accrued, nil
	}
	if err := e.vault.TransferReward(rt, account, accrued); err != nil {
		return nil, err
	}
	e.telemetry.ObservePayout(rt.String(), false)
	e.emit(events.RewardPayout{RewardType: rt.String(), Account: account, Amount: clone(accrued)})
	return zero(), nil
}

// ClaimReward accrues holder's rewards of the given type in every market on
// both tracks and pays out the total. It returns the amount paid.
func (e *Engine) ClaimReward(rt RewardType, holder common.Address) (*uint256.Int, error) {
	markets, err := e.AllMarkets()
	if err != nil {
		return nil, err
	}
	return e.ClaimRewardFor(rt, []common.Address{holder}, markets, true, true)
}

// ClaimRewardIn is ClaimReward restricted to markets.
func (e *Engine) ClaimRewardIn(rt RewardType, holder common.Address, markets []common.Address) (*uint256.Int, error) {
	return e.ClaimRewardFor(rt, []common.Address{holder}, markets, true, true)
}

// ClaimRewardFor accrues the selected tracks of markets for every holder and
// pays each holder's total. Unlisted markets abort the claim.
func (e *Engine) ClaimRewardFor(rt RewardType, holders, markets []common.Address, borrowers, suppliers bool) (*uint256.Int, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRewardType, rt)
	}
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	paid := zero()
	_, err = e.atomically(func() (Code, error) {
		for _, market := range markets {
			record, err := e.listedMarket(market)
			if err != nil {
				return NoError, err
			}
			if record == nil {
				return NoError, fmt.Errorf("%w: %s", ErrMarketNotListed, market.Hex())
			}
			view, err := e.view(market)
			if err != nil {
				return NoError, err
			}
			if borrowers {
				borrowIndex, err := view.BorrowIndex()
				if err != nil {
					return NoError, err
				}
				if err := e.updateBorrowIndex(rt, market, view, borrowIndex); err != nil {
					return NoError, err
				}
				for _, holder := range holders {
					if err := e.distributeBorrower(rt, market, view, holder, borrowIndex); err != nil {
						return NoError, err
					}
				}
			}
			if suppliers {
				if err := e.updateSupplyIndex(rt, market, view); err != nil {
					return NoError, err
				}
				for _, holder := range holders {
					if err := e.distributeSupplier(rt, market, view, holder); err != nil {
						return NoError, err
					}
				}
			}
		}
		for _, holder := range holders {
			accrued, err := e.state.ComptrollerRewardAccrued(rt, holder)
			if err != nil {
				return NoError, err
			}
			accrued = orZero(accrued)
			remaining, err := e.payout(rt, holder, accrued)
			if err != nil {
				return NoError, err
			}
			if err := e.state.ComptrollerPutRewardAccrued(rt, holder, remaining); err != nil {
				return NoError, err
			}
			if remaining.IsZero() {
				paid.Add(paid, accrued)
			}
		}
		return NoError, nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// PendingReward reports what ClaimReward would accrue for holder right now
// without changing state.
func (e *Engine) PendingReward(rt RewardType, holder common.Address) (*uint256.Int, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRewardType, rt)
	}
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	markets, err := e.state.ComptrollerAllMarkets()
	if err != nil {
		return nil, err
	}
	id := e.state.Snapshot()
	mark := len(e.pending)
	defer func() {
		e.state.RevertToSnapshot(id)
		e.pending = e.pending[:mark]
	}()
	for _, market := range markets {
		view, err := e.view(market)
		if err != nil {
			return nil, err
		}
		borrowIndex, err := view.BorrowIndex()
		if err != nil {
			return nil, err
		}
		if err := e.updateBorrowIndex(rt, market, view, borrowIndex); err != nil {
			return nil, err
		}
		if err := e.distributeBorrower(rt, market, view, holder, borrowIndex); err != nil {
			return nil, err
		}
		if err := e.updateSupplyIndex(rt, market, view); err != nil {
			return nil, err
		}
		if err := e.distributeSupplier(rt, market, view, holder); err != nil {
			return nil, err
		}
	}
	accrued, err := e.state.ComptrollerRewardAccrued(rt, holder)
	if err != nil {
		return nil, err
	}
	return clone(accrued), nil
}

// RewardAccrued returns holder's unpaid balance of the given reward.
func (e *Engine) RewardAccrued(rt RewardType, holder common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	accrued, err := e.state.ComptrollerRewardAccrued(rt, holder)
	if err != nil {
		return nil, err
	}
	return clone(accrued), nil
}

// RewardSpeedsOf returns the emission speeds of both tracks of market.
func (e *Engine) RewardSpeedsOf(rt RewardType, market common.Address) (RewardSpeeds, error) {
	if e == nil || e.state == nil {
		return RewardSpeeds{}, ErrStateUnavailable
	}
	supply, err := e.rewardSpeed(rt, SideSupply, market)
	if err != nil {
		return RewardSpeeds{}, err
	}
	borrow, err := e.rewardSpeed(rt, SideBorrow, market)
	if err != nil {
		return RewardSpeeds{}, err
	}
	return RewardSpeeds{Supply: supply, Borrow: borrow}, nil
}

// RewardMarketStateOf returns the accrual index of one track.
func (e *Engine) RewardMarketStateOf(rt RewardType, side Side, market common.Address) (*RewardMarketState, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	return e.rewardState(rt, side, market)
}

// RewardIndexOf returns the account's snapshot of one track.
func (e *Engine) RewardIndexOf(rt RewardType, side Side, market, account common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrStateUnavailable
	}
	index, err := e.state.ComptrollerRewardIndex(rt, side, market, account)
	if err != nil {
		return nil, err
	}
	return clone(index), nil
}
