package comptroller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

func (e *Engine) requireAdmin(caller common.Address) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if params.Admin != caller {
		return fmt.Errorf("%w: %s is not admin", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// admin runs an admin setter under the reentrancy guard and inside a state
// snapshot.
func (e *Engine) admin(setter string, fn func() (Code, error)) (Code, error) {
	release, err := e.enter()
	if err != nil {
		return NoError, err
	}
	defer release()
	code, err := e.atomically(fn)
	if err == nil && code == NoError {
		e.telemetry.ObserveAdminChange(setter)
	}
	return code, err
}

// updateParams loads params, applies mutate and stores the result.
func (e *Engine) updateParams(mutate func(p *Params) error) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if err := mutate(params); err != nil {
		return err
	}
	return e.state.ComptrollerPutParams(params)
}

// InitAdmin assigns the first admin. It only succeeds while no admin is set
// and is used when bootstrapping a fresh ledger.
func (e *Engine) InitAdmin(admin common.Address) error {
	if admin == (common.Address{}) {
		return fmt.Errorf("%w: zero admin", ErrInvalidInput)
	}
	_, err := e.admin("init_admin", func() (Code, error) {
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		if params.Admin != (common.Address{}) {
			return NoError, fmt.Errorf("%w: admin already set", ErrUnauthorized)
		}
		params.Admin = admin
		if err := e.state.ComptrollerPutParams(params); err != nil {
			return NoError, err
		}
		e.emit(events.RoleUpdated{Type: events.TypeNewAdmin, New: admin})
		return NoError, nil
	})
	return err
}

// SetPendingAdmin starts an admin handover.
func (e *Engine) SetPendingAdmin(caller, pending common.Address) (Code, error) {
	return e.admin("pending_admin", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		var old common.Address
		err := e.updateParams(func(p *Params) error {
			old = p.PendingAdmin
			p.PendingAdmin = pending
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.RoleUpdated{Type: events.TypeNewPendingAdmin, Old: old, New: pending})
		return NoError, nil
	})
}

// AcceptAdmin completes a handover started by SetPendingAdmin.
func (e *Engine) AcceptAdmin(caller common.Address) (Code, error) {
	return e.admin("accept_admin", func() (Code, error) {
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		if caller == (common.Address{}) || params.PendingAdmin != caller {
			return NoError, fmt.Errorf("%w: %s is not pending admin", ErrUnauthorized, caller.Hex())
		}
		old := params.Admin
		params.Admin = caller
		params.PendingAdmin = common.Address{}
		if err := e.state.ComptrollerPutParams(params); err != nil {
			return NoError, err
		}
		e.emit(events.RoleUpdated{Type: events.TypeNewAdmin, Old: old, New: caller})
		e.logger.Info("comptroller admin accepted", "admin", caller.Hex())
		return NoError, nil
	})
}

// SetPriceOracle records the oracle address. The oracle implementation is
// wired separately through SetOracle.
func (e *Engine) SetPriceOracle(caller, oracle common.Address) (Code, error) {
	return e.admin("price_oracle", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		var old common.Address
		err := e.updateParams(func(p *Params) error {
			old = p.Oracle
			p.Oracle = oracle
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.RoleUpdated{Type: events.TypeNewPriceOracle, Old: old, New: oracle})
		return NoError, nil
	})
}

// SetCloseFactor sets the maximum share of a borrow repayable in one
// liquidation.
func (e *Engine) SetCloseFactor(caller common.Address, mantissa *uint256.Int) (Code, error) {
	value := clone(mantissa)
	return e.admin("close_factor", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		if value.Lt(MinCloseFactor) || value.Gt(MaxCloseFactor) {
			return InvalidCloseFactor, nil
		}
		var old *uint256.Int
		err := e.updateParams(func(p *Params) error {
			old = p.CloseFactor
			p.CloseFactor = value
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.ParamUpdated{Type: events.TypeNewCloseFactor, Old: old, New: clone(value)})
		e.logger.Info("close factor updated", "old", old.Dec(), "new", value.Dec())
		return NoError, nil
	})
}

// SetCollateralFactor sets market's collateral factor. A non-zero factor
// requires an available price.
func (e *Engine) SetCollateralFactor(caller, market common.Address, mantissa *uint256.Int) (Code, error) {
	value := clone(mantissa)
	return e.admin("collateral_factor", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		record, err := e.listedMarket(market)
		if err != nil {
			return NoError, err
		}
		if record == nil {
			return MarketNotListed, nil
		}
		if value.Gt(MaxCollateralFactor) {
			return InvalidCollateralFactor, nil
		}
		if !value.IsZero() {
			price, err := e.price(market)
			if err != nil {
				return NoError, err
			}
			if price.IsZero() {
				return PriceUnavailable, nil
			}
		}
		old := orZero(record.CollateralFactor)
		record.CollateralFactor = value
		if err := e.state.ComptrollerPutMarket(record); err != nil {
			return NoError, err
		}
		e.emit(events.ParamUpdated{Type: events.TypeNewCollateralFactor, Market: market, Old: old, New: clone(value)})
		e.logger.Info("collateral factor updated", "market", market.Hex(), "old", old.Dec(), "new", value.Dec())
		return NoError, nil
	})
}

// SetLiquidationIncentive sets the collateral bonus paid to liquidators.
func (e *Engine) SetLiquidationIncentive(caller common.Address, mantissa *uint256.Int) (Code, error) {
	value := clone(mantissa)
	return e.admin("liquidation_incentive", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		if value.Lt(MinLiquidationIncentive) || value.Gt(MaxLiquidationIncentive) {
			return InvalidLiquidationIncentive, nil
		}
		var old *uint256.Int
		err := e.updateParams(func(p *Params) error {
			old = p.LiquidationIncentive
			p.LiquidationIncentive = value
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.ParamUpdated{Type: events.TypeNewLiquidationIncentive, Old: old, New: clone(value)})
		return NoError, nil
	})
}

// SetMaxAssets caps how many markets one account may enter. Zero removes
// the cap.
func (e *Engine) SetMaxAssets(caller common.Address, maxAssets uint64) (Code, error) {
	return e.admin("max_assets", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		var old uint64
		err := e.updateParams(func(p *Params) error {
			old = p.MaxAssets
			p.MaxAssets = maxAssets
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.ParamUpdated{Type: events.TypeNewMaxAssets, Old: uint256.NewInt(old), New: uint256.NewInt(maxAssets)})
		return NoError, nil
	})
}

// SetMarketBorrowCaps sets borrow caps for several markets. The admin or
// the borrow cap guardian may call it; a zero cap removes the limit.
func (e *Engine) SetMarketBorrowCaps(caller common.Address, markets []common.Address, caps []*uint256.Int) (Code, error) {
	if len(markets) == 0 || len(markets) != len(caps) {
		return NoError, fmt.Errorf("%w: markets and caps must be non-empty and equal length", ErrInvalidInput)
	}
	return e.admin("borrow_caps", func() (Code, error) {
		params, err := e.params()
		if err != nil {
			return NoError, err
		}
		if caller != params.Admin && caller != params.BorrowCapGuardian {
			return NoError, fmt.Errorf("%w: only admin or borrow cap guardian can set borrow caps", ErrUnauthorized)
		}
		for i, market := range markets {
			record, err := e.listedMarket(market)
			if err != nil {
				return NoError, err
			}
			if record == nil {
				return MarketNotListed, nil
			}
			old := orZero(record.BorrowCap)
			record.BorrowCap = clone(caps[i])
			if err := e.state.ComptrollerPutMarket(record); err != nil {
				return NoError, err
			}
			e.emit(events.ParamUpdated{Type: events.TypeNewBorrowCap, Market: market, Old: old, New: clone(caps[i])})
		}
		return NoError, nil
	})
}

// SetBorrowCapGuardian assigns the borrow cap guardian role.
func (e *Engine) SetBorrowCapGuardian(caller, guardian common.Address) (Code, error) {
	return e.setRole(caller, "borrow_cap_guardian", events.TypeNewBorrowCapGuardian, guardian, func(p *Params) *common.Address {
		return &p.BorrowCapGuardian
	})
}

// SetPauseGuardian assigns the pause guardian role.
func (e *Engine) SetPauseGuardian(caller, guardian common.Address) (Code, error) {
	return e.setRole(caller, "pause_guardian", events.TypeNewPauseGuardian, guardian, func(p *Params) *common.Address {
		return &p.PauseGuardian
	})
}

// SetRewardToken records the token emitted by the governance flywheel.
func (e *Engine) SetRewardToken(caller, token common.Address) (Code, error) {
	return e.setRole(caller, "reward_token", events.TypeNewRewardToken, token, func(p *Params) *common.Address {
		return &p.GovernanceToken
	})
}

func (e *Engine) setRole(caller common.Address, setter, eventType string, value common.Address, field func(p *Params) *common.Address) (Code, error) {
	return e.admin(setter, func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		var old common.Address
		err := e.updateParams(func(p *Params) error {
			slot := field(p)
			old = *slot
			*slot = value
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.RoleUpdated{Type: eventType, Old: old, New: value})
		return NoError, nil
	})
}

// requirePauser lets the guardian or admin pause, and only the admin
// unpause.
func (e *Engine) requirePauser(caller common.Address, paused bool) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if caller != params.PauseGuardian && caller != params.Admin {
		return fmt.Errorf("%w: only pause guardian and admin can pause", ErrUnauthorized)
	}
	if caller != params.Admin && !paused {
		return fmt.Errorf("%w: only admin can unpause", ErrUnauthorized)
	}
	return nil
}

// SetMintPaused toggles supply for one listed market.
func (e *Engine) SetMintPaused(caller, market common.Address, paused bool) (Code, error) {
	return e.setMarketPause(caller, market, ActionMint, paused)
}

// SetBorrowPaused toggles borrowing for one listed market.
func (e *Engine) SetBorrowPaused(caller, market common.Address, paused bool) (Code, error) {
	return e.setMarketPause(caller, market, ActionBorrow, paused)
}

func (e *Engine) setMarketPause(caller, market common.Address, action Action, paused bool) (Code, error) {
	return e.admin(action.String()+"_pause", func() (Code, error) {
		record, err := e.listedMarket(market)
		if err != nil {
			return NoError, err
		}
		if record == nil {
			return NoError, fmt.Errorf("%w: cannot pause %s", ErrMarketNotListed, market.Hex())
		}
		if err := e.requirePauser(caller, paused); err != nil {
			return NoError, err
		}
		if action == ActionMint {
			record.MintPaused = paused
		} else {
			record.BorrowPaused = paused
		}
		if err := e.state.ComptrollerPutMarket(record); err != nil {
			return NoError, err
		}
		e.emit(events.ActionPaused{Action: action.String(), Market: market, Paused: paused})
		e.logger.Info("market action pause changed", "market", market.Hex(), "action", action.String(), "paused", paused)
		return NoError, nil
	})
}

// SetTransferPaused toggles market token transfers protocol wide.
func (e *Engine) SetTransferPaused(caller common.Address, paused bool) (Code, error) {
	return e.setGlobalPause(caller, ActionTransfer, paused)
}

// SetSeizePaused toggles collateral seizure protocol wide.
func (e *Engine) SetSeizePaused(caller common.Address, paused bool) (Code, error) {
	return e.setGlobalPause(caller, ActionSeize, paused)
}

func (e *Engine) setGlobalPause(caller common.Address, action Action, paused bool) (Code, error) {
	return e.admin(action.String()+"_pause", func() (Code, error) {
		if err := e.requirePauser(caller, paused); err != nil {
			return NoError, err
		}
		err := e.updateParams(func(p *Params) error {
			if action == ActionTransfer {
				p.TransferPaused = paused
			} else {
				p.SeizePaused = paused
			}
			return nil
		})
		if err != nil {
			return NoError, err
		}
		e.emit(events.ActionPaused{Action: action.String(), Paused: paused})
		e.logger.Info("global action pause changed", "action", action.String(), "paused", paused)
		return NoError, nil
	})
}

// SetRewardSpeeds sets both track speeds of one flywheel for market. Each
// changed track is brought current at its old speed first.
func (e *Engine) SetRewardSpeeds(caller common.Address, rt RewardType, market common.Address, supplySpeed, borrowSpeed *uint256.Int) (Code, error) {
	if !rt.Valid() {
		return NoError, fmt.Errorf("%w: %d", ErrInvalidRewardType, rt)
	}
	supply := clone(supplySpeed)
	borrow := clone(borrowSpeed)
	return e.admin("reward_speed", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		record, err := e.listedMarket(market)
		if err != nil {
			return NoError, err
		}
		if record == nil {
			return MarketNotListed, nil
		}
		view, err := e.view(market)
		if err != nil {
			return NoError, err
		}
		current, err := e.rewardSpeed(rt, SideSupply, market)
		if err != nil {
			return NoError, err
		}
		if !current.Eq(supply) {
			if err := e.updateSupplyIndex(rt, market, view); err != nil {
				return NoError, err
			}
			if err := e.state.ComptrollerPutRewardSpeed(rt, SideSupply, market, supply); err != nil {
				return NoError, err
			}
			e.emit(events.RewardSpeedUpdated{RewardType: rt.String(), Side: SideSupply.String(), Market: market, Speed: clone(supply)})
		}
		current, err = e.rewardSpeed(rt, SideBorrow, market)
		if err != nil {
			return NoError, err
		}
		if !current.Eq(borrow) {
			borrowIndex, err := view.BorrowIndex()
			if err != nil {
				return NoError, err
			}
			if err := e.updateBorrowIndex(rt, market, view, borrowIndex); err != nil {
				return NoError, err
			}
			if err := e.state.ComptrollerPutRewardSpeed(rt, SideBorrow, market, borrow); err != nil {
				return NoError, err
			}
			e.emit(events.RewardSpeedUpdated{RewardType: rt.String(), Side: SideBorrow.String(), Market: market, Speed: clone(borrow)})
		}
		return NoError, nil
	})
}

// GrantReward transfers amount of the given reward from the vault to
// recipient outside the flywheel. The vault must cover the full amount.
func (e *Engine) GrantReward(caller common.Address, rt RewardType, recipient common.Address, amount *uint256.Int) error {
	if !rt.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRewardType, rt)
	}
	value := clone(amount)
	_, err := e.admin("grant_reward", func() (Code, error) {
		if err := e.requireAdmin(caller); err != nil {
			return NoError, err
		}
		if e.vault == nil {
			return NoError, ErrInsufficientRewards
		}
		balance, err := e.vault.RewardBalance(rt)
		if err != nil {
			return NoError, err
		}
		if value.Gt(orZero(balance)) {
			return NoError, fmt.Errorf("%w: need %s have %s", ErrInsufficientRewards, value.Dec(), orZero(balance).Dec())
		}
		if value.IsZero() {
			return NoError, nil
		}
		if err := e.vault.TransferReward(rt, recipient, value); err != nil {
			return NoError, err
		}
		e.emit(events.RewardPayout{RewardType: rt.String(), Account: recipient, Amount: clone(value)})
		e.logger.Info("reward granted", "reward", rt.String(), "recipient", recipient.Hex(), "amount", value.Dec())
		return NoError, nil
	})
	return err
}
