package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"lendcore/core"
	"lendcore/native/comptroller"
)

type valueRequest struct {
	Value string `json:"value"`
}

type createMarketRequest struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	ExchangeRate string `json:"exchange_rate"`
}

type priceRequest struct {
	Market string `json:"market"`
	Price  string `json:"price"`
}

type maxAssetsRequest struct {
	MaxAssets uint64 `json:"max_assets"`
}

type borrowCapsRequest struct {
	Markets []string `json:"markets"`
	Caps    []string `json:"caps"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type pauseRequest struct {
	Action string `json:"action"`
	// Market is required for mint and borrow pauses.
	Market string `json:"market"`
	Paused bool   `json:"paused"`
}

type speedsRequest struct {
	Supply string `json:"supply"`
	Borrow string `json:"borrow"`
}

type fundRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type grantRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type modulePauseRequest struct {
	Paused bool `json:"paused"`
}

// runAdmin applies fn through the ledger and answers 200 or the mapped error.
func (s *Server) runAdmin(w http.ResponseWriter, r *http.Request, name string, fn func(engine *comptroller.Engine) (comptroller.Code, error)) {
	if err := s.ledger.Admin(r.Context(), name, fn); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.logger.Info("admin action applied", "action", name, "request_id", requestID(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runMarketAdmin(w http.ResponseWriter, r *http.Request, name string, market common.Address, fn func(m core.MarketAdminOps) error) {
	if err := s.ledger.MarketAdmin(r.Context(), name, market, fn); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.logger.Info("market admin action applied", "action", name, "market", market.Hex(), "request_id", requestID(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	market, err := parseAccount("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, err := comptroller.ParseMantissa(req.ExchangeRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.CreateMarket(r.Context(), action.caller, market, strings.TrimSpace(req.Symbol), rate); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.logger.Info("market created", "market", market.Hex(), "request_id", requestID(r))
	writeJSON(w, http.StatusCreated, map[string]string{"market": market.Hex()})
}

func (s *Server) postPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	market, err := parseAccount("market", req.Market)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := comptroller.ParseMantissa(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.PostPrice(r.Context(), action.caller, market, price); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": market.Hex(), "price": price.Dec()})
}

func (s *Server) setCloseFactor(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	value, err := comptroller.ParseMantissa(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "set_close_factor", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetCloseFactor(action.caller, value)
	})
}

func (s *Server) setLiquidationIncentive(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	value, err := comptroller.ParseMantissa(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "set_liquidation_incentive", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetLiquidationIncentive(action.caller, value)
	})
}

func (s *Server) setMaxAssets(w http.ResponseWriter, r *http.Request) {
	var req maxAssetsRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	s.runAdmin(w, r, "set_max_assets", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetMaxAssets(action.caller, req.MaxAssets)
	})
}

func (s *Server) setBorrowCaps(w http.ResponseWriter, r *http.Request) {
	var req borrowCapsRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	markets, err := parseAddressList("markets", req.Markets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caps := make([]*uint256.Int, 0, len(req.Caps))
	for _, raw := range req.Caps {
		value, err := comptroller.ParseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		caps = append(caps, value)
	}
	s.runAdmin(w, r, "set_borrow_caps", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetMarketBorrowCaps(action.caller, markets, caps)
	})
}

func (s *Server) setRole(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	value, err := parseAccount("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var set func(e *comptroller.Engine) (comptroller.Code, error)
	switch role := chi.URLParam(r, "role"); role {
	case "pause-guardian":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetPauseGuardian(action.caller, value)
		}
	case "borrow-cap-guardian":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetBorrowCapGuardian(action.caller, value)
		}
	case "oracle":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetPriceOracle(action.caller, value)
		}
	case "governance-token":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetRewardToken(action.caller, value)
		}
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown role "+role))
		return
	}
	s.runAdmin(w, r, "set_role", set)
}

func (s *Server) setPendingAdmin(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	pending, err := parseAccount("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "set_pending_admin", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetPendingAdmin(action.caller, pending)
	})
}

func (s *Server) acceptAdmin(w http.ResponseWriter, r *http.Request) {
	action, ok := s.resolve(w, r, false, nil)
	if !ok {
		return
	}
	s.runAdmin(w, r, "accept_admin", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.AcceptAdmin(action.caller)
	})
}

func (s *Server) setActionPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	var market common.Address
	name := strings.ToLower(strings.TrimSpace(req.Action))
	if name == "mint" || name == "borrow" {
		parsed, err := parseAccount("market", req.Market)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		market = parsed
	}
	var set func(e *comptroller.Engine) (comptroller.Code, error)
	switch name {
	case "mint":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetMintPaused(action.caller, market, req.Paused)
		}
	case "borrow":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetBorrowPaused(action.caller, market, req.Paused)
		}
	case "transfer":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetTransferPaused(action.caller, req.Paused)
		}
	case "seize":
		set = func(e *comptroller.Engine) (comptroller.Code, error) {
			return e.SetSeizePaused(action.caller, req.Paused)
		}
	default:
		writeError(w, http.StatusBadRequest, errors.New("action must be mint, borrow, transfer or seize"))
		return
	}
	s.runAdmin(w, r, "set_"+name+"_paused", set)
}

func (s *Server) setCollateralFactor(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	value, err := comptroller.ParseMantissa(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "set_collateral_factor", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetCollateralFactor(action.caller, action.market, value)
	})
}

func (s *Server) setRewardSpeeds(w http.ResponseWriter, r *http.Request) {
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req speedsRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	supply, err := comptroller.ParseAmount(req.Supply)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	borrow, err := comptroller.ParseAmount(req.Borrow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "set_reward_speeds", func(e *comptroller.Engine) (comptroller.Code, error) {
		return e.SetRewardSpeeds(action.caller, rt, action.market, supply, borrow)
	})
}

func (s *Server) fundAccount(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	account, err := parseAccount("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runMarketAdmin(w, r, "fund_account", action.market, func(m core.MarketAdminOps) error {
		return m.Fund(action.caller, account, amount)
	})
}

func (s *Server) seedCash(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runMarketAdmin(w, r, "seed_cash", action.market, func(m core.MarketAdminOps) error {
		return m.SeedCash(action.caller, amount)
	})
}

func (s *Server) setBorrowIndex(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	index, err := comptroller.ParseMantissa(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runMarketAdmin(w, r, "set_borrow_index", action.market, func(m core.MarketAdminOps) error {
		return m.SetBorrowIndex(action.caller, index)
	})
}

func (s *Server) setExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	rate, err := comptroller.ParseMantissa(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runMarketAdmin(w, r, "set_exchange_rate", action.market, func(m core.MarketAdminOps) error {
		return m.SetExchangeRate(action.caller, rate)
	})
}

func (s *Server) fundRewards(w http.ResponseWriter, r *http.Request) {
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req amountRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.FundRewards(r.Context(), action.caller, rt, amount); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward": rt.String(), "funded": amount.Dec()})
}

func (s *Server) grantReward(w http.ResponseWriter, r *http.Request) {
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req grantRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	recipient, err := parseAccount("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runAdmin(w, r, "grant_reward", func(e *comptroller.Engine) (comptroller.Code, error) {
		return comptroller.NoError, e.GrantReward(action.caller, rt, recipient, amount)
	})
}

// setModulePaused toggles the operator kill switch. It bypasses the ledger
// so a paused module can still be resumed.
func (s *Server) setModulePaused(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeError(w, http.StatusNotImplemented, errors.New("module pauses not configured"))
		return
	}
	var req modulePauseRequest
	if _, ok := s.resolve(w, r, false, &req); !ok {
		return
	}
	module := strings.TrimSpace(chi.URLParam(r, "module"))
	if module == "" {
		writeError(w, http.StatusBadRequest, errors.New("module required"))
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Warn("module pause toggled", "module", module, "paused", req.Paused, "request_id", requestID(r))
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Paused()})
}
