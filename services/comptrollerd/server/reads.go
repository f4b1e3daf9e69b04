package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/comptroller"
)

type speedsJSON struct {
	Supply string `json:"supply"`
	Borrow string `json:"borrow"`
}

type marketJSON struct {
	Address          string     `json:"address"`
	Symbol           string     `json:"symbol"`
	Listed           bool       `json:"listed"`
	CollateralFactor string     `json:"collateral_factor"`
	BorrowCap        string     `json:"borrow_cap"`
	MintPaused       bool       `json:"mint_paused"`
	BorrowPaused     bool       `json:"borrow_paused"`
	ExchangeRate     string     `json:"exchange_rate"`
	BorrowIndex      string     `json:"borrow_index"`
	TotalSupply      string     `json:"total_supply"`
	TotalBorrows     string     `json:"total_borrows"`
	Cash             string     `json:"cash"`
	Price            string     `json:"price"`
	GovernanceSpeeds speedsJSON `json:"governance_speeds"`
	NativeSpeeds     speedsJSON `json:"native_speeds"`
}

type liquidityJSON struct {
	Code      string `json:"code"`
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

func toLiquidityJSON(code comptroller.Code, liquidity comptroller.Liquidity) liquidityJSON {
	return liquidityJSON{
		Code:      code.String(),
		Liquidity: amountString(liquidity.Liquidity),
		Shortfall: amountString(liquidity.Shortfall),
	}
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.ledger.MarketSummaries()
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]marketJSON, 0, len(summaries))
	for _, summary := range summaries {
		entry := marketJSON{
			Symbol:       summary.Symbol,
			ExchangeRate: amountString(summary.ExchangeRate),
			BorrowIndex:  amountString(summary.BorrowIndex),
			TotalSupply:  amountString(summary.TotalSupply),
			TotalBorrows: amountString(summary.TotalBorrows),
			Cash:         amountString(summary.Cash),
			Price:        amountString(summary.Price),
			GovernanceSpeeds: speedsJSON{
				Supply: amountString(summary.GovernanceSpeeds.Supply),
				Borrow: amountString(summary.GovernanceSpeeds.Borrow),
			},
			NativeSpeeds: speedsJSON{
				Supply: amountString(summary.NativeSpeeds.Supply),
				Borrow: amountString(summary.NativeSpeeds.Borrow),
			},
		}
		if listing := summary.Market; listing != nil {
			entry.Address = listing.Address.Hex()
			entry.Listed = listing.Listed
			entry.CollateralFactor = amountString(listing.CollateralFactor)
			entry.BorrowCap = amountString(listing.BorrowCap)
			entry.MintPaused = listing.MintPaused
			entry.BorrowPaused = listing.BorrowPaused
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (s *Server) accountLiquidity(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, liquidity, err := s.ledger.AccountLiquidity(account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiquidityJSON(code, liquidity))
}

func (s *Server) hypotheticalLiquidity(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	query := r.URL.Query()
	modify, err := comptroller.ParseAddress(query.Get("market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	redeemTokens, err := comptroller.ParseAmount(query.Get("redeem_tokens"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	borrowAmount, err := comptroller.ParseAmount(query.Get("borrow_amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, liquidity, err := s.ledger.HypotheticalAccountLiquidity(account, modify, redeemTokens, borrowAmount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiquidityJSON(code, liquidity))
}

func (s *Server) accountRewards(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pending, err := s.ledger.PendingReward(rt, account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	paid, err := s.ledger.RewardBalance(rt, account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reward":  rt.String(),
		"pending": amountString(pending),
		"paid":    amountString(paid),
	})
}

func (s *Server) rewardReserve(w http.ResponseWriter, r *http.Request) {
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reserve, err := s.ledger.RewardReserve(rt)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward": rt.String(), "reserve": amountString(reserve)})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		after = parsed
	}
	limit := 100
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}
	records := s.events.After(after, limit)
	if s.archive != nil {
		archived, err := s.archive.List(r.Context(), after, limit)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		records = archived
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

func parseAddressList(field string, values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for _, value := range values {
		addr, err := parseAccount(field, value)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
