package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/comptroller"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type tokensRequest struct {
	Tokens string `json:"tokens"`
}

type repayRequest struct {
	// Borrower defaults to the caller.
	Borrower string `json:"borrower"`
	// Amount omitted repays the whole borrow balance.
	Amount string `json:"amount"`
}

type liquidateRequest struct {
	Borrower   string `json:"borrower"`
	Amount     string `json:"amount"`
	Collateral string `json:"collateral"`
}

type transferRequest struct {
	To     string `json:"to"`
	Tokens string `json:"tokens"`
}

type marketsRequest struct {
	Markets []string `json:"markets"`
}

type marketRequest struct {
	Market string `json:"market"`
}

// accountAction holds what every write handler resolves before calling the
// ledger.
type accountAction struct {
	caller common.Address
	market common.Address
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, withMarket bool, body any) (accountAction, bool) {
	var action accountAction
	from, err := caller(r)
	if err != nil {
		writeError(w, http.StatusForbidden, err)
		return action, false
	}
	action.caller = from
	if withMarket {
		action.market, err = addressParam(r, "market")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return action, false
		}
	}
	if body != nil {
		if err := decodeJSON(w, r, body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return action, false
		}
	}
	return action, true
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
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
	tokens, err := s.ledger.Mint(r.Context(), action.market, action.caller, amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"minted_tokens": amountString(tokens)})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	var req tokensRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	tokens, err := parseRequiredAmount("tokens", req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := s.ledger.Redeem(r.Context(), action.market, action.caller, tokens)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redeemed_amount": amountString(amount)})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
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
	if err := s.ledger.Borrow(r.Context(), action.market, action.caller, amount); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"borrowed_amount": amountString(amount)})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	borrower := action.caller
	if req.Borrower != "" {
		parsed, err := parseAccount("borrower", req.Borrower)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrower = parsed
	}
	var amount *uint256.Int
	if req.Amount != "" {
		parsed, err := comptroller.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		amount = parsed
	}
	repaid, err := s.ledger.RepayBorrow(r.Context(), action.market, action.caller, borrower, amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid_amount": amountString(repaid)})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	borrower, err := parseAccount("borrower", req.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collateral, err := parseAccount("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seized, err := s.ledger.LiquidateBorrow(r.Context(), action.market, action.caller, borrower, amount, collateral)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"seized_tokens": amountString(seized)})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	action, ok := s.resolve(w, r, true, &req)
	if !ok {
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokens, err := parseRequiredAmount("tokens", req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.Transfer(r.Context(), action.market, action.caller, to, tokens); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transferred_tokens": amountString(tokens)})
}

func (s *Server) enterMarkets(w http.ResponseWriter, r *http.Request) {
	var req marketsRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	markets, err := parseAddressList("markets", req.Markets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	codes, err := s.ledger.EnterMarkets(r.Context(), action.caller, markets)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	results := make([]map[string]string, 0, len(codes))
	for i, code := range codes {
		results = append(results, map[string]string{"market": markets[i].Hex(), "code": code.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) exitMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	market, err := parseAccount("market", req.Market)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.ledger.ExitMarket(r.Context(), action.caller, market)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if code != comptroller.NoError {
		s.writeLedgerError(w, r, code.Err())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market": market.Hex(), "code": code.String()})
}

func (s *Server) claimReward(w http.ResponseWriter, r *http.Request) {
	rt, err := rewardParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req marketsRequest
	action, ok := s.resolve(w, r, false, &req)
	if !ok {
		return
	}
	var markets []common.Address
	if req.Markets != nil {
		markets, err = parseAddressList("markets", req.Markets)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	paid, err := s.ledger.ClaimReward(r.Context(), rt, action.caller, markets)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward": rt.String(), "paid": amountString(paid)})
}
