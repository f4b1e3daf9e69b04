package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"lendcore/core"
	nativecommon "lendcore/native/common"
	"lendcore/native/comptroller"
	"lendcore/native/market"
	"lendcore/native/oracle"
	"lendcore/services/comptrollerd/middleware"
)

var (
	errInvalidLimit      = errors.New("limit must be a positive integer")
	errSubscriberDropped = errors.New("event subscriber fell behind")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// writeLedgerError maps a ledger failure onto an HTTP status. Policy
// denials carry their comptroller code.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	if code, ok := comptroller.CodeOf(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: code.String()})
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger request failed", "route", r.URL.Path, "error", err)
		writeError(w, status, errors.New("internal error"))
		return
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, comptroller.ErrUnauthorized),
		errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, oracle.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrUnknownMarket),
		errors.Is(err, market.ErrUnknownMarket),
		errors.Is(err, market.ErrUnknownCollateral):
		return http.StatusNotFound
	case errors.Is(err, comptroller.ErrActionPaused),
		errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, market.ErrInsufficientUnderlying),
		errors.Is(err, market.ErrInsufficientCash),
		errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrRepayExceedsBorrow),
		errors.Is(err, market.ErrSeizeTooMuch),
		errors.Is(err, market.ErrAlreadyInitialized),
		errors.Is(err, core.ErrAlreadyBootstrapped):
		return http.StatusConflict
	case errors.Is(err, comptroller.ErrInvalidInput),
		errors.Is(err, comptroller.ErrInvalidRewardType),
		errors.Is(err, comptroller.ErrMarketNotListed),
		errors.Is(err, comptroller.ErrMarketAlreadyAdded),
		errors.Is(err, comptroller.ErrInsufficientRewards),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrLiquidateSelf),
		errors.Is(err, market.ErrTransferSelf),
		errors.Is(err, market.ErrBorrowIndexDecrease),
		errors.Is(err, oracle.ErrPriceOutOfRange),
		errors.Is(err, oracle.ErrMarketNotSpecified):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a JSON body into dst. An empty body leaves dst as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseRequiredAmount(field, value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	return comptroller.ParseAmount(value)
}

func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}
