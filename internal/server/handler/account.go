package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// BalanceService reads account balances from the bank.
type BalanceService interface {
	Balance(ctx context.Context, account string) (int64, error)
}

// AccountHandler serves account endpoints.
type AccountHandler struct {
	bank   BalanceService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(bank BalanceService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		bank:   bank,
		logger: logger,
	}
}

// balanceResponse reports one account's balance.
type balanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// GetBalance returns an account's bank balance. Unknown accounts hold
// zero.
// GET /api/v1/accounts/{id}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "id")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	balance, err := h.bank.Balance(r.Context(), account)
	if err != nil {
		respondError(w, r, h.logger, err, "get balance")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: balance,
	})
}
