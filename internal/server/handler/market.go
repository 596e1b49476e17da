package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/updownhq/updown/internal/domain"
)

// StateService defines what the market handler requires from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type StateService interface {
	State(ctx context.Context) (domain.MarketState, error)
}

// MarketHandler serves the market state endpoint.
type MarketHandler struct {
	state  StateService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(state StateService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		state:  state,
		logger: logger,
	}
}

// GetState returns the live market snapshot: open round, baseline, pools,
// rollover, window durations, and halt flags.
// GET /api/v1/market
func (h *MarketHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.State(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err, "get market state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
