package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/updownhq/updown/internal/domain"
)

// RoundService defines what the round handler requires from the service
// layer.
type RoundService interface {
	Results(ctx context.Context, opts domain.ListOpts) ([]domain.RoundResult, error)
	Result(ctx context.Context, round uint64) (domain.RoundResult, error)
	ClaimsFor(ctx context.Context, round uint64) ([]domain.ClaimRecord, error)
}

// RoundHandler serves settled-round endpoints.
type RoundHandler struct {
	rounds RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler with the given service and logger.
func NewRoundHandler(rounds RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		rounds: rounds,
		logger: logger,
	}
}

// listRoundsResponse wraps the round list output.
type listRoundsResponse struct {
	Rounds []domain.RoundResult `json:"rounds"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListRounds returns settled rounds, newest first.
// GET /api/v1/rounds?limit=50&offset=0
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	rounds, err := h.rounds.Results(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, err, "list rounds")
		return
	}
	if rounds == nil {
		rounds = []domain.RoundResult{}
	}
	writeJSON(w, http.StatusOK, listRoundsResponse{
		Rounds: rounds,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetRound returns the frozen result of one settled round.
// GET /api/v1/rounds/{number}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	number, ok := roundParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}

	res, err := h.rounds.Result(r.Context(), number)
	if err != nil {
		respondError(w, r, h.logger, err, "get round")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listClaimsResponse wraps the claim records of one round.
type listClaimsResponse struct {
	Round  uint64               `json:"round"`
	Claims []domain.ClaimRecord `json:"claims"`
}

// ListClaims returns the realized payouts of one settled round.
// GET /api/v1/rounds/{number}/claims
func (h *RoundHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	number, ok := roundParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}

	claims, err := h.rounds.ClaimsFor(r.Context(), number)
	if err != nil {
		respondError(w, r, h.logger, err, "list claims")
		return
	}
	if claims == nil {
		claims = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, listClaimsResponse{
		Round:  number,
		Claims: claims,
	})
}
