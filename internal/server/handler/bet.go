package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/updownhq/updown/internal/domain"
)

// BetService defines what the bet handler requires from the service layer.
type BetService interface {
	Stake(ctx context.Context, participant string, side domain.Side, amount int64) (domain.Bet, error)
	MyBet(participant string) domain.BetPosition
	BetsFor(ctx context.Context, participant string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves staking endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for placing a wager. The participant is
// a request field: the fronting gateway authenticates end users.
type placeBetRequest struct {
	Participant string `json:"participant"`
	Side        string `json:"side"`
	Amount      int64  `json:"amount"`
}

// PlaceBet stakes an amount on one side of the open round.
// POST /api/v1/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	bet, err := h.bets.Stake(r.Context(), req.Participant, domain.Side(req.Side), req.Amount)
	if err != nil {
		respondError(w, r, h.logger, err, "place bet")
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetPosition returns the participant's stakes per side in the open round.
// GET /api/v1/bets/{participant}
func (h *BetHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	participant := pathParam(r, "participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}
	writeJSON(w, http.StatusOK, h.bets.MyBet(participant))
}

// listBetsResponse wraps the bet history output.
type listBetsResponse struct {
	Bets   []domain.Bet `json:"bets"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListHistory returns a participant's journaled bets across rounds,
// newest first.
// GET /api/v1/bets/{participant}/history?limit=50&offset=0
func (h *BetHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	participant := pathParam(r, "participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}
	opts := parseListOpts(r)

	bets, err := h.bets.BetsFor(r.Context(), participant, opts)
	if err != nil {
		respondError(w, r, h.logger, err, "list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
