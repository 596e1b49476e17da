package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ClaimService defines what the claim handler requires from the service
// layer.
type ClaimService interface {
	Claim(ctx context.Context, participant string, round uint64) (int64, error)
	Claimable(ctx context.Context, round uint64, participant string) (int64, error)
}

// ClaimHandler serves payout endpoints.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

// placeClaimRequest is the JSON body for realizing a payout.
type placeClaimRequest struct {
	Participant string `json:"participant"`
	Round       uint64 `json:"round"`
}

// claimResponse reports a realized payout.
type claimResponse struct {
	Round       uint64 `json:"round"`
	Participant string `json:"participant"`
	Amount      int64  `json:"amount"`
}

// PlaceClaim pays out the caller's share of a settled round. Claiming
// twice answers 409; claims stay open while the market is paused.
// POST /api/v1/claims
func (h *ClaimHandler) PlaceClaim(w http.ResponseWriter, r *http.Request) {
	var req placeClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	amount, err := h.claims.Claim(r.Context(), req.Participant, req.Round)
	if err != nil {
		respondError(w, r, h.logger, err, "claim")
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Round:       req.Round,
		Participant: req.Participant,
		Amount:      amount,
	})
}

// claimableResponse reports what a claim would pay.
type claimableResponse struct {
	Round       uint64 `json:"round"`
	Participant string `json:"participant"`
	Claimable   int64  `json:"claimable"`
}

// GetClaimable quotes a participant's unclaimed share of a settled round
// without paying it. Unsettled rounds, strangers, and already-claimed
// shares all quote zero.
// GET /api/v1/rounds/{number}/claimable?participant=
func (h *ClaimHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	number, ok := roundParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "participant query parameter required")
		return
	}

	amount, err := h.claims.Claimable(r.Context(), number, participant)
	if err != nil {
		respondError(w, r, h.logger, err, "get claimable")
		return
	}
	writeJSON(w, http.StatusOK, claimableResponse{
		Round:       number,
		Participant: participant,
		Claimable:   amount,
	})
}
