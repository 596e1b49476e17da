package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/updownhq/updown/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatuses maps domain sentinels to HTTP statuses, in precedence
// order: ErrInsufficientFunds must match before the ErrTransferFailed it
// arrives wrapped in.
var errorStatuses = []struct {
	sentinel error
	status   int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrInsufficientFunds, http.StatusBadRequest},
	{domain.ErrTransferFailed, http.StatusBadGateway},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrBetTooSmall, http.StatusBadRequest},
	{domain.ErrBetTooLarge, http.StatusBadRequest},
	{domain.ErrInvalidSide, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidAccount, http.StatusBadRequest},
	{domain.ErrOutcomeOutOfRange, http.StatusBadRequest},
	{domain.ErrInvalidParams, http.StatusBadRequest},
	{domain.ErrBettingClosed, http.StatusConflict},
	{domain.ErrPaused, http.StatusConflict},
	{domain.ErrNotPaused, http.StatusConflict},
	{domain.ErrSafeMode, http.StatusConflict},
	{domain.ErrNotSettleable, http.StatusConflict},
	{domain.ErrRoundNotSettled, http.StatusConflict},
	{domain.ErrAlreadyClaimed, http.StatusConflict},
	{domain.ErrNothingToClaim, http.StatusConflict},
	{domain.ErrBusy, http.StatusConflict},
}

// respondError translates err into a JSON error response. Domain
// conditions answer with their sentinel text; anything unrecognized is
// logged and answered with a generic 500 so internals do not leak.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, op string) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.sentinel) {
			writeError(w, m.status, m.sentinel.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// roundParam parses the {number} path segment as a round number.
func roundParam(r *http.Request) (uint64, bool) {
	n, err := strconv.ParseUint(pathParam(r, "number"), 10, 64)
	return n, err == nil
}
