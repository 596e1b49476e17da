package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/updownhq/updown/internal/domain"
)

// AdminService defines the owner/keeper operations the admin handler
// drives. Role checks live in the engine; the handler only transports the
// acting identity.
type AdminService interface {
	Settle(ctx context.Context, actor string, outcome int64) (domain.RoundResult, error)
	Pause(ctx context.Context, actor string) error
	Unpause(ctx context.Context, actor string) error
	SetSafeMode(ctx context.Context, actor string, enabled bool) error
	SetKeeper(ctx context.Context, actor, keeper string) error
	SetTreasury(ctx context.Context, actor, treasury string) error
	SetMinBet(ctx context.Context, actor string, v int64) error
	SetMaxBet(ctx context.Context, actor string, v int64) error
	TransferOwnership(ctx context.Context, actor, newOwner string) error
	Rescue(ctx context.Context, actor, recipient string, amount int64) error
	CreditAccount(ctx context.Context, actor, account string, amount int64) error
	DebitAccount(ctx context.Context, actor, account string, amount int64) error
}

// AuditReader lists audit-log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveLister lists cold-storage archive objects by key prefix.
type ArchiveLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// AdminHandler serves the API-key-authenticated operations endpoints.
type AdminHandler struct {
	admin    AdminService
	audit    AuditReader
	archives ArchiveLister
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. audit and archives may be nil;
// the corresponding endpoints then answer 404.
func NewAdminHandler(admin AdminService, audit AuditReader, archives ArchiveLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		audit:    audit,
		archives: archives,
		logger:   logger,
	}
}

// actorRequest carries the acting identity every admin mutation needs.
type actorRequest struct {
	Actor string `json:"actor"`
}

// decodeAdmin decodes an admin request body into v, which must embed the
// actor field. Returns false after answering the request on failure.
func decodeAdmin(w http.ResponseWriter, r *http.Request, v any, actor *string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if *actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return false
	}
	return true
}

// settleRequest triggers a manual settlement.
type settleRequest struct {
	actorRequest
	Outcome int64 `json:"outcome"`
}

// Settle consumes the reported outcome for the open round. The keeper
// loop normally drives this; the endpoint is the manual override.
// POST /api/v1/admin/settle
func (h *AdminHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}

	res, err := h.admin.Settle(r.Context(), req.Actor, req.Outcome)
	if err != nil {
		respondError(w, r, h.logger, err, "settle")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pause halts staking and settlement.
// POST /api/v1/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.Pause(r.Context(), req.Actor); err != nil {
		respondError(w, r, h.logger, err, "pause")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Unpause resumes the wagering cycle.
// POST /api/v1/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.Unpause(r.Context(), req.Actor); err != nil {
		respondError(w, r, h.logger, err, "unpause")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// safeModeRequest toggles the stake-only halt.
type safeModeRequest struct {
	actorRequest
	Enabled bool `json:"enabled"`
}

// SetSafeMode toggles safe mode: stakes refused, settlement and claims
// still running.
// PUT /api/v1/admin/safe-mode
func (h *AdminHandler) SetSafeMode(w http.ResponseWriter, r *http.Request) {
	var req safeModeRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.SetSafeMode(r.Context(), req.Actor, req.Enabled); err != nil {
		respondError(w, r, h.logger, err, "set safe mode")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"safe_mode": req.Enabled})
}

// identityRequest carries a single identity argument.
type identityRequest struct {
	actorRequest
	Identity string `json:"identity"`
}

// SetKeeper rotates the keeper identity.
// PUT /api/v1/admin/keeper
func (h *AdminHandler) SetKeeper(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.SetKeeper(r.Context(), req.Actor, req.Identity); err != nil {
		respondError(w, r, h.logger, err, "set keeper")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"keeper": req.Identity})
}

// SetTreasury redirects future fees.
// PUT /api/v1/admin/treasury
func (h *AdminHandler) SetTreasury(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.SetTreasury(r.Context(), req.Actor, req.Identity); err != nil {
		respondError(w, r, h.logger, err, "set treasury")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"treasury": req.Identity})
}

// TransferOwnership hands the owner role to a new identity.
// PUT /api/v1/admin/owner
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.TransferOwnership(r.Context(), req.Actor, req.Identity); err != nil {
		respondError(w, r, h.logger, err, "transfer ownership")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": req.Identity})
}

// limitsRequest updates stake bounds. Absent fields leave the current
// value in place.
type limitsRequest struct {
	actorRequest
	MinBet *int64 `json:"min_bet"`
	MaxBet *int64 `json:"max_bet"`
}

// SetLimits updates the minimum and/or maximum stake.
// PUT /api/v1/admin/limits
func (h *AdminHandler) SetLimits(w http.ResponseWriter, r *http.Request) {
	var req limitsRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if req.MinBet == nil && req.MaxBet == nil {
		writeError(w, http.StatusBadRequest, "min_bet or max_bet required")
		return
	}

	if req.MinBet != nil {
		if err := h.admin.SetMinBet(r.Context(), req.Actor, *req.MinBet); err != nil {
			respondError(w, r, h.logger, err, "set min bet")
			return
		}
	}
	if req.MaxBet != nil {
		if err := h.admin.SetMaxBet(r.Context(), req.Actor, *req.MaxBet); err != nil {
			respondError(w, r, h.logger, err, "set max bet")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// rescueRequest moves escrow funds to a recovery account.
type rescueRequest struct {
	actorRequest
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// Rescue moves escrow funds to a recovery account. Owner only, and only
// while paused.
// POST /api/v1/admin/rescue
func (h *AdminHandler) Rescue(w http.ResponseWriter, r *http.Request) {
	var req rescueRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.Rescue(r.Context(), req.Actor, req.Recipient, req.Amount); err != nil {
		respondError(w, r, h.logger, err, "rescue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recipient": req.Recipient,
		"amount":    req.Amount,
	})
}

// accountRequest adjusts one account's balance.
type accountRequest struct {
	actorRequest
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// CreditAccount adds external value to an account.
// POST /api/v1/admin/accounts/credit
func (h *AdminHandler) CreditAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.CreditAccount(r.Context(), req.Actor, req.Account, req.Amount); err != nil {
		respondError(w, r, h.logger, err, "credit account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": req.Account,
		"amount":  req.Amount,
	})
}

// DebitAccount removes value from an account.
// POST /api/v1/admin/accounts/debit
func (h *AdminHandler) DebitAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decodeAdmin(w, r, &req, &req.Actor) {
		return
	}
	if err := h.admin.DebitAccount(r.Context(), req.Actor, req.Account, req.Amount); err != nil {
		respondError(w, r, h.logger, err, "debit account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": req.Account,
		"amount":  req.Amount,
	})
}

// listAuditResponse wraps the audit-log output.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Audit returns audit-log entries, newest first.
// GET /api/v1/admin/audit?limit=50&offset=0
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, err, "list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{
		Entries: entries,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// listArchivesResponse wraps the cold-storage listing.
type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// Archives lists the JSONL archive objects in cold storage, optionally
// narrowed to one kind, so operators can verify uploads before pruning
// database rows.
// GET /api/v1/admin/archives?kind=rounds
func (h *AdminHandler) Archives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archive storage not configured")
		return
	}

	prefix := "archive/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		prefix += kind + "/"
	}

	infos, err := h.archives.List(r.Context(), prefix)
	if err != nil {
		respondError(w, r, h.logger, err, "list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}
