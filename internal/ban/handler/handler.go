package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"banguard/internal/ban/models"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/platform/httputil"
	"banguard/pkg/platform/middleware/metadata"
	"banguard/pkg/requestcontext"
)

// Console is the operator command surface.
type Console interface {
	Ban(ctx context.Context, name, reason, duration string) (string, error)
	Unban(ctx context.Context, name string) (string, error)
	Kick(ctx context.Context, name, reason string) (string, error)
	TempBan(ctx context.Context, admin, name, reason string) (string, bool, error)
	ReleaseTempBan(ctx context.Context, name string) (string, error)
	Reload(ctx context.Context) (string, error)
	ListBanned(ctx context.Context) []string
	ListTempBanned(ctx context.Context) []string
	IsProtected(name string) bool
	Login(ctx context.Context, id models.Identity) (bool, string)
}

// Sessions records identities the login gate let through.
type Sessions interface {
	Connect(ctx context.Context, id models.Identity)
}

// Handler wires operator commands and the login gate to HTTP.
type Handler struct {
	console  Console
	sessions Sessions
	logger   *slog.Logger
}

func New(console Console, sessions Sessions, logger *slog.Logger) *Handler {
	return &Handler{
		console:  console,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterAdmin mounts operator commands. Callers wrap r with the admin token
// middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/bans", h.HandleBan)
	r.Delete("/admin/bans/{name}", h.HandleUnban)
	r.Get("/admin/bans", h.HandleListBans)
	r.Post("/admin/kicks", h.HandleKick)
	r.Post("/admin/tempbans", h.HandleTempBan)
	r.Delete("/admin/tempbans/{name}", h.HandleReleaseTempBan)
	r.Get("/admin/tempbans", h.HandleListTempBans)
	r.Post("/admin/reload", h.HandleReload)
	r.Get("/admin/protected/{name}", h.HandleProtected)
}

// RegisterGateway mounts the login gate.
func (h *Handler) RegisterGateway(r chi.Router) {
	r.Post("/gateway/login", h.HandleLogin)
}

// HandleBan handles POST /admin/bans.
func (h *Handler) HandleBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	msg, err := h.console.Ban(ctx, req.Name, req.Reason, req.Duration)
	if err != nil {
		h.writeError(ctx, w, "ban", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

// HandleUnban handles DELETE /admin/bans/{name}.
func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := h.console.Unban(ctx, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(ctx, w, "unban", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleListBans handles GET /admin/bans.
func (h *Handler) HandleListBans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NamesResponse{Names: nonNil(h.console.ListBanned(r.Context()))})
}

// HandleKick handles POST /admin/kicks.
func (h *Handler) HandleKick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[KickRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	msg, err := h.console.Kick(ctx, req.Name, req.Reason)
	if err != nil {
		h.writeError(ctx, w, "kick", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleTempBan handles POST /admin/tempbans. The first request answers 202
// with the confirmation prompt, the confirming one 201.
func (h *Handler) HandleTempBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TempBanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	admin := req.Admin
	if admin == "" {
		admin = requestcontext.Actor(ctx)
	}
	msg, applied, err := h.console.TempBan(ctx, admin, req.Name, req.Reason)
	if err != nil {
		h.writeError(ctx, w, "tempban", err)
		return
	}
	if applied {
		httputil.WriteJSON(w, http.StatusCreated, TempBanResponse{Message: msg, State: "applied"})
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, TempBanResponse{Message: msg, State: "pending"})
}

// HandleReleaseTempBan handles DELETE /admin/tempbans/{name}.
func (h *Handler) HandleReleaseTempBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := h.console.ReleaseTempBan(ctx, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(ctx, w, "release", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleListTempBans handles GET /admin/tempbans.
func (h *Handler) HandleListTempBans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NamesResponse{Names: nonNil(h.console.ListTempBanned(r.Context()))})
}

// HandleReload handles POST /admin/reload.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := h.console.Reload(ctx)
	if err != nil {
		h.writeError(ctx, w, "reload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleProtected handles GET /admin/protected/{name}.
func (h *Handler) HandleProtected(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	httputil.WriteJSON(w, http.StatusOK, ProtectedResponse{Name: name, Protected: h.console.IsProtected(name)})
}

// HandleLogin handles POST /gateway/login. Allowed identities are registered
// as connected sessions. A body without an address falls back to the
// forwarded address header.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	id := req.Identity()
	if id.Address == "" {
		id.Address = metadata.GetForwardedAddress(ctx)
	}
	denied, msg := h.console.Login(ctx, id)
	if !denied && h.sessions != nil {
		h.sessions.Connect(ctx, id)
	}
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{Denied: denied, Message: msg})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "command failed",
			"request_id", requestcontext.RequestID(ctx),
			"command", op,
			"error", err,
		)
	}
	httputil.WriteErrorStatus(w, status, err)
}

// statusFor maps ban codes to statuses and defers everything else to
// httputil.
func statusFor(err error) int {
	switch dErrors.CodeOf(err) {
	case models.CodeEmptyIdentifier, models.CodeInvalidIdentifier:
		return http.StatusBadRequest
	case models.CodeProtected:
		return http.StatusForbidden
	case models.CodeAlreadyBanned, models.CodeAlreadyTempBanned, models.CodeAlreadyUnbanned:
		return http.StatusConflict
	case models.CodeNoSuchBan, models.CodeNoActiveTempBan, models.CodeNotConnected:
		return http.StatusNotFound
	case models.CodePersistenceIO:
		return http.StatusServiceUnavailable
	default:
		return httputil.StatusFor(dErrors.CodeOf(err))
	}
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
