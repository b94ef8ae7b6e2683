package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tacbyte/tacstats/internal/platform/httpx"
)

// Policies of the token endpoints.
var (
	AdminTokenPolicy  = NewPolicy(NoAuth())
	PlayerTokenPolicy = NewPolicy(MinRole(RoleAuthKey))
	WhoAmIPolicy      = NewPolicy(MinRole(RoleNone), AllowTacByteAccess(), RequiredAuthPlayerRoles(PlayerBan))
)

// Handler exposes token issuance over HTTP.
type Handler struct {
	logger    *slog.Logger
	issuer    *Issuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, issuer *Issuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, issuer: issuer, validator: validator.New()}
}

type adminTokenRequest struct {
	PasswordHash string `json:"passwordHash" validate:"required,max=72"`
}

type playerTokenRequest struct {
	SteamID64 string `json:"steamId64" validate:"required,numeric,len=17"`
}

// IssueAdmin handles POST /auth/admin-token.
func (h *Handler) IssueAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.issuer.IssueAdminToken(r.Context(), req.PasswordHash)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issued)
}

// IssuePlayer handles POST /auth/player-token.
func (h *Handler) IssuePlayer(w http.ResponseWriter, r *http.Request) {
	var req playerTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.issuer.IssueAuthPlayerToken(r.Context(), req.SteamID64)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issued)
}

// WhoAmI handles GET /auth/whoami.
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		p = Anonymous()
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, ErrNotRegistered):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "player is not registered")
	default:
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
