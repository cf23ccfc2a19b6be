package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/account-scaffold/internal/service"
)

// AuthHandler serves the login endpoint.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleTokenAuth exchanges credentials for a new token.
//
// HTTP: POST /api/token-auth
// REQUEST BODY: {"username": "...", "password": "..."}
//
// RESPONSES:
//   - 200 {"token": "<key>"}
//   - 400 {"non_field_errors": ["Unable to log in with provided credentials."]}
//   - 400 {"username": ["This field is required."], ...}
//   - 429 {"detail": "Request was throttled."}
func (h *AuthHandler) HandleTokenAuth(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Key})
}
