package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/service"
	"github.com/sakif/account-scaffold/internal/validator"
)

// AccountHandler serves registration and the per-user resource.
//
// HANDLER RESPONSIBILITIES:
//   - HandleCreateUser → POST /api/create-user
//   - HandleGet        → GET    /api/users/{username}/
//   - HandleUpdate     → PUT    /api/users/{username}/ (full)
//   - HandlePatch      → PATCH  /api/users/{username}/ (partial)
//   - HandleDelete     → DELETE /api/users/{username}/
//
// The user routes sit behind auth.RequireToken, so by the time a handler
// runs the caller's account is in the request context.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type createUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// createUserResponse is the 201 body. The password is never echoed.
type createUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// HandleCreateUser registers an account and returns its first token.
//
// HTTP: POST /api/create-user
// REQUEST BODY: {"username": "...", "email": "...", "password": "..."}
//
// RESPONSES:
//   - 201 {"id": "...", "username": "...", "email": "...", "token": "..."}
//   - 400 {"username": [...], "email": [...], "password": [...]}
func (h *AccountHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	reg, err := h.accounts.Register(r.Context(), validator.Credentials{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createUserResponse{
		ID:       reg.Account.ID,
		Username: reg.Account.Username,
		Email:    reg.Account.Email,
		Token:    reg.Token.Key,
	})
}

// HandleGet returns the caller's own profile.
//
// HTTP: GET /api/users/{username}/
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.AccountFromContext(r.Context())

	account, err := h.accounts.Get(r.Context(), caller, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, account.Summary())
}

type profileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// HandleUpdate replaces username and email; both are required.
//
// HTTP: PUT /api/users/{username}/
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// HandlePatch changes only the fields present in the body.
//
// HTTP: PATCH /api/users/{username}/
func (h *AccountHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *AccountHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	caller, _ := auth.AccountFromContext(r.Context())
	username := chi.URLParam(r, "username")

	// 404 and 403 take precedence over body errors.
	if _, err := h.accounts.Get(r.Context(), caller, username); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	account, err := h.accounts.Update(r.Context(), caller, username, service.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	}, partial)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, account.Summary())
}

// HandleDelete removes the caller's account and all its tokens.
//
// HTTP: DELETE /api/users/{username}/
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.AccountFromContext(r.Context())

	if err := h.accounts.Delete(r.Context(), caller, chi.URLParam(r, "username")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
