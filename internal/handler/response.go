package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, r, logger, err)
//
// ERROR SHAPES:
// The API keeps two response shapes for errors:
//
//   {"username": ["msg", ...], "email": [...]}          field errors, always 400
//   {"non_field_errors": ["msg"]}                        failed login, 400
//   {"detail": "msg"}                                    everything else
//
// writeError is the ONLY place that turns a domain error into a status code.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/auth"
)

// Fixed details.
const (
	MsgNotFound    = "Not found."
	MsgServerError = "A server error occurred."

	nonFieldErrors = "non_field_errors"
)

// DetailResponse is the flat error body.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.FieldErrors          → 400 {field: [messages]}
//	*apperror.DuplicateError      → 400 {field: ["user with this … already exists."]}
//	ErrInvalidCredentials         → 400 {"non_field_errors": [message]}
//	ErrUnauthorized               → 401 {"detail": message} + WWW-Authenticate
//	ErrForbidden                  → 403 {"detail": message}
//	ErrNotFound                   → 404 {"detail": "Not found."}
//	ErrThrottled                  → 429 {"detail": message}
//	anything else                 → 500, cause logged, never shown
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var fe apperror.FieldErrors
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusBadRequest, fe)
		return
	}

	var dup *apperror.DuplicateError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusBadRequest, dup.FieldErrors())
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrInvalidCredentials):
			writeJSON(w, http.StatusBadRequest, map[string][]string{nonFieldErrors: {appErr.Message}})
			return
		case errors.Is(err, apperror.ErrUnauthorized):
			w.Header().Set("WWW-Authenticate", auth.Scheme)
			writeJSON(w, http.StatusUnauthorized, DetailResponse{Detail: appErr.Message})
			return
		case errors.Is(err, apperror.ErrForbidden):
			writeJSON(w, http.StatusForbidden, DetailResponse{Detail: appErr.Message})
			return
		case errors.Is(err, apperror.ErrThrottled):
			writeJSON(w, http.StatusTooManyRequests, DetailResponse{Detail: appErr.Message})
			return
		case errors.Is(err, apperror.ErrValidation):
			if appErr.Field != "" {
				writeJSON(w, http.StatusBadRequest, apperror.FieldErrors{appErr.Field: {appErr.Message}})
				return
			}
			writeJSON(w, http.StatusBadRequest, DetailResponse{Detail: appErr.Message})
			return
		}
	}

	if errors.Is(err, apperror.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, DetailResponse{Detail: MsgNotFound})
		return
	}

	// NEVER expose internal error details to the client: the raw message
	// might contain SQL, file paths, or other sensitive info.
	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, DetailResponse{Detail: MsgServerError})
}

// ErrorWriter adapts writeError for middleware outside this package.
func ErrorWriter(logger *slog.Logger) auth.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}
}

// maxBodyBytes caps request bodies; account payloads are tiny.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into dst. An empty body decodes as {}
// so that missing fields are reported per field rather than as a parse error.
// The body must hold exactly one JSON value; anything after it is a parse error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return parseError(err.Error())
	}

	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return parseError(err.Error())
	default:
		return parseError("extra data after the JSON value")
	}
}

func parseError(reason string) error {
	return apperror.ValidationFailed("", "JSON parse error - "+reason)
}

// NotFound answers unknown routes with the standard 404 envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, DetailResponse{Detail: MsgNotFound})
}

// MethodNotAllowed answers a known route hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, DetailResponse{Detail: `Method "` + r.Method + `" not allowed.`})
}
