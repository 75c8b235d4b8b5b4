// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/media"
)

// Client-facing messages.
const (
	msgNotFound         = "Pas trouvé."
	msgInvalidPage      = "Page non valide."
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgForbidden        = "You do not have permission to perform this action."
	msgProtected        = "Impossible de supprimer cet objet car il est référencé par d'autres objets protégés."
	msgConflict         = "Cet objet est en conflit avec un objet existant."
	msgTokenInvalid     = "Given token not valid for any token type"
	msgInternal         = "Erreur interne du serveur."
	msgTooLarge         = "Le fichier envoyé est trop volumineux."
)

var (
	errInvalidPage = errors.New(msgInvalidPage)
	errBadJSON     = errors.New("JSON parse error")
	errNotFoundID  = fmt.Errorf("%w: malformed id", inventory.ErrNotFound)
)

// badRequest is a request-level problem reported under "detail".
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

// accountErrors maps account sentinels onto their HTTP status.
var accountErrors = []struct {
	err    error
	status int
}{
	{accounts.ErrInvalidCredentials, http.StatusUnauthorized},
	{accounts.ErrTooManyAttempts, http.StatusTooManyRequests},
	{accounts.ErrInvalidToken, http.StatusBadRequest},
	{accounts.ErrUnknownEmail, http.StatusNotFound},
	{accounts.ErrResetToken, http.StatusBadRequest},
	{accounts.ErrResetLink, http.StatusBadRequest},
	{accounts.ErrNewPasswordRequired, http.StatusBadRequest},
	{accounts.ErrOldPassword, http.StatusBadRequest},
	{accounts.ErrVerificationToken, http.StatusBadRequest},
	{accounts.ErrUserNotFound, http.StatusNotFound},
	{accounts.ErrOtherDepartment, http.StatusForbidden},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError renders err the way the API clients expect it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *inventory.ValidationError
		br  badRequest
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ve.Fields)
		return
	case errors.As(err, &br):
		writeDetail(w, http.StatusBadRequest, br.msg)
		return
	case errors.As(err, &mbe):
		writeDetail(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	case errors.Is(err, errBadJSON):
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, errInvalidPage):
		writeDetail(w, http.StatusNotFound, msgInvalidPage)
		return
	case errors.Is(err, inventory.ErrNotFound):
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	case errors.Is(err, inventory.ErrProtected):
		writeDetail(w, http.StatusConflict, msgProtected)
		return
	case errors.Is(err, inventory.ErrConflict):
		writeDetail(w, http.StatusConflict, msgConflict)
		return
	case errors.Is(err, media.ErrEmptyName):
		writeJSON(w, http.StatusBadRequest, map[string][]string{"fichier": {"Le nom du fichier est invalide."}})
		return
	case errors.Is(err, accounts.ErrTokenNotValid):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": msgTokenInvalid, "code": "token_not_valid"})
		return
	case errors.Is(err, accounts.ErrNoActiveAccount):
		writeDetail(w, http.StatusUnauthorized, err.Error())
		return
	}
	for _, m := range accountErrors {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, map[string]string{"error": m.err.Error()})
			return
		}
	}

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Error().Err(err).
		Str(xglog.FieldEvent, "api.internal_error").
		Str("method", r.Method).
		Str(xglog.FieldPath, r.URL.Path).
		Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"detail":     msgInternal,
		"request_id": xglog.RequestIDFromContext(r.Context()),
	})
}
