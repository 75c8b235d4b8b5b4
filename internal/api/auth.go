// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/auth"
	xglog "github.com/ManuGH/gestprep/internal/log"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u accounts.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// currentUser returns the authenticated user of the request, if any.
func currentUser(r *http.Request) (accounts.User, bool) {
	u, ok := r.Context().Value(userKey).(accounts.User)
	return u, ok
}

// authenticate resolves an optional bearer token. A token that is present
// but invalid is rejected even on public routes.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := auth.ExtractToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, err := s.accounts.UserForToken(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := withUser(r.Context(), u)
		ctx = auth.WithPrincipal(ctx, p)
		ctx = xglog.ContextWithUserID(ctx, u.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(r); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeDetail(w, http.StatusUnauthorized, msgNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole allows authenticated users for which allowed returns true.
func requireRole(allowed func(accounts.User) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := currentUser(r)
			if !allowed(u) {
				writeDetail(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

var (
	requireManager         = requireRole(func(u accounts.User) bool { return u.IsManager })
	requireVerifiedManager = requireRole(func(u accounts.User) bool { return u.IsManager && u.EmailVerified })
)
