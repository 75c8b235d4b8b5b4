// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/api/middleware"
	"github.com/ManuGH/gestprep/internal/inventory"
)

const msgRequired = "This field is required."

func (s *Server) routeAccounts(r chi.Router) {
	r.Get("/csrf/", handleCSRF)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthRateLimit())
		r.Post("/register/", s.handleRegister)
		r.Post("/login/", s.handleLogin)
		r.Post("/password/reset/", s.handleRequestReset)
		r.Post("/verify-email/resend/", s.handleResendVerification)
	})
	r.Post("/token/refresh/", s.handleRefresh)
	r.Post("/password/reset/{uid}/{token}/verify/", s.handleVerifyReset)
	r.Post("/password/reset/{uid}/{token}/confirm/", s.handleConfirmReset)
	r.Get("/verify-email/{token}/", s.handleVerifyEmail)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/logout/", s.handleLogout)
		r.Get("/token/verify/", s.handleVerifyToken)
		r.Post("/password/change/", s.handleChangePassword)
		r.Get("/profile/", s.handleProfile)
		r.Put("/profile/update/", s.handleUpdateProfile)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireVerifiedManager)
		r.Get("/department/users/", s.handleDepartmentUsers)
		r.Post("/department/assign-manager/{id}/", s.handleSetManager(true))
		r.Post("/department/remove-manager/{id}/", s.handleSetManager(false))
		r.Get("/department/stats/", s.handleDepartmentStats)
	})
	r.With(requireManager).Get("/users/", s.handleListUsers)
}

type message struct {
	Message string `json:"message"`
}

// userView is the registration payload of an account.
type userView struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
}

type profileView struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	EmployeeID    string `json:"employee_id"`
	Department    string `json:"department"`
	EmailVerified bool   `json:"email_verified"`
}

func newProfileView(u accounts.User) profileView {
	return profileView{
		ID: u.ID, Email: u.Email, Username: u.Username,
		EmployeeID: u.EmployeeID, Department: u.Department, EmailVerified: u.EmailVerified,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentials) check() error {
	errs := inventory.NewValidationError()
	if strings.TrimSpace(c.Email) == "" {
		errs.Add("email", msgRequired)
	}
	if c.Password == "" {
		errs.Add("password", msgRequired)
	}
	return errs.Err()
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// handleCSRF hands out a csrftoken cookie for browser clients.
func handleCSRF(w http.ResponseWriter, _ *http.Request) {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	http.SetCookie(w, &http.Cookie{
		Name:     "csrftoken",
		Value:    token,
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		SameSite: http.SameSiteLaxMode,
	})
	writeDetail(w, http.StatusOK, "CSRF cookie set")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.accounts.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u := reg.User
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "User registered successfully. Please check your email to verify your account.",
		"user":             userView{ID: u.ID, Email: u.Email, Username: u.Username, EmployeeID: u.EmployeeID, Department: u.Department},
		"verification_url": reg.VerificationURL,
		"debug_token":      reg.DebugToken,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.accounts.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) || errors.Is(err, accounts.ErrTooManyAttempts) {
			s.audit.LoginFailed(r, c.Email, err.Error())
		}
		s.writeError(w, r, err)
		return
	}
	s.audit.Login(r, res.User.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user": map[string]any{
			"email":          res.User.Email,
			"department":     res.User.Department,
			"email_verified": res.User.EmailVerified,
			"is_manager":     res.User.IsManager,
		},
		"tokens": map[string]string{
			"refresh": res.Tokens.Refresh,
			"access":  res.Tokens.Access,
		},
	})
}

// handleObtainToken is the plain token pair endpoint.
func (s *Server) handleObtainToken(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := c.check(); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.accounts.Authenticate(r.Context(), c.Email, c.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		err = accounts.ErrNoActiveAccount
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pair, err := s.accounts.IssueTokens(r.Context(), &u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refresh": pair.Refresh, "access": pair.Access})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Refresh == "" {
		s.writeError(w, r, inventory.Invalid("refresh", msgRequired))
		return
	}
	access, err := s.accounts.Refresh(r.Context(), req.Refresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, accounts.ErrInvalidToken)
		return
	}
	if err := s.accounts.Logout(r.Context(), req.Refresh); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit.Logout(r)
	writeJSON(w, http.StatusOK, message{"Successfully logged out"})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        newProfileView(u),
		"is_manager":  u.IsManager,
		"token_valid": true,
	})
}

func (s *Server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Password reset email has been sent."})
}

func (s *Server) handleVerifyReset(w http.ResponseWriter, r *http.Request) {
	err := s.accounts.VerifyResetToken(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Token is valid"})
}

func (s *Server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.accounts.ResetPassword(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "token"), req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit.PasswordReset(r, chi.URLParam(r, "uid"))
	writeJSON(w, http.StatusOK, message{"Password has been reset successfully"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.ChangePassword(r.Context(), u.ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit.PasswordChanged(r, u.Email)
	writeJSON(w, http.StatusOK, message{"Password changed successfully"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	fresh, err := s.accounts.Profile(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(fresh))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var p accounts.ProfileUpdate
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.accounts.UpdateProfile(r.Context(), u.ID, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Profile updated successfully"})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.accounts.ResendVerification(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.AlreadyVerified {
		writeJSON(w, http.StatusOK, message{"Email déjà vérifié"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":          "Email de vérification renvoyé",
		"debug_token":      res.DebugToken,
		"verification_url": res.VerificationURL,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Email verified successfully"})
}

func (s *Server) handleDepartmentUsers(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	users, err := s.accounts.DepartmentUsers(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]profileView, 0, len(users))
	for _, du := range users {
		out = append(out, newProfileView(du))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetManager(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := currentUser(r)
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, accounts.ErrUserNotFound)
			return
		}
		var msg string
		if grant {
			msg, err = s.accounts.AssignManager(r.Context(), actor, id)
		} else {
			msg, err = s.accounts.RemoveManager(r.Context(), actor, id)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit.ManagerChanged(r, actor.Email, id, grant)
		writeJSON(w, http.StatusOK, message{msg})
	}
}

func (s *Server) handleDepartmentStats(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	stats, err := s.accounts.DepartmentStats(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	dir, err := s.accounts.ListAllUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

// handleUserMe serves the frontend's session summary.
func (s *Server) handleUserMe(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	role := "Utilisateur"
	if u.IsStaff {
		role = "Administrateur"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"is_staff":   u.IsStaff,
		"avatar":     "/images/placeholder.png",
		"role":       role,
		"name":       name,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	out := map[string]string{"users-me": absoluteURL(r, "/api/users/me/")}
	for _, name := range []string{"sites", "unites", "trains", "equipements", "articles"} {
		out[name] = absoluteURL(r, "/api/"+name+"/")
	}
	writeJSON(w, http.StatusOK, out)
}
