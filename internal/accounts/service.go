// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/gestprep/internal/auth"
	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/mail"
	"github.com/ManuGH/gestprep/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository persists users.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id int64) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByVerificationToken(ctx context.Context, token string) (User, error)
	ListUsers(ctx context.Context, department string) ([]User, error)
	DepartmentStats(ctx context.Context, department string) (DepartmentStats, error)
}

// DepartmentStats summarizes the accounts of one department.
type DepartmentStats struct {
	Department      string `json:"department"`
	TotalUsers      int    `json:"total_users"`
	VerifiedUsers   int    `json:"verified_users"`
	Managers        int    `json:"managers"`
	UnverifiedUsers int    `json:"unverified_users"`
}

// Options tunes the account flows.
type Options struct {
	ManagerDepartment  string
	FrontendURL        string
	MinPasswordLength  int
	LoginRatePerMinute int
	MailFrom           string
}

// Service implements registration, login and account management.
type Service struct {
	repo    Repository
	tokens  *auth.Issuer
	resets  *auth.ResetTokens
	mailer  mail.Sender
	opts    Options
	limiter *throttle
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService wires a Service.
func NewService(repo Repository, tokens *auth.Issuer, resets *auth.ResetTokens, mailer mail.Sender, opts Options) *Service {
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 8
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &Service{
		repo:    repo,
		tokens:  tokens,
		resets:  resets,
		mailer:  mailer,
		opts:    opts,
		limiter: newThrottle(opts.LoginRatePerMinute),
		logger:  xglog.WithComponent("accounts"),
		now:     time.Now,
	}
}

// Tokens exposes the JWT issuer.
func (s *Service) Tokens() *auth.Issuer { return s.tokens }

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
}

// Registration is returned after a successful registration.
type Registration struct {
	User            User
	VerificationURL string
	DebugToken      string
}

// Register creates an account. Members of the manager department are
// promoted and verified immediately.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	u := User{
		Email:      strings.TrimSpace(in.Email),
		Username:   in.Username,
		EmployeeID: in.EmployeeID,
		Department: in.Department,
		IsActive:   true,
	}
	errs := inventory.NewValidationError()
	var ve *inventory.ValidationError
	if err := u.Validate(); errors.As(err, &ve) {
		errs.Merge(ve)
	}
	if in.Password == "" {
		errs.Add("password", "This field may not be blank.")
	}
	if err := errs.Err(); err != nil {
		return Registration{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Registration{}, err
	}
	u.PasswordHash = hash
	if s.isManagerDepartment(u.Department) {
		u.IsManager = true
		u.EmailVerified = true
	}
	u.EmailVerificationToken = uuid.NewString()
	if err := s.repo.CreateUser(ctx, &u); err != nil {
		return Registration{}, err
	}

	url := s.verificationURL(u.EmailVerificationToken)
	s.logger.Info().
		Str(xglog.FieldEvent, "account.registered").
		Int64(xglog.FieldUserID, u.ID).
		Str("department", u.Department).
		Bool("manager", u.IsManager).
		Msg("user registered")
	if !u.EmailVerified {
		s.sendVerification(ctx, u, url)
	}
	return Registration{User: u, VerificationURL: url, DebugToken: u.EmailVerificationToken}, nil
}

// Authenticate checks credentials of an active account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	if !s.limiter.allow(email) {
		s.logger.Warn().Str(xglog.FieldEvent, "account.login_throttled").Msg("login throttled")
		return User{}, ErrTooManyAttempts
	}
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, inventory.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// IssueTokens returns a token pair for u and records the login time.
func (s *Service) IssueTokens(ctx context.Context, u *User) (auth.Pair, error) {
	pair, err := s.tokens.Issue(u.ID)
	if err != nil {
		return auth.Pair{}, err
	}
	now := s.now().UTC()
	u.LastLogin = &now
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return auth.Pair{}, err
	}
	return pair, nil
}

// LoginResult is returned by Login.
type LoginResult struct {
	User   User
	Tokens auth.Pair
}

// Login authenticates and issues tokens. Members of the manager department
// are verified and promoted on every login.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.Authenticate(ctx, email, password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		metrics.IncLogin("invalid")
		s.logger.Info().Str(xglog.FieldEvent, "account.login_failed").Msg("invalid credentials")
		return LoginResult{}, err
	case errors.Is(err, ErrTooManyAttempts):
		metrics.IncLogin("throttled")
		return LoginResult{}, err
	case err != nil:
		return LoginResult{}, err
	}
	if s.isManagerDepartment(u.Department) {
		u.EmailVerified = true
		u.IsManager = true
	}
	pair, err := s.IssueTokens(ctx, &u)
	if err != nil {
		return LoginResult{}, err
	}
	metrics.IncLogin("success")
	s.logger.Info().
		Str(xglog.FieldEvent, "account.login").
		Int64(xglog.FieldUserID, u.ID).
		Msg("user logged in")
	return LoginResult{User: u, Tokens: pair}, nil
}

// Logout blacklists the refresh token.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return ErrInvalidToken
	}
	if err := s.tokens.Revoke(ctx, refresh); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenType) || errors.Is(err, auth.ErrTokenRevoked) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	access, err := s.tokens.Refresh(ctx, refresh)
	if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenType) || errors.Is(err, auth.ErrTokenRevoked) {
		return "", ErrTokenNotValid
	}
	return access, err
}

// UserForToken resolves the active user behind an access token.
func (s *Service) UserForToken(ctx context.Context, access string) (User, auth.Principal, error) {
	claims, err := s.tokens.Parse(ctx, access, auth.AccessToken)
	if err != nil {
		return User{}, auth.Principal{}, ErrTokenNotValid
	}
	u, err := s.repo.UserByID(ctx, claims.UserID)
	if errors.Is(err, inventory.ErrNotFound) || (err == nil && !u.IsActive) {
		return User{}, auth.Principal{}, ErrTokenNotValid
	}
	if err != nil {
		return User{}, auth.Principal{}, err
	}
	return u, auth.Principal{UserID: u.ID, TokenID: claims.ID}, nil
}

// RequestPasswordReset mails a reset link to the account owner.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, inventory.ErrNotFound) {
		return ErrUnknownEmail
	}
	if err != nil {
		return err
	}
	token := s.resets.Make(u.ID, u.PasswordHash)
	link := fmt.Sprintf("%s/reset-password/%s/%s", s.opts.FrontendURL, auth.EncodeUID(u.ID), token)
	err = s.mailer.Send(ctx, mail.Message{
		From:    s.opts.MailFrom,
		To:      []string{u.Email},
		Subject: "Réinitialisation de votre mot de passe",
		Body:    "Cliquez sur ce lien pour réinitialiser votre mot de passe : " + link,
	})
	if err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	s.logger.Info().Str(xglog.FieldEvent, "account.reset_requested").Int64(xglog.FieldUserID, u.ID).Msg("password reset requested")
	return nil
}

func (s *Service) resetUser(ctx context.Context, uid, token string) (User, error) {
	id, err := auth.DecodeUID(uid)
	if err != nil {
		return User{}, ErrResetLink
	}
	u, err := s.repo.UserByID(ctx, id)
	if errors.Is(err, inventory.ErrNotFound) {
		return User{}, ErrResetLink
	}
	if err != nil {
		return User{}, err
	}
	if !s.resets.Check(u.ID, u.PasswordHash, token) {
		return User{}, ErrResetToken
	}
	return u, nil
}

// VerifyResetToken checks a reset link without consuming it.
func (s *Service) VerifyResetToken(ctx context.Context, uid, token string) error {
	_, err := s.resetUser(ctx, uid, token)
	return err
}

// ResetPassword sets a new password through a reset link. The link is
// void afterwards because the password hash changed.
func (s *Service) ResetPassword(ctx context.Context, uid, token, newPassword string) error {
	u, err := s.resetUser(ctx, uid, token)
	if err != nil {
		return err
	}
	if newPassword == "" {
		return ErrNewPasswordRequired
	}
	return s.setPassword(ctx, &u, newPassword)
}

// ChangePassword replaces the password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	errs := inventory.NewValidationError()
	if oldPassword == "" {
		errs.Add("old_password", "This field is required.")
	}
	if newPassword == "" {
		errs.Add("new_password", "This field is required.")
	} else if len([]rune(newPassword)) < s.opts.MinPasswordLength {
		errs.Add("new_password", fmt.Sprintf("Ensure this field has at least %d characters.", s.opts.MinPasswordLength))
	}
	if err := errs.Err(); err != nil {
		return err
	}
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return ErrOldPassword
	}
	return s.setPassword(ctx, &u, newPassword)
}

func (s *Service) setPassword(ctx context.Context, u *User, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.logger.Info().Str(xglog.FieldEvent, "account.password_changed").Int64(xglog.FieldUserID, u.ID).Msg("password changed")
	return nil
}

// Profile returns the user.
func (s *Service) Profile(ctx context.Context, userID int64) (User, error) {
	return s.repo.UserByID(ctx, userID)
}

// ProfileUpdate is a partial profile update; nil fields are left alone.
type ProfileUpdate struct {
	Username   *string `json:"username"`
	EmployeeID *string `json:"employee_id"`
	Department *string `json:"department"`
}

// UpdateProfile applies p to the user.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, p ProfileUpdate) (User, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.EmployeeID != nil {
		u.EmployeeID = *p.EmployeeID
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateUser(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Resend is the outcome of ResendVerification.
type Resend struct {
	AlreadyVerified bool
	DebugToken      string
	VerificationURL string
}

// ResendVerification issues a new verification token.
func (s *Service) ResendVerification(ctx context.Context, email string) (Resend, error) {
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, inventory.ErrNotFound) {
		return Resend{}, ErrUserNotFound
	}
	if err != nil {
		return Resend{}, err
	}
	if u.EmailVerified {
		return Resend{AlreadyVerified: true}, nil
	}
	u.EmailVerificationToken = uuid.NewString()
	if err := s.repo.UpdateUser(ctx, &u); err != nil {
		return Resend{}, err
	}
	url := s.verificationURL(u.EmailVerificationToken)
	s.sendVerification(ctx, u, url)
	return Resend{DebugToken: u.EmailVerificationToken, VerificationURL: url}, nil
}

// VerifyEmail marks the owner of token verified and clears the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	u, err := s.repo.UserByVerificationToken(ctx, token)
	if errors.Is(err, inventory.ErrNotFound) {
		return ErrVerificationToken
	}
	if err != nil {
		return err
	}
	u.EmailVerified = true
	u.EmailVerificationToken = ""
	if err := s.repo.UpdateUser(ctx, &u); err != nil {
		return err
	}
	s.logger.Info().Str(xglog.FieldEvent, "account.email_verified").Int64(xglog.FieldUserID, u.ID).Msg("email verified")
	return nil
}

// DepartmentUsers lists the accounts of the actor's department.
func (s *Service) DepartmentUsers(ctx context.Context, actor User) ([]User, error) {
	return s.repo.ListUsers(ctx, actor.Department)
}

// DepartmentStats counts the accounts of the actor's department.
func (s *Service) DepartmentStats(ctx context.Context, actor User) (DepartmentStats, error) {
	return s.repo.DepartmentStats(ctx, actor.Department)
}

// AssignManager grants the Manager role to a user of the actor's department.
func (s *Service) AssignManager(ctx context.Context, actor User, userID int64) (string, error) {
	u, err := s.setManager(ctx, actor, userID, true)
	if err != nil {
		return "", err
	}
	return "Rôle de manager assigné à " + u.Email, nil
}

// RemoveManager revokes the Manager role.
func (s *Service) RemoveManager(ctx context.Context, actor User, userID int64) (string, error) {
	u, err := s.setManager(ctx, actor, userID, false)
	if err != nil {
		return "", err
	}
	return "Rôle de manager retiré de " + u.Email, nil
}

func (s *Service) setManager(ctx context.Context, actor User, userID int64, manager bool) (User, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if errors.Is(err, inventory.ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.Department != actor.Department {
		return User{}, ErrOtherDepartment
	}
	u.IsManager = manager
	if err := s.repo.UpdateUser(ctx, &u); err != nil {
		return User{}, err
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "account.manager_changed").
		Int64(xglog.FieldUserID, u.ID).
		Int64("actor_id", actor.ID).
		Bool("manager", manager).
		Msg("manager role changed")
	return u, nil
}

// DirectoryEntry is one row of the all-users listing.
type DirectoryEntry struct {
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
	Verified   string `json:"verified"`
}

// Directory lists every account.
type Directory struct {
	TotalUsers int              `json:"total_users"`
	Users      []DirectoryEntry `json:"users"`
}

// ListAllUsers returns every account ordered by department then email.
func (s *Service) ListAllUsers(ctx context.Context) (Directory, error) {
	users, err := s.repo.ListUsers(ctx, "")
	if err != nil {
		return Directory{}, err
	}
	d := Directory{TotalUsers: len(users), Users: make([]DirectoryEntry, 0, len(users))}
	for _, u := range users {
		e := DirectoryEntry{Email: u.Email, Department: u.Department, Role: "Employee", Verified: "Non"}
		if u.IsManager {
			e.Role = "Manager"
		}
		if u.EmailVerified {
			e.Verified = "Oui"
		}
		d.Users = append(d.Users, e)
	}
	return d, nil
}

func (s *Service) isManagerDepartment(dept string) bool {
	return s.opts.ManagerDepartment != "" && dept == s.opts.ManagerDepartment
}

func (s *Service) verificationURL(token string) string {
	return s.opts.FrontendURL + "/verify-email/" + token
}

func (s *Service) sendVerification(ctx context.Context, u User, url string) {
	err := s.mailer.Send(ctx, mail.Message{
		From:    s.opts.MailFrom,
		To:      []string{u.Email},
		Subject: "Vérification de votre adresse email",
		Body:    "Cliquez sur ce lien pour vérifier votre adresse email : " + url,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "account.verification_mail_failed").Int64(xglog.FieldUserID, u.ID).Msg("verification email not sent")
	}
}
