// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package accounts

import "errors"

// Errors carry the message shown to API clients.
var (
	ErrInvalidCredentials  = errors.New("Invalid credentials")
	ErrNoActiveAccount     = errors.New("No active account found with the given credentials")
	ErrTooManyAttempts     = errors.New("Too many login attempts, please retry later.")
	ErrInvalidToken        = errors.New("Invalid token")
	ErrTokenNotValid       = errors.New("Token is invalid or expired")
	ErrUnknownEmail        = errors.New("User with this email does not exist.")
	ErrResetToken          = errors.New("Token is invalid or expired")
	ErrResetLink           = errors.New("Invalid reset link")
	ErrNewPasswordRequired = errors.New("New password is required")
	ErrOldPassword         = errors.New("Incorrect old password")
	ErrVerificationToken   = errors.New("Invalid verification token")
	ErrUserNotFound        = errors.New("Utilisateur non trouvé")
	ErrOtherDepartment     = errors.New("Vous ne pouvez pas modifier les utilisateurs d'autres départements")
)
