// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package accounts

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ManuGH/gestprep/internal/inventory"
)

// User is an account. Email is the login identifier.
type User struct {
	ID                     int64      `json:"id"`
	Email                  string     `json:"email"`
	Username               string     `json:"username"`
	EmployeeID             string     `json:"employee_id"`
	Department             string     `json:"department"`
	FirstName              string     `json:"first_name"`
	LastName               string     `json:"last_name"`
	PasswordHash           string     `json:"-"`
	EmailVerified          bool       `json:"email_verified"`
	EmailVerificationToken string     `json:"-"`
	IsStaff                bool       `json:"is_staff"`
	IsManager              bool       `json:"is_manager"`
	IsActive               bool       `json:"is_active"`
	DateJoined             time.Time  `json:"date_joined"`
	LastLogin              *time.Time `json:"last_login"`
}

// FullName returns "first last", or the email when both are empty.
func (u User) FullName() string {
	if n := strings.TrimSpace(u.FirstName + " " + u.LastName); n != "" {
		return n
	}
	return u.Email
}

// ShortName returns the first name, or the local part of the email.
func (u User) ShortName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Role is "manager" for members of the Manager group, else "user".
func (u User) Role() string {
	if u.IsManager {
		return "manager"
	}
	return "user"
}

// Validate checks the profile fields shared by registration and updates.
func (u User) Validate() error {
	errs := inventory.NewValidationError()
	if strings.TrimSpace(u.Email) == "" {
		errs.Add("email", "This field may not be blank.")
	} else if _, err := mail.ParseAddress(u.Email); err != nil || !strings.Contains(u.Email, "@") {
		errs.Add("email", "Enter a valid email address.")
	}
	checkLen(errs, "username", u.Username, 150)
	checkLen(errs, "employee_id", u.EmployeeID, 10)
	checkLen(errs, "department", u.Department, 50)
	return errs.Err()
}

func checkLen(errs *inventory.ValidationError, field, v string, max int) {
	if strings.TrimSpace(v) == "" {
		errs.Add(field, "This field may not be blank.")
		return
	}
	if utf8.RuneCountInString(v) > max {
		errs.Add(field, "Ensure this field has no more than "+strconv.Itoa(max)+" characters.")
	}
}
