// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/inventory"
)

var userTable = &table[accounts.User]{
	name: "users", alias: "usr",
	selectCols: []string{"usr.id", "usr.email", "usr.username", "usr.employee_id", "usr.department",
		"usr.first_name", "usr.last_name", "usr.password_hash", "usr.email_verified",
		"usr.email_verification_token", "usr.is_staff", "usr.is_manager", "usr.is_active",
		"usr.date_joined", "usr.last_login"},
	writeCols: []string{"email", "username", "employee_id", "department",
		"first_name", "last_name", "password_hash", "email_verified",
		"email_verification_token", "is_staff", "is_manager", "is_active",
		"date_joined", "last_login"},
	scan: func(r rowScanner, v *accounts.User) error {
		return r.Scan(&v.ID, &v.Email, &v.Username, &v.EmployeeID, &v.Department,
			&v.FirstName, &v.LastName, &v.PasswordHash, &v.EmailVerified,
			&v.EmailVerificationToken, &v.IsStaff, &v.IsManager, &v.IsActive,
			scanTime(&v.DateJoined), scanNullTime(&v.LastLogin))
	},
	values: func(v *accounts.User) []any {
		return []any{strings.TrimSpace(v.Email), v.Username, v.EmployeeID, v.Department,
			v.FirstName, v.LastName, v.PasswordHash, v.EmailVerified,
			v.EmailVerificationToken, v.IsStaff, v.IsManager, v.IsActive,
			timeValue(v.DateJoined), nullTimeValue(v.LastLogin)}
	},
	setID: func(v *accounts.User, id int64) { v.ID = id },
	getID: func(v *accounts.User) int64 { return v.ID },
	list: listSpec{
		search:   []string{"usr.email", "usr.username", "usr.employee_id"},
		filters:  map[string]string{"department": "usr.department", "is_manager": "usr.is_manager"},
		ordering: map[string]string{"email": "usr.email", "department": "usr.department", "id": "usr.id"},
		defaults: []string{"usr.email"},
	},
}

var userUniques = map[string]uniqueRule{
	"users.email":       {"email", "A user with that email already exists."},
	"users.employee_id": {"employee_id", "custom user with this employee ID already exists."},
}

func userConflict(err error) error {
	if !errors.Is(err, errConflict) {
		return err
	}
	for constraint, rule := range userUniques {
		if strings.Contains(err.Error(), "constraint failed: "+constraint) {
			return inventory.Invalid(rule.field, rule.msg)
		}
	}
	return err
}

// CreateUser inserts u. DateJoined defaults to now.
func (s *Store) CreateUser(ctx context.Context, u *accounts.User) error {
	if u.DateJoined.IsZero() {
		u.DateJoined = s.now()
	}
	if err := insert(ctx, s.db, s.sb, userTable, u); err != nil {
		return userConflict(err)
	}
	return nil
}

// UpdateUser writes every column of u.
func (s *Store) UpdateUser(ctx context.Context, u *accounts.User) error {
	if err := update(ctx, s.db, s.sb, userTable, u.ID, u); err != nil {
		return userConflict(err)
	}
	return nil
}

// UserByID returns a user.
func (s *Store) UserByID(ctx context.Context, id int64) (accounts.User, error) {
	return get(ctx, s.db, s.sb, userTable, id)
}

// UserByEmail looks a user up case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (accounts.User, error) {
	var u accounts.User
	b := userTable.from(s.sb.Select(userTable.selectCols...)).
		Where(sq.Eq{"usr.email": strings.TrimSpace(email)})
	err := one(ctx, s.db, b, func(r rowScanner) error { return userTable.scan(r, &u) })
	return u, err
}

// UserByVerificationToken returns the user holding a pending token.
func (s *Store) UserByVerificationToken(ctx context.Context, token string) (accounts.User, error) {
	var u accounts.User
	if token == "" {
		return u, errNotFound
	}
	b := userTable.from(s.sb.Select(userTable.selectCols...)).
		Where(sq.Eq{"usr.email_verification_token": token})
	err := one(ctx, s.db, b, func(r rowScanner) error { return userTable.scan(r, &u) })
	return u, err
}

// ListUsers returns users; an empty department lists everyone ordered by
// department then email.
func (s *Store) ListUsers(ctx context.Context, department string) ([]accounts.User, error) {
	b := userTable.from(s.sb.Select(userTable.selectCols...)).OrderBy("usr.department", "usr.email")
	if department != "" {
		b = b.Where(sq.Eq{"usr.department": department})
	}
	return all(ctx, s.db, b, userTable)
}

// DepartmentStats counts the accounts of a department.
func (s *Store) DepartmentStats(ctx context.Context, department string) (accounts.DepartmentStats, error) {
	st := accounts.DepartmentStats{Department: department}
	b := s.sb.Select("COUNT(*)", "COALESCE(SUM(email_verified), 0)", "COALESCE(SUM(is_manager), 0)").
		From("users").Where(sq.Eq{"department": department})
	err := one(ctx, s.db, b, func(r rowScanner) error {
		return r.Scan(&st.TotalUsers, &st.VerifiedUsers, &st.Managers)
	})
	st.UnverifiedUsers = st.TotalUsers - st.VerifiedUsers
	return st, err
}

// RevokeToken blacklists a token id until it expires.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := exec(ctx, s.db, s.sb.Insert("token_blacklist").Columns("jti", "expires_at").
		Values(jti, timeValue(expiresAt)).Suffix("ON CONFLICT(jti) DO NOTHING"))
	return err
}

// IsRevoked reports whether a token id is blacklisted.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	b := s.sb.Select("COUNT(*)").From("token_blacklist").Where(sq.Eq{"jti": jti})
	err := one(ctx, s.db, b, func(r rowScanner) error { return r.Scan(&n) })
	return n > 0, err
}

// PurgeExpiredTokens drops blacklist entries past their expiry.
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := exec(ctx, s.db, s.sb.Delete("token_blacklist").Where(sq.Lt{"expires_at": timeValue(s.now())}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
