// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const resetSalt = "gestprep.auth.password_reset"

// ErrBadUID is returned when a reset link carries an undecodable uid.
var ErrBadUID = errors.New("invalid uid")

// ResetTokens signs password reset tokens. A token binds the user id, the
// current password hash and the issue time, so any password change voids it.
type ResetTokens struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// NewResetTokens returns a signer valid for timeout.
func NewResetTokens(secret string, timeout time.Duration) *ResetTokens {
	return &ResetTokens{secret: []byte(secret), timeout: timeout, now: time.Now}
}

// SetClock overrides the clock.
func (r *ResetTokens) SetClock(now func() time.Time) { r.now = now }

// Make returns "<ts36>-<mac>" for the user.
func (r *ResetTokens) Make(userID int64, passwordHash string) string {
	return r.make(userID, passwordHash, r.now().Unix())
}

func (r *ResetTokens) make(userID int64, passwordHash string, ts int64) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(resetSalt))
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	mac.Write([]byte(passwordHash))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return strconv.FormatInt(ts, 36) + "-" + hex.EncodeToString(mac.Sum(nil))[:32]
}

// Check reports whether token is valid and unexpired for the user.
func (r *ResetTokens) Check(userID int64, passwordHash, token string) bool {
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok {
		return false
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return false
	}
	if !hmac.Equal([]byte(r.make(userID, passwordHash, ts)), []byte(token)) {
		return false
	}
	age := r.now().Sub(time.Unix(ts, 0))
	return age >= 0 && age <= r.timeout
}

// EncodeUID encodes a user id for a reset URL.
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uid string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uid, "="))
	if err != nil {
		return 0, ErrBadUID
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrBadUID
	}
	return id, nil
}
