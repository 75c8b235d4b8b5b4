// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth issues and verifies JWTs, hashes passwords and signs
// password reset tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	ErrTokenInvalid = errors.New("token is invalid or expired")
	ErrTokenType    = errors.New("token has wrong type")
	ErrTokenRevoked = errors.New("token is blacklisted")
)

// Claims is the JWT payload. The jti lives in RegisteredClaims.ID.
type Claims struct {
	UserID    int64     `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is a freshly issued access/refresh couple.
type Pair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// Blacklist records revoked refresh tokens until they expire.
type Blacklist interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Issuer signs and parses HS256 tokens.
type Issuer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  Blacklist
	now        func() time.Time
}

// NewIssuer returns an issuer. A nil blacklist disables revocation.
func NewIssuer(signingKey string, accessTTL, refreshTTL time.Duration, bl Blacklist) *Issuer {
	return &Issuer{
		key:        []byte(signingKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blacklist:  bl,
		now:        time.Now,
	}
}

// SetClock overrides the clock used for iat/exp and validation.
func (i *Issuer) SetClock(now func() time.Time) { i.now = now }

// Issue returns a new refresh token and an access token for userID.
func (i *Issuer) Issue(userID int64) (Pair, error) {
	refresh, err := i.sign(userID, RefreshToken, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	access, err := i.sign(userID, AccessToken, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Refresh: refresh, Access: access}, nil
}

func (i *Issuer) sign(userID int64, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:    userID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse verifies signature, expiry and type. Refresh tokens are also
// checked against the blacklist.
func (i *Issuer) Parse(ctx context.Context, raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.TokenType != want {
		return nil, ErrTokenType
	}
	if want == RefreshToken && i.blacklist != nil {
		revoked, err := i.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check blacklist: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (i *Issuer) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := i.Parse(ctx, refresh, RefreshToken)
	if err != nil {
		return "", err
	}
	return i.sign(claims.UserID, AccessToken, i.accessTTL)
}

// Revoke blacklists a refresh token until its expiry.
func (i *Issuer) Revoke(ctx context.Context, refresh string) error {
	claims, err := i.Parse(ctx, refresh, RefreshToken)
	if err != nil {
		return err
	}
	if i.blacklist == nil {
		return nil
	}
	return i.blacklist.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time)
}

// ExtractToken returns the bearer token of the Authorization header.
func ExtractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
