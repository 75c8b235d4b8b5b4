// SPDX-License-Identifier: MIT

// Package audit writes structured audit records for account and stock
// operations. Every record answers who did what to which resource, and
// with which result.
package audit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/gestprep/internal/log"
)

// EventType names an audited operation.
type EventType string

const (
	// Authentication events
	EventLogin           EventType = "auth.login"
	EventLoginFailed     EventType = "auth.login_failed"
	EventLogout          EventType = "auth.logout"
	EventPasswordReset   EventType = "auth.password_reset"
	EventPasswordChanged EventType = "auth.password_changed"

	// Account administration events
	EventManagerGranted EventType = "accounts.manager_granted"
	EventManagerRevoked EventType = "accounts.manager_revoked"

	// Stock movement events
	EventMovementValidated EventType = "movement.validated"
	EventMovementCancelled EventType = "movement.cancelled"
	EventMovementBulk      EventType = "movement.bulk"
)

// Results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPartial = "partial"
)

// Event is one audit record.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string // email of the acting user, or the remote address
	Action     string
	Resource   string
	Result     string
	RemoteAddr string
	UserAgent  string
	RequestID  string
	Details    map[string]string
}

// Logger writes audit events.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger returns an audit logger on the global log output.
func NewLogger() *Logger {
	return New(log.WithComponent("audit"))
}

// New returns an audit logger writing through base.
func New(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("log_type", "audit").Logger(),
		now:    time.Now,
	}
}

// Log writes e. A zero timestamp is set to now.
func (l *Logger) Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	ev := l.logger.Info().
		Time("timestamp", e.Timestamp).
		Str("event_type", string(e.Type)).
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Str("result", e.Result)
	if e.RemoteAddr != "" {
		ev.Str("remote_addr", e.RemoteAddr)
	}
	if e.UserAgent != "" {
		ev.Str("user_agent", e.UserAgent)
	}
	if e.RequestID != "" {
		ev.Str(log.FieldRequestID, e.RequestID)
	}
	for k, v := range e.Details {
		ev.Str(k, v)
	}
	ev.Msg("audit event")
}

// FromRequest fills the client metadata of e from r and writes it. An
// empty actor falls back to the client address.
func (l *Logger) FromRequest(r *http.Request, e Event) {
	if e.RemoteAddr == "" {
		e.RemoteAddr = clientIP(r)
	}
	if e.UserAgent == "" {
		e.UserAgent = r.UserAgent()
	}
	if e.RequestID == "" {
		e.RequestID = log.RequestIDFromContext(r.Context())
	}
	if e.Actor == "" {
		e.Actor = e.RemoteAddr
	}
	l.Log(e)
}

// Login records a successful login.
func (l *Logger) Login(r *http.Request, email string) {
	l.FromRequest(r, Event{
		Type: EventLogin, Actor: email, Action: "logged in",
		Resource: r.URL.Path, Result: ResultSuccess,
	})
}

// LoginFailed records a rejected login attempt.
func (l *Logger) LoginFailed(r *http.Request, email, reason string) {
	l.FromRequest(r, Event{
		Type: EventLoginFailed, Actor: email, Action: "login rejected",
		Resource: r.URL.Path, Result: ResultFailure,
		Details: map[string]string{"reason": reason},
	})
}

// Logout records a revoked refresh token.
func (l *Logger) Logout(r *http.Request) {
	l.FromRequest(r, Event{Type: EventLogout, Action: "logged out", Resource: r.URL.Path, Result: ResultSuccess})
}

// PasswordReset records a password set through a reset link.
func (l *Logger) PasswordReset(r *http.Request, uid string) {
	l.FromRequest(r, Event{
		Type: EventPasswordReset, Action: "reset password",
		Resource: "user:" + uid, Result: ResultSuccess,
	})
}

// PasswordChanged records a password change by its owner.
func (l *Logger) PasswordChanged(r *http.Request, email string) {
	l.FromRequest(r, Event{
		Type: EventPasswordChanged, Actor: email, Action: "changed password",
		Resource: "user:" + email, Result: ResultSuccess,
	})
}

// ManagerChanged records a manager role grant or removal.
func (l *Logger) ManagerChanged(r *http.Request, actor string, userID int64, granted bool) {
	e := Event{
		Type: EventManagerGranted, Actor: actor, Action: "granted manager role",
		Resource: "user:" + strconv.FormatInt(userID, 10), Result: ResultSuccess,
	}
	if !granted {
		e.Type, e.Action = EventManagerRevoked, "removed manager role"
	}
	l.FromRequest(r, e)
}

// MovementTransition records a movement validated or cancelled by actor.
func (l *Logger) MovementTransition(r *http.Request, actor, numero string, validated bool) {
	e := Event{
		Type: EventMovementValidated, Actor: actor, Action: "validated movement",
		Resource: "movement:" + numero, Result: ResultSuccess,
	}
	if !validated {
		e.Type, e.Action = EventMovementCancelled, "cancelled movement"
	}
	l.FromRequest(r, e)
}

// Bulk records a bulk movement action and its counts.
func (l *Logger) Bulk(r *http.Request, actor, action string, success, failed int) {
	result := ResultSuccess
	switch {
	case success == 0 && failed > 0:
		result = ResultFailure
	case failed > 0:
		result = ResultPartial
	}
	l.FromRequest(r, Event{
		Type: EventMovementBulk, Actor: actor, Action: "bulk " + action,
		Resource: "movements", Result: result,
		Details: map[string]string{
			"success_count": strconv.Itoa(success),
			"error_count":   strconv.Itoa(failed),
		},
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
