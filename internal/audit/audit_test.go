// SPDX-License-Identifier: MIT

package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gestprep/internal/log"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))
	l.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	return l, &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLog(t *testing.T) {
	l, buf := newTestLogger()
	l.Log(Event{
		Type:     EventMovementValidated,
		Actor:    "chef@example.com",
		Action:   "validated movement",
		Resource: "movement:BMM3",
		Result:   ResultSuccess,
		Details:  map[string]string{"lines": "2"},
	})

	rec := records(t, buf)[0]
	assert.Equal(t, "audit", rec["log_type"])
	assert.Equal(t, "movement.validated", rec["event_type"])
	assert.Equal(t, "chef@example.com", rec["actor"])
	assert.Equal(t, "movement:BMM3", rec["resource"])
	assert.Equal(t, "2", rec["lines"])
	assert.Equal(t, "2025-03-01T08:00:00Z", rec["timestamp"])
	assert.NotContains(t, rec, "remote_addr")
}

func TestFromRequest(t *testing.T) {
	l, buf := newTestLogger()
	r := httptest.NewRequest("POST", "/api/auth/login/", nil)
	r.RemoteAddr = "10.1.2.3:51234"
	r.Header.Set("User-Agent", "curl/8.0")
	r = r.WithContext(log.ContextWithRequestID(r.Context(), "req-42"))

	l.LoginFailed(r, "", "invalid credentials")

	rec := records(t, buf)[0]
	assert.Equal(t, "auth.login_failed", rec["event_type"])
	assert.Equal(t, "10.1.2.3", rec["actor"], "anonymous actor falls back to client address")
	assert.Equal(t, "10.1.2.3", rec["remote_addr"])
	assert.Equal(t, "curl/8.0", rec["user_agent"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "invalid credentials", rec["reason"])
	assert.Equal(t, "/api/auth/login/", rec["resource"])
}

func TestHelpers(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/mouvements/bulk_validate/", nil)
	tests := []struct {
		name     string
		log      func(l *Logger)
		typ      EventType
		result   string
		resource string
	}{
		{"manager granted", func(l *Logger) { l.ManagerChanged(r, "it@example.com", 7, true) }, EventManagerGranted, ResultSuccess, "user:7"},
		{"manager revoked", func(l *Logger) { l.ManagerChanged(r, "it@example.com", 7, false) }, EventManagerRevoked, ResultSuccess, "user:7"},
		{"movement cancelled", func(l *Logger) { l.MovementTransition(r, "it@example.com", "BMM1", false) }, EventMovementCancelled, ResultSuccess, "movement:BMM1"},
		{"bulk all ok", func(l *Logger) { l.Bulk(r, "it@example.com", "validate", 3, 0) }, EventMovementBulk, ResultSuccess, "movements"},
		{"bulk partial", func(l *Logger) { l.Bulk(r, "it@example.com", "validate", 1, 2) }, EventMovementBulk, ResultPartial, "movements"},
		{"bulk failed", func(l *Logger) { l.Bulk(r, "it@example.com", "cancel", 0, 2) }, EventMovementBulk, ResultFailure, "movements"},
		{"password reset", func(l *Logger) { l.PasswordReset(r, "MQ") }, EventPasswordReset, ResultSuccess, "user:MQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newTestLogger()
			tt.log(l)
			rec := records(t, buf)[0]
			assert.Equal(t, string(tt.typ), rec["event_type"])
			assert.Equal(t, tt.result, rec["result"])
			assert.Equal(t, tt.resource, rec["resource"])
		})
	}
}
