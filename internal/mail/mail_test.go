package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.MailConfig{Backend: "console"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Console{}, s)

	s, err = New(config.MailConfig{Backend: "smtp"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SMTP{}, s)

	_, err = New(config.MailConfig{Backend: "pigeon"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestConsoleRecords(t *testing.T) {
	c := NewConsole(zerolog.Nop())
	require.NoError(t, c.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"}))
	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "s", sent[0].Subject)
}

func TestSMTPRendersMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotMsg []byte
	s := &SMTP{
		cfg: config.MailConfig{From: "noreply@example.com", SMTPHost: "mail.local", SMTPPort: 25},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotMsg = addr, from, msg
			assert.Nil(t, a)
			assert.Equal(t, []string{"u@example.com"}, to)
			return nil
		},
	}
	err := s.Send(context.Background(), Message{
		To:      []string{"u@example.com"},
		Subject: "Réinitialisation de votre mot de passe",
		Body:    "ligne 1\nligne 2",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:25", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8")
	assert.True(t, strings.HasSuffix(msg, "ligne 1\r\nligne 2"))
}

func TestSMTPHonoursCancelledContext(t *testing.T) {
	s := &SMTP{send: func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called")
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{}), context.Canceled)
}
