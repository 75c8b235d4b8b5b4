// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mail sends account emails (password reset, verification).
package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/rs/zerolog"
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// New returns the sender selected by cfg.Backend.
func New(cfg config.MailConfig, logger zerolog.Logger) (Sender, error) {
	switch cfg.Backend {
	case "", "console":
		return &Console{logger: logger}, nil
	case "smtp":
		return &SMTP{cfg: cfg, send: smtp.SendMail}, nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

// Console writes messages to the log instead of sending them.
type Console struct {
	logger zerolog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsole returns a console sender.
func NewConsole(logger zerolog.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Send(_ context.Context, m Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, m)
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "mail.console").
		Strs("to", m.To).
		Str("subject", m.Subject).
		Str("body", m.Body).
		Msg("email")
	return nil
}

// Sent returns a copy of the messages sent so far.
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// SMTP sends through an SMTP relay with PLAIN auth when a username is set.
type SMTP struct {
	cfg  config.MailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTP) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := m.From
	if from == "" {
		from = s.cfg.From
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	var a smtp.Auth
	if s.cfg.Username != "" {
		a = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	if err := s.send(addr, a, from, m.To, render(from, m)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func render(from string, m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(m.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}
