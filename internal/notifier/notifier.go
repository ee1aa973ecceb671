// Package notifier is the email boundary spec.md §1 scopes as an external
// collaborator specified by interface only.
package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Notifier sends an operator-facing email. The core never inspects delivery
// internals beyond the error return.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTP implements Notifier over net/smtp. No SMTP client library appears
// anywhere in the example pack, so this stays on the standard library.
type SMTP struct {
	host, port, user, password string
	to                         []string
}

// NewSMTP builds an SMTP notifier. to is the fixed recipient list (typically
// a shift-lead distribution address).
func NewSMTP(host, port, user, password string, to []string) *SMTP {
	return &SMTP{host: host, port: port, user: user, password: password, to: to}
}

func (s *SMTP) Send(ctx context.Context, subject, body string) error {
	if len(s.to) == 0 {
		return nil
	}
	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.user, strings.Join(s.to, ","), subject, body)
	addr := s.host + ":" + s.port
	return smtp.SendMail(addr, auth, s.user, s.to, []byte(msg))
}

var _ Notifier = (*SMTP)(nil)

// Memory is a test double recording every send.
type Memory struct {
	Sent []struct{ Subject, Body string }
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Send(ctx context.Context, subject, body string) error {
	m.Sent = append(m.Sent, struct{ Subject, Body string }{subject, body})
	return nil
}

var _ Notifier = (*Memory)(nil)
