// Package email delivers verification status notifications to applicants over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/echofi/kyc-service/internal/observability/notify"
)

// SendFunc matches smtp.SendMail, injectable for tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config captures the SMTP endpoint and credentials for outbound status emails.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Send     SendFunc
}

// Sink delivers status notifications to the applicant's email address.
type Sink struct {
	addr string
	host string
	auth smtp.Auth
	from string
	send SendFunc
}

// NewSink builds an SMTP-backed notification sink.
func NewSink(cfg Config) (*Sink, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("smtp sender address is required")
	}

	port := cfg.Port
	if port <= 0 {
		port = 587
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	send := cfg.Send
	if send == nil {
		send = smtp.SendMail
	}

	return &Sink{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		host: host,
		auth: auth,
		from: from,
		send: send,
	}, nil
}

// SendStatusUpdate emails the applicant when the payload carries an address.
// Payloads without an email are skipped, not errored, so fan-out keeps working
// for submissions that omitted contact details.
func (s *Sink) SendStatusUpdate(ctx context.Context, payload notify.StatusPayload) error {
	to := strings.TrimSpace(payload.Email)
	if to == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	occurred := payload.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	msg := s.buildMessage(to, occurred, payload)
	if err := s.send(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send status email: %w", err)
	}
	return nil
}

func (s *Sink) buildMessage(to string, occurred time.Time, payload notify.StatusPayload) []byte {
	var b strings.Builder
	b.WriteString("From: ")
	b.WriteString(s.from)
	b.WriteString("\r\nTo: ")
	b.WriteString(to)
	b.WriteString("\r\nSubject: ")
	b.WriteString(subjectFor(payload.Status))
	b.WriteString("\r\nDate: ")
	b.WriteString(occurred.UTC().Format(time.RFC1123Z))
	b.WriteString("\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	name := strings.TrimSpace(payload.FullName)
	if name == "" {
		name = "applicant"
	}
	b.WriteString("Hello ")
	b.WriteString(name)
	b.WriteString(",\r\n\r\n")
	b.WriteString(bodyFor(payload))
	b.WriteString("\r\n\r\nTicket reference: ")
	b.WriteString(payload.TicketID)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func subjectFor(status string) string {
	switch status {
	case "passed":
		return "Your identity verification is complete"
	case "rejected":
		return "Your identity verification was not successful"
	case "manual_review":
		return "Your identity verification is under review"
	default:
		return "Update on your identity verification"
	}
}

func bodyFor(payload notify.StatusPayload) string {
	switch payload.Status {
	case "passed":
		return fmt.Sprintf("Your identity has been verified and your account now has tier %d access.", payload.Tier)
	case "rejected":
		if payload.Note != "" {
			return "We were unable to verify your identity. Reason: " + payload.Note
		}
		return "We were unable to verify your identity. Please submit new documents and try again."
	case "manual_review":
		return "Your submission is being reviewed by our verification team. We will notify you once a decision is made."
	case "failed":
		return "We ran into a problem processing your submission. Please try again later."
	default:
		return "The status of your verification changed to " + payload.Status + "."
	}
}

var _ notify.Sink = (*Sink)(nil)
