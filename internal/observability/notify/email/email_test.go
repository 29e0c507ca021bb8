package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/echofi/kyc-service/internal/observability/notify"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureSink(t *testing.T) (*Sink, *[]sentMail) {
	t.Helper()

	var sent []sentMail
	sink, err := NewSink(Config{
		Host:     "smtp.example.com",
		Port:     2525,
		Username: "notifier",
		Password: "secret",
		From:     "kyc@example.com",
		Send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sink, &sent
}

func TestNewSinkValidation(t *testing.T) {
	if _, err := NewSink(Config{From: "kyc@example.com"}); err == nil {
		t.Fatal("expected error when host missing")
	}
	if _, err := NewSink(Config{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error when sender missing")
	}
}

func TestSendStatusUpdateDeliversToApplicant(t *testing.T) {
	sink, sent := captureSink(t)

	err := sink.SendStatusUpdate(context.Background(), notify.StatusPayload{
		TicketID:   "ticket-1",
		FullName:   "Jane Smith",
		Email:      "jane@example.com",
		Status:     "passed",
		Tier:       2,
		OccurredAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	mail := (*sent)[0]
	if mail.addr != "smtp.example.com:2525" {
		t.Fatalf("unexpected smtp address %q", mail.addr)
	}
	if mail.from != "kyc@example.com" {
		t.Fatalf("unexpected sender %q", mail.from)
	}
	if len(mail.to) != 1 || mail.to[0] != "jane@example.com" {
		t.Fatalf("unexpected recipients %v", mail.to)
	}
	for _, want := range []string{
		"Subject: Your identity verification is complete",
		"Hello Jane Smith",
		"tier 2 access",
		"Ticket reference: ticket-1",
	} {
		if !strings.Contains(mail.msg, want) {
			t.Fatalf("message missing %q:\n%s", want, mail.msg)
		}
	}
}

func TestSendStatusUpdateSkipsWithoutEmail(t *testing.T) {
	sink, sent := captureSink(t)

	err := sink.SendStatusUpdate(context.Background(), notify.StatusPayload{
		TicketID: "ticket-1",
		Status:   "rejected",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(*sent))
	}
}

func TestSendStatusUpdateRejectionIncludesNote(t *testing.T) {
	sink, sent := captureSink(t)

	err := sink.SendStatusUpdate(context.Background(), notify.StatusPayload{
		TicketID: "ticket-1",
		Email:    "jane@example.com",
		Status:   "rejected",
		Note:     "document expired",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	if !strings.Contains((*sent)[0].msg, "Reason: document expired") {
		t.Fatalf("expected rejection reason in body:\n%s", (*sent)[0].msg)
	}
}
