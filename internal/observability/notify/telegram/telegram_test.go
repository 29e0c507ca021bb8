package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/echofi/kyc-service/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when bot token missing")
	}
	if _, err := NewClient(Config{BotToken: "token"}); err == nil {
		t.Fatal("expected error when chat id missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		BotToken: "token",
		ChatID:   "-1001",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	risk := 0.42
	text := client.formatMessage(notify.StatusPayload{
		TicketID:    "ticket-1",
		SubjectID:   "subject-9",
		Status:      "manual_review",
		RiskScore:   &risk,
		Note:        "risk score in review band",
		AutoDecided: true,
		OccurredAt:  time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	})

	if !containsAll(
		text,
		[]string{"ticket-1", "subject-9", "NEEDS MANUAL REVIEW", "0.42", "risk score in review band", "2026-02-01T12:00:00Z"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageTierOnPass(t *testing.T) {
	client, err := NewClient(Config{BotToken: "token", ChatID: "-1001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := client.formatMessage(notify.StatusPayload{
		TicketID: "ticket-2",
		Status:   "passed",
		Tier:     2,
	})
	if !strings.Contains(text, "Tier: 2") {
		t.Fatalf("expected tier in passed message: %s", text)
	}

	text = client.formatMessage(notify.StatusPayload{
		TicketID: "ticket-3",
		Status:   "rejected",
		Tier:     2,
	})
	if strings.Contains(text, "Tier:") {
		t.Fatalf("did not expect tier in rejected message: %s", text)
	}
}

func TestSendStatusUpdatePostsToChat(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BotToken: "token",
		ChatID:   "-1001",
		APIBase:  server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendStatusUpdate(context.Background(), notify.StatusPayload{
		TicketID: "ticket-1",
		Status:   "passed",
		Tier:     1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["chat_id"] != "-1001" {
		t.Fatalf("expected chat id to be set, got %v", got["chat_id"])
	}
	text, ok := got["text"].(string)
	if !ok || !strings.Contains(text, "ticket-1") {
		t.Fatalf("expected ticket in message text, got %v", got["text"])
	}
}

func TestSendStatusUpdateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BotToken:   "token",
		ChatID:     "-1001",
		RetryLimit: 2,
		APIBase:    server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendStatusUpdate(context.Background(), notify.StatusPayload{TicketID: "ticket-1", Status: "passed"})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendStatusUpdateReturnsLastError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BotToken:   "token",
		ChatID:     "-1001",
		RetryLimit: 1,
		APIBase:    server.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendStatusUpdate(context.Background(), notify.StatusPayload{TicketID: "ticket-1", Status: "failed"})
	if err == nil {
		t.Fatal("expected error from rejected request")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected response body in error, got: %v", err)
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
