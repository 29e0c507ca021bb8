// Package telegram delivers verification status notifications to an operator
// chat through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echofi/kyc-service/internal/observability/notify"
)

const defaultAPIBase = "https://api.telegram.org"

// Config captures the subset of Bot API behaviour we need.
type Config struct {
	BotToken   string
	ChatID     string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// APIBase overrides the Bot API host, for tests.
	APIBase string
}

// Client delivers status notifications to a Telegram chat.
type Client struct {
	sendURL    string
	chatID     string
	username   string
	retryLimit int
	client     *http.Client
}

// NewClient builds a Telegram Bot API client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	chatID := strings.TrimSpace(cfg.ChatID)
	if chatID == "" {
		return nil, errors.New("telegram chat id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = defaultAPIBase
	}

	return &Client{
		sendURL:    strings.TrimRight(base, "/") + "/bot" + token + "/sendMessage",
		chatID:     chatID,
		username:   fallbackString(strings.TrimSpace(cfg.Username), "kyc-service"),
		retryLimit: retries,
		client:     hc,
	}, nil
}

// SendStatusUpdate posts a formatted message to the configured chat.
func (c *Client) SendStatusUpdate(ctx context.Context, payload notify.StatusPayload) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": c.chatID,
		"text":    c.formatMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("encode telegram payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (c *Client) formatMessage(payload notify.StatusPayload) string {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	text.WriteString("Verification update")
	if payload.TicketID != "" {
		text.WriteString(" [")
		text.WriteString(payload.TicketID)
		text.WriteByte(']')
	}
	text.WriteByte('\n')

	appendField(&text, "Status", statusLabel(payload.Status))
	if payload.Status == "passed" {
		appendField(&text, "Tier", fmt.Sprintf("%d", payload.Tier))
	}
	appendField(&text, "Subject", payload.SubjectID)
	if payload.RiskScore != nil {
		appendField(&text, "Risk score", fmt.Sprintf("%.2f", *payload.RiskScore))
	}
	if payload.AutoDecided {
		appendField(&text, "Decided", "automatically")
	} else {
		appendField(&text, "Decided", "by reviewer")
	}
	appendField(&text, "Note", payload.Note)

	text.WriteString("Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))
	return text.String()
}

func statusLabel(status string) string {
	switch status {
	case "passed":
		return "PASSED"
	case "rejected":
		return "REJECTED"
	case "manual_review":
		return "NEEDS MANUAL REVIEW"
	case "failed":
		return "PROCESSING FAILED"
	default:
		return strings.ToUpper(status)
	}
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}

	return drainSuccess(resp)
}

func drainSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain telegram response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain telegram response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("read telegram error response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("read telegram error response: %w", readErr)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return fmt.Errorf("telegram api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}
