package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ricirt/missedmail/internal/domain"
)

// WebhookRequest is the JSON body posted to a mail relay webhook.
type WebhookRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// WebhookTransport hands digests to an HTTP mail relay.
// The URL is injected from config so tests can point to a local server.
type WebhookTransport struct {
	url        string
	httpClient *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *WebhookTransport) Name() string { return "webhook" }

// Send expects any 2xx response; the body is ignored.
func (t *WebhookTransport) Send(ctx context.Context, email *domain.ComposedEmail) error {
	body, err := json.Marshal(WebhookRequest{
		To:      email.To,
		From:    email.From,
		ReplyTo: email.ReplyTo,
		Subject: email.Subject,
		Text:    email.TextBody,
		HTML:    email.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected relay status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that WebhookTransport implements Transport
var _ Transport = (*WebhookTransport)(nil)
