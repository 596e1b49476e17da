package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/updownhq/updown/internal/crypto"
)

// WebhookSender delivers alerts as signed JSON POSTs to an operator-run
// endpoint. Receivers check the X-Updown-Signature header against the
// shared secret before trusting the payload.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a WebhookSender posting to url, signing each
// delivery with secret.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: crypto.NewWebhookSigner(secret),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert as its JSON encoding plus signature headers.
func (w *WebhookSender) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("webhook: marshal alert: %w", err)
	}

	ts, sig := w.signer.Sign(body)
	headers := map[string]string{
		"X-Updown-Timestamp": ts,
		"X-Updown-Signature": sig,
	}
	if err := post(ctx, w.client, w.url, body, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
