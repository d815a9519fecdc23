package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

const (
	webhookMaxAttempts = 3
	webhookBackoffBase = 500 * time.Millisecond
)

// WebhookProvider POSTs events as JSON to the subscription URL.
// Payloads are signed with HMAC-SHA256 in X-Signature when the
// destination carries a secret. Transport errors and 5xx responses are
// retried with exponential backoff; 4xx responses are permanent.
type WebhookProvider struct {
	log    *logger.Logger
	client *xhttp.Client
}

func NewWebhookProvider(log *logger.Logger, client *xhttp.Client) drepo.ChannelProvider {
	return &WebhookProvider{log: log, client: client}
}

func (p *WebhookProvider) Type() models.SubscriberType { return models.SubscriberWebhook }

type webhookEventPayload struct {
	Kind      string                 `json:"kind"`
	ID        string                 `json:"id"`
	Category  models.EventCategory   `json:"category"`
	Priority  string                 `json:"priority"`
	Symbol    string                 `json:"symbol"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
}

type webhookSummaryPayload struct {
	Kind       string                       `json:"kind"`
	Total      int                          `json:"total"`
	ByCategory map[models.EventCategory]int `json:"by_category"`
	TopEvents  []webhookEventPayload        `json:"top_events"`
}

func (p *WebhookProvider) SendEvent(ctx context.Context, sub *models.Subscription, e *models.AIEvent) error {
	return p.post(ctx, sub, eventPayload(e))
}

func (p *WebhookProvider) SendSummary(ctx context.Context, sub *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error {
	payload := webhookSummaryPayload{
		Kind:       "summary",
		Total:      total,
		ByCategory: byCategory,
		TopEvents:  make([]webhookEventPayload, 0, len(top)),
	}
	for _, e := range top {
		payload.TopEvents = append(payload.TopEvents, eventPayload(e))
	}
	return p.post(ctx, sub, payload)
}

func eventPayload(e *models.AIEvent) webhookEventPayload {
	return webhookEventPayload{
		Kind:      "event",
		ID:        e.ID,
		Category:  e.Category,
		Priority:  e.Priority.String(),
		Symbol:    e.Symbol,
		Title:     e.Title,
		Content:   e.Content,
		Metadata:  e.Metadata,
		Source:    e.Source,
		Timestamp: e.Timestamp,
	}
}

// post signs and delivers the payload, retrying retryable failures.
func (p *WebhookProvider) post(ctx context.Context, sub *models.Subscription, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range sub.Destination.Headers {
		headers[k] = v
	}
	if sub.Destination.Secret != "" {
		headers["X-Signature"] = Sign(sub.Destination.Secret, body)
	}

	var lastErr error
	for attempt := 0; attempt < webhookMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := webhookBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.client.SendRequest(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     sub.Destination.URL,
			Headers: headers,
			Body:    body,
		})
		if err != nil {
			lastErr = err
			p.log.Warn("webhook delivery attempt failed",
				logger.String("subscription", sub.ID),
				logger.Int("attempt", attempt+1),
				logger.Error(err))
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
			p.log.Warn("webhook delivery attempt failed",
				logger.String("subscription", sub.ID),
				logger.Int("attempt", attempt+1),
				logger.Int("status", resp.StatusCode))
		default:
			// 4xx means the receiver rejected the payload; retrying
			// the same bytes cannot succeed.
			return fmt.Errorf("webhook rejected with %d: %s", resp.StatusCode, respBody)
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", webhookMaxAttempts, lastErr)
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
