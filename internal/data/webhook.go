package data

import (
	"context"
	"fmt"
	"net/http"

	"TradeSentry/internal/conf"
	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-resty/resty/v2"
)

// WebhookNotifier implements biz.WebhookService by POSTing breaker events as
// JSON to a configured URL. Delivery is best effort: a down receiver must
// never block a halt or a reset.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *log.Helper
}

// NewWebhookNotifier creates a new webhook notifier. With no URL configured
// every notify call is a silent no-op.
func NewWebhookNotifier(c *conf.Webhook, logger log.Logger) *WebhookNotifier {
	client := resty.New()
	if c != nil && c.Timeout != nil {
		client.SetTimeout(c.Timeout.AsDuration())
	}
	client.SetRetryCount(2)

	url := ""
	if c != nil {
		url = c.URL
	}

	return &WebhookNotifier{
		client: client,
		url:    url,
		logger: log.NewHelper(logger),
	}
}

// NotifyBreakerTriggered sends notification when the circuit breaker fires.
func (w *WebhookNotifier) NotifyBreakerTriggered(ctx context.Context, event *model.BreakerTriggeredEvent) error {
	return w.post(ctx, "breaker.triggered", event)
}

// NotifyBreakerResumed sends notification when the breaker expires or is
// manually reset.
func (w *WebhookNotifier) NotifyBreakerResumed(ctx context.Context, event *model.BreakerResumedEvent) error {
	return w.post(ctx, "breaker.resumed", event)
}

func (w *WebhookNotifier) post(ctx context.Context, eventName string, payload interface{}) error {
	if w.url == "" {
		return nil
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"event": eventName,
			"data":  payload,
		}).
		Post(w.url)
	if err != nil {
		w.logger.Warnw("webhook delivery failed",
			"type", "webhook",
			"event", eventName,
			"error", err)
		return fmt.Errorf("webhook delivery failed: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		w.logger.Warnw("webhook receiver returned error",
			"type", "webhook",
			"event", eventName,
			"status", resp.StatusCode())
		return fmt.Errorf("webhook receiver returned status %d", resp.StatusCode())
	}

	w.logger.Infow("msg", "webhook delivered",
		"type", "webhook",
		"event", eventName,
		"status", resp.StatusCode())

	return nil
}
