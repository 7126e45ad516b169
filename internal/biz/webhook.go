package biz

import (
	"context"

	"TradeSentry/internal/model"
)

// WebhookService defines the interface for breaker event notifications.
type WebhookService interface {
	// NotifyBreakerTriggered sends notification when the circuit breaker fires
	NotifyBreakerTriggered(ctx context.Context, event *model.BreakerTriggeredEvent) error

	// NotifyBreakerResumed sends notification when the breaker expires or is reset
	NotifyBreakerResumed(ctx context.Context, event *model.BreakerResumedEvent) error
}
