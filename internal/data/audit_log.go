package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// RiskAuditLogger writes risk events to risk_audit_logs asynchronously so a
// slow insert never delays a decision cycle.
type RiskAuditLogger struct {
	db      *gorm.DB
	logChan chan *RiskAuditLog
	logger  *log.Helper
}

// NewRiskAuditLogger creates a new audit logger with async channel.
func NewRiskAuditLogger(db *gorm.DB, logger log.Logger) *RiskAuditLogger {
	al := &RiskAuditLogger{
		db:      db,
		logChan: make(chan *RiskAuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *RiskAuditLogger) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write risk audit log",
				"event_type", event.EventType,
				"symbol", event.Symbol,
				"error", err)
		} else {
			a.logger.Debugw("risk audit log written",
				"type", "audit",
				"event_type", event.EventType,
				"symbol", event.Symbol)
		}
	}
}

// enqueue pushes an event without blocking; if the buffer is full the event
// is dropped with a warning (audit is best effort, trading is not).
func (a *RiskAuditLogger) enqueue(event *RiskAuditLog) {
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("risk audit buffer full, event dropped",
			"event_type", event.EventType)
	}
}

// LogBreakerTriggered records a breaker trigger with its metric snapshot.
func (a *RiskAuditLogger) LogBreakerTriggered(ctx context.Context, triggerType, reason string, severity int, details interface{}) {
	payload := map[string]interface{}{
		"trigger_type": triggerType,
		"reason":       reason,
		"severity":     severity,
		"details":      details,
		"at":           time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := json.Marshal(payload)
	a.enqueue(&RiskAuditLog{
		EventType: "BREAKER_TRIGGERED",
		Details:   string(data),
	})
}

// LogBreakerReset records a manual reset.
func (a *RiskAuditLogger) LogBreakerReset(ctx context.Context, rowsAffected int64) {
	data, _ := json.Marshal(map[string]interface{}{
		"rows_affected": rowsAffected,
		"at":            time.Now().UTC().Format(time.RFC3339),
	})
	a.enqueue(&RiskAuditLog{
		EventType: "BREAKER_RESET",
		Details:   string(data),
	})
}

// LogGateVerdict records a comprehensive risk check outcome for a symbol.
func (a *RiskAuditLogger) LogGateVerdict(ctx context.Context, symbol string, approved bool, warnings, blockers []string) {
	data, _ := json.Marshal(map[string]interface{}{
		"approved": approved,
		"warnings": warnings,
		"blockers": blockers,
		"at":       time.Now().UTC().Format(time.RFC3339),
	})
	a.enqueue(&RiskAuditLog{
		EventType: "GATE_VERDICT",
		Symbol:    symbol,
		Details:   string(data),
	})
}
