package data

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// BreakerStatus represents the database ENUM type for circuit breaker status.
type BreakerStatus string

// Circuit breaker status constants.
const (
	BreakerActive        BreakerStatus = "active"
	BreakerExpired       BreakerStatus = "expired"
	BreakerManuallyReset BreakerStatus = "manually_reset"
)

// Scan implements sql.Scanner interface for BreakerStatus.
func (s *BreakerStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*s = BreakerStatus(v)
	case string:
		*s = BreakerStatus(v)
	default:
		return fmt.Errorf("cannot scan type %T into BreakerStatus", value)
	}
	return nil
}

// Value implements driver.Valuer interface for BreakerStatus.
func (s BreakerStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// CircuitBreakerRecord is the GORM model for circuit_breaker_log table.
// Records are never physically deleted; expired and manually_reset rows are
// retained for severity escalation and cooldown lookups.
type CircuitBreakerRecord struct {
	ID            int64         `gorm:"primaryKey;column:id"`
	Reason        string        `gorm:"column:reason;type:text;not null"`
	TriggeredAt   time.Time     `gorm:"column:triggered_at;not null;index"`
	ResumeAt      time.Time     `gorm:"column:resume_at;not null"`
	Status        BreakerStatus `gorm:"column:status;type:enum('active','expired','manually_reset');default:'active';not null;index"`
	SeverityLevel int           `gorm:"column:severity_level;default:1;not null"`
	CooldownUntil *time.Time    `gorm:"column:cooldown_until"`
	TriggerType   string        `gorm:"column:trigger_type;type:varchar(32);not null"`
	// TriggerDetails is a JSON snapshot of the metrics that caused the trigger.
	TriggerDetails *string   `gorm:"column:trigger_details;type:json"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (CircuitBreakerRecord) TableName() string {
	return "circuit_breaker_log"
}

// TradeType represents the database ENUM type for trade kind.
type TradeType string

// Trade type constants.
const (
	TradeOpen  TradeType = "open"
	TradeClose TradeType = "close"
)

// Scan implements sql.Scanner interface for TradeType.
func (t *TradeType) Scan(value interface{}) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*t = TradeType(v)
	case string:
		*t = TradeType(v)
	default:
		return fmt.Errorf("cannot scan type %T into TradeType", value)
	}
	return nil
}

// Value implements driver.Valuer interface for TradeType.
func (t TradeType) Value() (driver.Value, error) {
	return string(t), nil
}

// Trade is the GORM model for trades table. Rows are written by the trading
// loop on execution; the risk layer reads them for loss aggregates only.
type Trade struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	OrderID   string    `gorm:"column:order_id;size:64;index"`
	Symbol    string    `gorm:"column:symbol;size:32;not null;index"`
	Side      string    `gorm:"column:side;size:8;not null"` // long / short
	Type      TradeType `gorm:"column:type;type:enum('open','close');not null;index"`
	Price     float64   `gorm:"column:price;not null"`
	Quantity  float64   `gorm:"column:quantity;not null"`
	Leverage  float64   `gorm:"column:leverage;default:1;not null"`
	PnL       *float64  `gorm:"column:pnl"` // populated on close
	Fee       float64   `gorm:"column:fee;default:0;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index"`
	Status    string    `gorm:"column:status;size:16;default:'filled';not null"`
}

// TableName specifies the table name for GORM.
func (Trade) TableName() string {
	return "trades"
}

// AccountSnapshot is the GORM model for account_history table. The latest
// row is the reference balance for percentage-based risk thresholds.
type AccountSnapshot struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	TotalValue float64   `gorm:"column:total_value;not null"`
	Timestamp  time.Time `gorm:"column:timestamp;not null;index"`
}

// TableName specifies the table name for GORM.
func (AccountSnapshot) TableName() string {
	return "account_history"
}

// TradingSignal is the GORM model for trading_signals table. The correlation
// detector reads recent prices per symbol from here.
type TradingSignal struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Symbol     string    `gorm:"column:symbol;size:32;not null;index:idx_signal_symbol_ts"`
	Timestamp  time.Time `gorm:"column:timestamp;not null;index:idx_signal_symbol_ts"`
	Price      float64   `gorm:"column:price;not null"`
	Side       string    `gorm:"column:side;size:8"`
	Confidence float64   `gorm:"column:confidence;default:0"`
}

// TableName specifies the table name for GORM.
func (TradingSignal) TableName() string {
	return "trading_signals"
}

// SessionState is the GORM model for session_state table. A single row
// (id=1) carries the trading loop's iteration count and start time across
// process restarts.
type SessionState struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	IterationCount int64     `gorm:"column:iteration_count;default:0;not null"`
	StartedAt      time.Time `gorm:"column:started_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (SessionState) TableName() string {
	return "session_state"
}

// RiskAuditLog is the GORM model for risk_audit_logs table. Breaker
// triggers, resets and gate verdicts are recorded here asynchronously.
type RiskAuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null;index"`
	Symbol    string    `gorm:"column:symbol;size:32"`
	Details   string    `gorm:"column:details;type:json"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (RiskAuditLog) TableName() string {
	return "risk_audit_logs"
}

// SchemaMigration tracks applied schema migrations.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;column:version"`
	AppliedAt time.Time `gorm:"column:applied_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
