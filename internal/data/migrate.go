package data

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// migration is a single numbered schema change. Migrations run in order,
// exactly once, recorded in schema_migrations. Older deployments that
// predate a column get it added by the corresponding step rather than by
// runtime column introspection.
type migration struct {
	version int
	name    string
	up      func(db *gorm.DB) error
}

// migrations is the ordered migration list. Append only, never reorder.
var migrations = []migration{
	{
		version: 1,
		name:    "create core tables",
		up: func(db *gorm.DB) error {
			return db.AutoMigrate(
				&Trade{},
				&AccountSnapshot{},
				&TradingSignal{},
				&CircuitBreakerRecord{},
			)
		},
	},
	{
		version: 2,
		name:    "add severity and cooldown to circuit_breaker_log",
		up: func(db *gorm.DB) error {
			// AutoMigrate is a no-op for fresh deployments where v1 already
			// created the full model. Kept as its own step so deployments
			// created before these columns existed pick them up; absent
			// values read back as severity 1 / nil cooldown.
			m := db.Migrator()
			if !m.HasColumn(&CircuitBreakerRecord{}, "severity_level") {
				if err := m.AddColumn(&CircuitBreakerRecord{}, "severity_level"); err != nil {
					return err
				}
			}
			if !m.HasColumn(&CircuitBreakerRecord{}, "cooldown_until") {
				if err := m.AddColumn(&CircuitBreakerRecord{}, "cooldown_until"); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		version: 3,
		name:    "create session_state",
		up: func(db *gorm.DB) error {
			return db.AutoMigrate(&SessionState{})
		},
	},
	{
		version: 4,
		name:    "create risk_audit_logs",
		up: func(db *gorm.DB) error {
			return db.AutoMigrate(&RiskAuditLog{})
		},
	},
}

// Migrate applies all pending migrations. It is safe to call on every
// startup; applied versions are skipped.
func Migrate(db *gorm.DB, logger log.Logger) error {
	helper := log.NewHelper(logger)

	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	return runMigrations(db, helper, migrations)
}

// runMigrations applies the steps not yet recorded in schema_migrations.
func runMigrations(db *gorm.DB, helper *log.Helper, steps []migration) error {
	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	appliedSet := make(map[int]bool, len(applied))
	for _, m := range applied {
		appliedSet[m.Version] = true
	}

	for _, m := range steps {
		if appliedSet[m.version] {
			continue
		}

		helper.Infow("msg", "applying migration", "version", m.version, "name", m.name)
		if err := m.up(db); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if err := db.Create(&SchemaMigration{Version: m.version}).Error; err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return nil
}
