// Package data provides data access layer implementations.
// It handles database connections and data persistence.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewCircuitBreakerRepo,
	NewTradeRepo,
	NewAccountRepo,
	NewSignalRepo,
	NewSessionRepo,
	NewRiskAuditLogger,
	NewWebhookNotifier,
)
