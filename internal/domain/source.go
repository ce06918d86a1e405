// Package domain defines core data structures used throughout the readiness synchronizer.
package domain

import "time"

// Source one independent remote data feed.
type Source string

const (
	SourceConfig     Source = "trading_config"
	SourceCredential Source = "credential_status"
	SourceProviders  Source = "provider_map"
	SourceTrades     Source = "live_trades"
	SourceActivity   Source = "activity_log"
	SourceStats      Source = "performance_stats"

	// SourceExchangeProbe is synthetic: it carries the advisory venue
	// connectivity check, not a fetched feed, and is absent from AllSources.
	SourceExchangeProbe Source = "exchange_probe"
)

// AllSources returns every known source in declaration order.
func AllSources() []Source {
	return []Source{
		SourceConfig,
		SourceCredential,
		SourceProviders,
		SourceTrades,
		SourceActivity,
		SourceStats,
	}
}

// SourceHealth diagnostic outcome of the last fetch attempt for one source.
// A failed source is not an error condition for the synchronizer, the
// defaulted value is used and the failure is recorded here.
type SourceHealth struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CheckedAt time.Time `json:"checked_at"`
}
