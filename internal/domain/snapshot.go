package domain

import (
	"encoding/json"
	"time"
)

// SourceBundle settled results of one coordinator run. A source appears in
// Health exactly when it was part of the run, its value field then holds
// either the fetched data or the documented default.
type SourceBundle struct {
	Config     *TradingConfig
	Credential *CredentialStatus
	Providers  ProviderMap
	Trades     []LiveTrade
	Activity   []ActivityEvent
	Stats      json.RawMessage
	Health     map[Source]SourceHealth
}

// StatusSnapshot full synchronizer state at one generation: normalized
// source values plus everything derived from them.
type StatusSnapshot struct {
	Generation  uint64                  `json:"generation"`
	RefreshedAt time.Time               `json:"refreshed_at"`
	Config      TradingConfig           `json:"config"`
	Credential  CredentialStatus        `json:"credential"`
	Providers   ProviderMap             `json:"providers"`
	Trades      []LiveTrade             `json:"trades"`
	Activity    []ActivityEvent         `json:"activity"`
	Stats       json.RawMessage         `json:"stats,omitempty"`
	Readiness   ReadinessState          `json:"readiness"`
	Engine      EngineStatus            `json:"engine_status"`
	Accuracy    TradeAccuracy           `json:"accuracy"`
	TradesToday int                     `json:"trades_today"`
	CooldownMS  int64                   `json:"cooldown_ms_left"`
	Sources     map[Source]SourceHealth `json:"sources,omitempty"`
}

// StatusRecord bundles a journaled snapshot with its log index.
type StatusRecord struct {
	Index    uint64
	Snapshot StatusSnapshot
}
