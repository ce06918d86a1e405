package domain

// EngineStatus display state of the automated trading engine.
type EngineStatus string

const (
	EngineRunning EngineStatus = "Running"
	EngineStopped EngineStatus = "Stopped"

	// Reserved for schedule-window logic. Not derivable from current inputs,
	// a future schedule source would gate transitions into these.
	EnginePaused       EngineStatus = "Paused"
	EngineOutsideHours EngineStatus = "Outside Hours"
)

// ComputeEngineStatus maps the trading config onto the two-state machine.
func ComputeEngineStatus(cfg TradingConfig) EngineStatus {
	if cfg.AutoTradeEnabled {
		return EngineRunning
	}

	return EngineStopped
}
