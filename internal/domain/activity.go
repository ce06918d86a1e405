package domain

import (
	"strconv"
	"strings"
	"time"
)

// DefaultActivityLimit bounds the most-recent activity window held in memory.
const DefaultActivityLimit = 50

// ActivityEvent one entry of the server-side audit log.
type ActivityEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// IsTrade reports whether the event describes trade activity.
func (e ActivityEvent) IsTrade() bool {
	return strings.Contains(strings.ToLower(e.Type), "trade")
}

// IsClosedTrade reports whether the event describes a closed trade.
func (e ActivityEvent) IsClosedTrade() bool {
	return strings.Contains(strings.ToLower(e.Type), "closed")
}

// Outcome extracts the win/loss result of a closed trade from the event
// payload. known is false when the payload carries no authoritative outcome,
// such events are excluded from accuracy instead of being guessed.
func (e ActivityEvent) Outcome() (win, known bool) {
	if e.Meta == nil {
		return false, false
	}

	if v, ok := e.Meta["outcome"]; ok {
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "win":
				return true, true
			case "loss", "lose", "lost":
				return false, true
			}
		}
	}

	if v, ok := e.Meta["win"]; ok {
		return Truthy(v), true
	}

	if v, ok := e.Meta["pnl"]; ok {
		if f, ok := asFloat(v); ok {
			return f > 0, true
		}
	}

	return false, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}
