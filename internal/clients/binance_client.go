// Package clients builds the venue SDK clients the advisory connectivity
// probes run against.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient builds a Binance REST client. Key material may be empty,
// the probe layer only touches public endpoints.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
