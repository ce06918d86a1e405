package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient builds a Bybit V5 client, authenticated only when key
// material is supplied.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	if apiKey == "" && apiSecret == "" {
		return bybit.NewClient()
	}

	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}
