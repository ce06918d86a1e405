package probe

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeready/internal/clients"
)

// Binance checks the venue with an unauthenticated ping.
func Binance(client *binance.Client) Func {
	return func(ctx context.Context) error {
		return client.NewPingService().Do(ctx)
	}
}

// Bybit checks the venue by pulling one spot ticker. The V5 SDK call does
// not take a context.
func Bybit(client *bybit.Client) Func {
	return func(_ context.Context) error {
		symbol := bybit.SymbolV5("BTCUSDT")

		result, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: "spot",
			Symbol:   &symbol,
		})
		if err != nil {
			return err
		}
		if len(result.Result.Spot.List) == 0 {
			return errors.New("bybit returned no tickers")
		}

		return nil
	}
}

// Hyperliquid checks the venue through the public info endpoint.
func Hyperliquid(client *clients.HyperliquidClient) Func {
	return func(ctx context.Context) error {
		mids, err := client.Exchange().Info().AllMids(ctx)
		if err != nil {
			return err
		}
		if len(mids) == 0 {
			return errors.New("hyperliquid returned no mids")
		}

		return nil
	}
}
