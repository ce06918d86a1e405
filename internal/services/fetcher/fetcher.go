// Package fetcher implements the parallel fetch coordinator. One call fans
// out over the requested sources concurrently, bounds each with its own
// timeout and settles once every source has either delivered or failed.
// A slow or failing source never delays or cancels the others.
package fetcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/internal/gateway"
	"github.com/vadiminshakov/tradeready/internal/services/normalize"
)

const (
	defaultTradeLimit    = 20
	defaultActivityLimit = domain.DefaultActivityLimit
)

type remoteGateway interface {
	GetTradingConfig(ctx context.Context) (*gateway.TradingConfigPayload, error)
	GetCredentialStatus(ctx context.Context, sessionID string) (*gateway.CredentialStatusPayload, error)
	GetProviderMap(ctx context.Context, sessionID string) (gateway.ProviderMapPayload, error)
	GetLiveTrades(ctx context.Context, limit int) ([]gateway.LiveTradePayload, error)
	GetActivityLog(ctx context.Context, limit int) ([]gateway.ActivityEventPayload, error)
	GetPerformanceStats(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// Timeouts per-source fetch deadlines. Each source is tunable on its own,
// there is no global budget.
type Timeouts struct {
	Config     time.Duration
	Credential time.Duration
	Providers  time.Duration
	Trades     time.Duration
	Activity   time.Duration
	Stats      time.Duration
}

// DefaultTimeouts returns the stock per-source deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Config:     10 * time.Second,
		Credential: 8 * time.Second,
		Providers:  8 * time.Second,
		Trades:     10 * time.Second,
		Activity:   10 * time.Second,
		Stats:      10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Config <= 0 {
		t.Config = def.Config
	}
	if t.Credential <= 0 {
		t.Credential = def.Credential
	}
	if t.Providers <= 0 {
		t.Providers = def.Providers
	}
	if t.Trades <= 0 {
		t.Trades = def.Trades
	}
	if t.Activity <= 0 {
		t.Activity = def.Activity
	}
	if t.Stats <= 0 {
		t.Stats = def.Stats
	}

	return t
}

// Config coordinator settings.
type Config struct {
	Timeouts      Timeouts
	TradeLimit    int
	ActivityLimit int
}

// Coordinator fans fetches out over the gateway and collects settled bundles.
type Coordinator struct {
	gw            remoteGateway
	timeouts      Timeouts
	tradeLimit    int
	activityLimit int
	logger        *zap.Logger
}

// New creates a coordinator. Zero config fields fall back to defaults.
func New(gw remoteGateway, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = defaultTradeLimit
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = defaultActivityLimit
	}

	return &Coordinator{
		gw:            gw,
		timeouts:      cfg.Timeouts.withDefaults(),
		tradeLimit:    cfg.TradeLimit,
		activityLimit: cfg.ActivityLimit,
		logger:        logger,
	}
}

// Fetch runs one settle-all round over the requested sources. It always
// returns a complete bundle: a failed or timed-out source contributes its
// default value and a not-OK health record, never an error.
func (c *Coordinator) Fetch(ctx context.Context, sessionID string, sources []domain.Source) domain.SourceBundle {
	bundle := domain.SourceBundle{
		Health: make(map[domain.Source]domain.SourceHealth, len(sources)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	record := func(source domain.Source, start time.Time, err error) {
		health := domain.SourceHealth{
			OK:        err == nil,
			ElapsedMS: time.Since(start).Milliseconds(),
			CheckedAt: time.Now(),
		}
		if err != nil {
			health.Error = err.Error()
			c.logger.Debug("source fetch failed",
				zap.String("source", string(source)),
				zap.Error(err))
		}

		mu.Lock()
		bundle.Health[source] = health
		mu.Unlock()
	}

	for _, source := range sources {
		wg.Add(1)
		switch source {
		case domain.SourceConfig:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Config, c.gw.GetTradingConfig)
				cfg := normalize.Config(payload, err)
				bundle.Config = &cfg
				record(domain.SourceConfig, start, err)
			})
		case domain.SourceCredential:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Credential, func(ctx context.Context) (*gateway.CredentialStatusPayload, error) {
					return c.gw.GetCredentialStatus(ctx, sessionID)
				})
				cred := normalize.Credential(payload, err)
				bundle.Credential = &cred
				record(domain.SourceCredential, start, err)
			})
		case domain.SourceProviders:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Providers, func(ctx context.Context) (gateway.ProviderMapPayload, error) {
					return c.gw.GetProviderMap(ctx, sessionID)
				})
				bundle.Providers = normalize.Providers(payload, err)
				record(domain.SourceProviders, start, err)
			})
		case domain.SourceTrades:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Trades, func(ctx context.Context) ([]gateway.LiveTradePayload, error) {
					return c.gw.GetLiveTrades(ctx, c.tradeLimit)
				})
				bundle.Trades = normalize.Trades(payload, err)
				record(domain.SourceTrades, start, err)
			})
		case domain.SourceActivity:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Activity, func(ctx context.Context) ([]gateway.ActivityEventPayload, error) {
					return c.gw.GetActivityLog(ctx, c.activityLimit)
				})
				bundle.Activity = normalize.Activity(payload, c.activityLimit, err)
				record(domain.SourceActivity, start, err)
			})
		case domain.SourceStats:
			gopool.Go(func() {
				defer wg.Done()
				start := time.Now()
				payload, err := bounded(ctx, c.timeouts.Stats, func(ctx context.Context) (json.RawMessage, error) {
					return c.gw.GetPerformanceStats(ctx, sessionID)
				})
				bundle.Stats = normalize.Stats(payload, err)
				record(domain.SourceStats, start, err)
			})
		default:
			wg.Done()
			c.logger.Warn("unknown source requested", zap.String("source", string(source)))
		}
	}

	wg.Wait()

	return bundle
}

// bounded runs fn with its own deadline. On timeout the late result is
// discarded through the buffered channel and the context cancellation aborts
// the underlying network call, so a stale write can never happen.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type settled struct {
		value T
		err   error
	}

	ch := make(chan settled, 1)
	gopool.Go(func() {
		value, err := fn(cctx)
		ch <- settled{value: value, err: err}
	})

	select {
	case s := <-ch:
		return s.value, s.err
	case <-cctx.Done():
		var zero T
		return zero, errors.Wrap(cctx.Err(), "bounded fetch")
	}
}
