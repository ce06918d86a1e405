package synchronizer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeready/internal/domain"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[domain.Source]int // keyed by the first source of the group
	keys    []string
	entered chan struct{}
	block   chan struct{}
	bundle  func(sources []domain.Source) domain.SourceBundle
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[domain.Source]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, sessionKey string, sources []domain.Source) domain.SourceBundle {
	f.mu.Lock()
	f.calls[sources[0]]++
	f.keys = append(f.keys, sessionKey)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	if f.bundle != nil {
		return f.bundle(sources)
	}

	return readyBundle(sources)
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.calls {
		total += n
	}

	return total
}

func (f *fakeFetcher) callsFor(group domain.Source) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[group]
}

func (f *fakeFetcher) sessionKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.keys...)
}

type fakeToggle struct {
	mu    sync.Mutex
	calls []bool
	ids   []string
	err   error
	onSet func(enabled bool)
}

func (f *fakeToggle) SetAutoTrade(ctx context.Context, enabled bool, requestID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, enabled)
	f.ids = append(f.ids, requestID)
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if f.onSet != nil {
		f.onSet(enabled)
	}

	return nil
}

func (f *fakeToggle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type fakeIdentity struct {
	mu      sync.Mutex
	id      Identity
	present bool
}

func (f *fakeIdentity) Current() (Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.id, f.present
}

func (f *fakeIdentity) set(key string, present bool) {
	f.mu.Lock()
	f.id = Identity{Key: key}
	f.present = present
	f.mu.Unlock()
}

func readyBundle(sources []domain.Source) domain.SourceBundle {
	b := domain.SourceBundle{Health: make(map[domain.Source]domain.SourceHealth)}
	for _, src := range sources {
		b.Health[src] = domain.SourceHealth{OK: true, CheckedAt: time.Now()}
		switch src {
		case domain.SourceConfig:
			b.Config = &domain.TradingConfig{AutoTradeEnabled: true, CooldownSeconds: 60, MaxTradesPerDay: 10}
		case domain.SourceCredential:
			b.Credential = &domain.CredentialStatus{Provider: "binance", HasKeyMaterial: true}
		case domain.SourceProviders:
			b.Providers = domain.ProviderMap{
				domain.CategoryMarketData: {"cryptocompare": {Enabled: true, APIKeyPresent: true}},
				domain.CategoryNews:       {"newsdata": {Enabled: true, APIKeyPresent: true}},
				domain.CategoryMetadata:   {"coinmarketcap": {Enabled: true, APIKeyPresent: true}},
			}
		case domain.SourceTrades:
			b.Trades = []domain.LiveTrade{{ID: "t1", Symbol: "BTCUSDT"}}
		case domain.SourceActivity:
			b.Activity = []domain.ActivityEvent{
				{Type: "trade_closed", Timestamp: time.Now(), Meta: map[string]any{"outcome": "win"}},
			}
		case domain.SourceStats:
			b.Stats = json.RawMessage(`{"sharpe":1.0}`)
		}
	}

	return b
}

func failedBundle(sources []domain.Source) domain.SourceBundle {
	cfg := domain.DefaultTradingConfig()
	cred := domain.DefaultCredentialStatus()
	b := domain.SourceBundle{Health: make(map[domain.Source]domain.SourceHealth)}
	for _, src := range sources {
		b.Health[src] = domain.SourceHealth{Error: "gateway unreachable", CheckedAt: time.Now()}
		switch src {
		case domain.SourceConfig:
			b.Config = &cfg
		case domain.SourceCredential:
			b.Credential = &cred
		case domain.SourceProviders:
			b.Providers = domain.DefaultProviderMap()
		case domain.SourceTrades:
			b.Trades = []domain.LiveTrade{}
		case domain.SourceActivity:
			b.Activity = []domain.ActivityEvent{}
		}
	}

	return b
}

func newTestSynchronizer(t *testing.T, fetch BundleFetcher, gw ToggleGateway, id IdentityProvider, opts ...Option) *Synchronizer {
	t.Helper()

	s, err := New(zap.NewNop(), fetch, gw, id, opts...)
	require.NoError(t, err)

	return s
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(zap.NewNop(), nil, &fakeToggle{}, StaticIdentity("u"))
	assert.Error(t, err)

	_, err = New(zap.NewNop(), newFakeFetcher(), nil, StaticIdentity("u"))
	assert.Error(t, err)

	_, err = New(zap.NewNop(), newFakeFetcher(), &fakeToggle{}, nil)
	assert.Error(t, err)
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	fetch := newFakeFetcher()
	s := newTestSynchronizer(t, fetch, &fakeToggle{}, StaticIdentity("user-1"))

	s.Refresh(context.Background())

	snap := s.Snapshot()
	assert.True(t, snap.Readiness.IsAPIConnected)
	assert.True(t, snap.Readiness.CanEnable)
	assert.Empty(t, snap.Readiness.MissingRequirements)
	assert.Equal(t, 3, snap.Readiness.EnabledProviders)
	assert.Equal(t, domain.EngineRunning, snap.Engine)
	assert.True(t, snap.Accuracy.Known)
	assert.Equal(t, 100.0, snap.Accuracy.Percent)
	assert.Len(t, snap.Trades, 1)
	assert.JSONEq(t, `{"sharpe":1.0}`, string(snap.Stats))
	assert.NotZero(t, snap.Generation)
	assert.Equal(t, []string{"user-1", "user-1"}, fetch.sessionKeys())
}

func TestRefreshCoalescesOverlappingRuns(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.entered = make(chan struct{}, 4)
	fetch.block = make(chan struct{})

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, StaticIdentity("user-1"))

	firstDone := make(chan struct{})
	go func() {
		s.Refresh(context.Background())
		close(firstDone)
	}()

	// wait until both groups of the first refresh are in flight
	<-fetch.entered
	<-fetch.entered

	// this one must coalesce into a no-op and return immediately
	s.Refresh(context.Background())
	assert.Equal(t, 2, fetch.totalCalls(), "overlapping refresh must not start new rounds")

	close(fetch.block)
	<-firstDone

	assert.Equal(t, 2, fetch.totalCalls())
	assert.Equal(t, 1, fetch.callsFor(domain.SourceConfig))
	assert.Equal(t, 1, fetch.callsFor(domain.SourceCredential))
}

func TestStaleGenerationDiscarded(t *testing.T) {
	s := newTestSynchronizer(t, newFakeFetcher(), &fakeToggle{}, StaticIdentity("user-1"))

	newer := readyBundle(s.status.sources)
	s.apply(s.status, 2, newer)

	older := failedBundle(s.status.sources)
	s.apply(s.status, 1, older)

	snap := s.Snapshot()
	assert.True(t, snap.Config.AutoTradeEnabled, "stale result must not overwrite newer state")
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Len(t, snap.Trades, 1)
}

func TestApplyAfterStopDiscarded(t *testing.T) {
	s := newTestSynchronizer(t, newFakeFetcher(), &fakeToggle{}, StaticIdentity("user-1"))
	s.Stop()

	s.apply(s.status, 1, readyBundle(s.status.sources))

	snap := s.Snapshot()
	assert.False(t, snap.Config.AutoTradeEnabled)
	assert.Zero(t, snap.Generation)
}

func TestSourceFailureFallsBackToDefaults(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		b := readyBundle(sources)
		if b.Config != nil {
			// the config source timed out, everything else succeeded
			cfg := domain.DefaultTradingConfig()
			b.Config = &cfg
			b.Health[domain.SourceConfig] = domain.SourceHealth{Error: "bounded fetch: context deadline exceeded"}
		}

		return b
	}

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, StaticIdentity("user-1"))
	s.Refresh(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, domain.DefaultTradingConfig(), snap.Config)
	assert.Equal(t, domain.EngineStopped, snap.Engine)
	assert.False(t, snap.Sources[domain.SourceConfig].OK)

	// derived fields from healthy sources still compute normally
	assert.True(t, snap.Readiness.CanEnable)
	assert.True(t, snap.Accuracy.Known)
	assert.Len(t, snap.Trades, 1)
}

func TestToggleShortCircuitsWhenCredentialDisconnected(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		b := readyBundle(sources)
		if b.Credential != nil {
			cred := domain.DefaultCredentialStatus()
			b.Credential = &cred
		}

		return b
	}

	gw := &fakeToggle{}
	s := newTestSynchronizer(t, fetch, gw, StaticIdentity("user-1"))
	s.Refresh(context.Background())

	err := s.Toggle(context.Background(), true)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, ReasonCredentialNotConnected, validation.Reason)
	assert.Empty(t, validation.Missing, "provider check must not run when the credential is disconnected")
	assert.Zero(t, gw.callCount(), "no remote call on validation failure")
}

func TestToggleReportsMissingProvidersByDisplayName(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		b := readyBundle(sources)
		if b.Providers != nil {
			b.Providers = domain.ProviderMap{
				domain.CategoryNews: {"newsdata": {Enabled: true, APIKeyPresent: true}},
			}
		}

		return b
	}

	gw := &fakeToggle{}
	s := newTestSynchronizer(t, fetch, gw, StaticIdentity("user-1"))
	s.Refresh(context.Background())

	err := s.Toggle(context.Background(), true)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, ReasonProvidersMissing, validation.Reason)
	assert.Equal(t, []string{"Market Data", "Metadata"}, validation.Missing)
	assert.Contains(t, validation.Error(), "Market Data, Metadata")
	assert.Zero(t, gw.callCount())
}

func TestToggleSuccessUpdatesOptimisticallyAndRefreshes(t *testing.T) {
	var enabled atomic.Bool

	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		b := readyBundle(sources)
		if b.Config != nil {
			b.Config.AutoTradeEnabled = enabled.Load()
		}

		return b
	}

	gw := &fakeToggle{onSet: func(e bool) { enabled.Store(e) }}
	s := newTestSynchronizer(t, fetch, gw, StaticIdentity("user-1"))
	s.Refresh(context.Background())

	require.Equal(t, domain.EngineStopped, s.Snapshot().Engine)
	callsBefore := fetch.totalCalls()

	require.NoError(t, s.Toggle(context.Background(), true))

	snap := s.Snapshot()
	assert.True(t, snap.Config.AutoTradeEnabled)
	assert.Equal(t, domain.EngineRunning, snap.Engine)
	assert.Equal(t, 1, gw.callCount())
	assert.NotEmpty(t, gw.ids[0])
	assert.Equal(t, callsBefore+2, fetch.totalCalls(), "toggle success must trigger a full refresh")
}

func TestToggleRemoteFailureLeavesStateUntouched(t *testing.T) {
	remoteErr := errors.New("exchange rejected the request")

	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		b := readyBundle(sources)
		if b.Config != nil {
			b.Config.AutoTradeEnabled = false
		}

		return b
	}

	gw := &fakeToggle{err: remoteErr}
	s := newTestSynchronizer(t, fetch, gw, StaticIdentity("user-1"))
	s.Refresh(context.Background())
	callsBefore := fetch.totalCalls()

	err := s.Toggle(context.Background(), true)

	require.Error(t, err)
	assert.ErrorIs(t, err, remoteErr, "the underlying error must be surfaced, not replaced")

	var validation *ValidationError
	assert.False(t, errors.As(err, &validation))

	snap := s.Snapshot()
	assert.False(t, snap.Config.AutoTradeEnabled, "local state must stay unchanged on remote failure")
	assert.Equal(t, callsBefore, fetch.totalCalls(), "no refresh on remote failure")
}

func TestToggleOffNeedsNoValidation(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		return failedBundle(sources) // nothing connected at all
	}

	gw := &fakeToggle{}
	s := newTestSynchronizer(t, fetch, gw, StaticIdentity("user-1"))
	s.Refresh(context.Background())

	require.NoError(t, s.Toggle(context.Background(), false))
	assert.Equal(t, 1, gw.callCount())
}

func TestIdentityAbsentFromStartIsNoop(t *testing.T) {
	fetch := newFakeFetcher()
	id := &fakeIdentity{}

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, id)
	s.Refresh(context.Background())

	assert.Zero(t, fetch.totalCalls(), "absent identity must not trigger fetches")
	assert.Zero(t, s.Snapshot().Generation)

	select {
	case <-s.Done():
		t.Fatal("a session that never existed must not shut the synchronizer down")
	default:
	}
}

func TestLogoutStopsSynchronizer(t *testing.T) {
	fetch := newFakeFetcher()
	id := &fakeIdentity{}
	id.set("user-1", true)

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, id)
	s.Start(context.Background())

	require.Eventually(t, func() bool { return fetch.totalCalls() >= 2 }, time.Second, 10*time.Millisecond)

	id.set("", false)

	require.Eventually(t, func() bool {
		s.Refresh(context.Background())
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 50*time.Millisecond, "synchronizer did not stop after logout")

	callsAfterStop := fetch.totalCalls()
	s.Refresh(context.Background())
	assert.Equal(t, callsAfterStop, fetch.totalCalls(), "refresh after stop must be a no-op")

	err := s.Toggle(context.Background(), true)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestIdentityPendingWaitsForResolution(t *testing.T) {
	fetch := newFakeFetcher()
	id := &fakeIdentity{}
	id.set("", true) // session exists, key not resolved yet

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, id)

	go func() {
		time.Sleep(100 * time.Millisecond)
		id.set("user-9", true)
	}()

	done := make(chan struct{})
	go func() {
		s.Refresh(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("refresh did not complete after identity resolution")
	}

	keys := fetch.sessionKeys()
	require.NotEmpty(t, keys)
	for _, key := range keys {
		assert.Equal(t, "user-9", key)
	}
}

func TestIdentityChangeResetsState(t *testing.T) {
	fetch := newFakeFetcher()
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		return readyBundle(sources)
	}
	id := &fakeIdentity{}
	id.set("user-a", true)

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, id)
	s.Refresh(context.Background())
	require.True(t, s.Snapshot().Readiness.IsAPIConnected)

	// a different user takes over the session, their sources are all down
	fetch.bundle = func(sources []domain.Source) domain.SourceBundle {
		return failedBundle(sources)
	}
	id.set("user-b", true)
	s.Refresh(context.Background())

	snap := s.Snapshot()
	assert.False(t, snap.Readiness.IsAPIConnected, "previous session state must not leak into the new session")
	assert.Empty(t, snap.Trades)

	keys := fetch.sessionKeys()
	assert.Contains(t, keys, "user-a")
	assert.Contains(t, keys, "user-b")
}

func TestScheduledTicksHonorActiveCheck(t *testing.T) {
	fetch := newFakeFetcher()
	var active atomic.Bool

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, StaticIdentity("user-1"),
		WithIntervals(20*time.Millisecond, 20*time.Millisecond),
		WithActiveCheck(active.Load))
	s.Start(context.Background())
	defer s.Stop()

	// the initial cycles run regardless of the active predicate
	require.Eventually(t, func() bool { return fetch.totalCalls() == 2 }, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, fetch.totalCalls(), "ticks while inactive must be skipped")

	active.Store(true)
	require.Eventually(t, func() bool { return fetch.totalCalls() > 2 }, time.Second, 5*time.Millisecond)
}

func TestSinkAndJournalReceiveSnapshots(t *testing.T) {
	fetch := newFakeFetcher()

	var mu sync.Mutex
	var published []domain.StatusSnapshot
	var saved []domain.StatusSnapshot

	sink := sinkFunc(func(snap domain.StatusSnapshot) {
		mu.Lock()
		published = append(published, snap)
		mu.Unlock()
	})
	journal := journalFunc(func(snap domain.StatusSnapshot) error {
		mu.Lock()
		saved = append(saved, snap)
		mu.Unlock()

		return nil
	})

	s := newTestSynchronizer(t, fetch, &fakeToggle{}, StaticIdentity("user-1"),
		WithSink(sink), WithJournal(journal))
	s.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, published, 2, "one snapshot per applied group bundle")
	assert.Len(t, saved, 2)
}

type sinkFunc func(domain.StatusSnapshot)

func (f sinkFunc) Publish(snap domain.StatusSnapshot) { f(snap) }

type journalFunc func(domain.StatusSnapshot) error

func (f journalFunc) Save(snap domain.StatusSnapshot) error { return f(snap) }

type fakeProbe struct {
	mu     sync.Mutex
	checks []domain.CredentialStatus
	health domain.SourceHealth
	ok     bool
}

func (f *fakeProbe) Check(ctx context.Context, cred domain.CredentialStatus) (domain.SourceHealth, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.checks = append(f.checks, cred)

	return f.health, f.ok
}

func (f *fakeProbe) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.checks)
}

func TestProbeOutcomeLandsInDiagnostics(t *testing.T) {
	probe := &fakeProbe{health: domain.SourceHealth{OK: true, CheckedAt: time.Now()}, ok: true}
	s := newTestSynchronizer(t, newFakeFetcher(), &fakeToggle{}, StaticIdentity("user-1"), WithProbe(probe))

	s.Refresh(context.Background())

	// probe runs off the cycle goroutine, its merge lands shortly after
	require.Eventually(t, func() bool {
		health, found := s.Snapshot().Sources[domain.SourceExchangeProbe]
		return found && health.OK
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, s.Snapshot().Readiness.CanEnable, "probe outcome must not gate readiness")
}

func TestProbeWithNothingToRecordLeavesDiagnosticsAlone(t *testing.T) {
	probe := &fakeProbe{ok: false}
	s := newTestSynchronizer(t, newFakeFetcher(), &fakeToggle{}, StaticIdentity("user-1"), WithProbe(probe))

	s.Refresh(context.Background())

	require.Eventually(t, func() bool { return probe.checkCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	_, found := s.Snapshot().Sources[domain.SourceExchangeProbe]
	assert.False(t, found)
}
