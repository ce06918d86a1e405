// Package synchronizer reconciles the six remote readiness sources into one
// consistent, continuously refreshed view of whether automated trading is
// safe to enable. It owns the refresh cadence, the generation discipline
// that keeps late results from clobbering newer state, and the validated
// toggle action. All state belongs to a single session identity and is torn
// down when that identity goes away.
package synchronizer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/pkg/retrier"
)

const (
	defaultStatusInterval    = 60 * time.Second
	defaultReadinessInterval = 30 * time.Second
	identityRetryInterval    = 300 * time.Millisecond
)

var (
	errIdentityAbsent  = errors.New("session identity absent")
	errIdentityPending = errors.New("session identity not resolved yet")
)

// BundleFetcher runs one settle-all round over the given sources.
type BundleFetcher interface {
	Fetch(ctx context.Context, sessionKey string, sources []domain.Source) domain.SourceBundle
}

// ToggleGateway performs the remote auto-trade switch.
type ToggleGateway interface {
	SetAutoTrade(ctx context.Context, enabled bool, requestID string) error
}

// SnapshotSink receives every applied snapshot, e.g. for live streaming.
type SnapshotSink interface {
	Publish(snapshot domain.StatusSnapshot)
}

// SnapshotJournal persists applied snapshots.
type SnapshotJournal interface {
	Save(snapshot domain.StatusSnapshot) error
}

// CredentialProbe runs an advisory venue check for a connected credential.
// The second return is false when there is nothing to record.
type CredentialProbe interface {
	Check(ctx context.Context, cred domain.CredentialStatus) (domain.SourceHealth, bool)
}

// sourceGroup is a set of sources sharing one refresh cadence. Status and
// readiness sources are polled at different intervals, each group coalesces
// its own overlapping runs and orders its own generations.
type sourceGroup struct {
	name     string
	sources  []domain.Source
	interval time.Duration
	inflight atomic.Bool
	lastGen  uint64 // guarded by Synchronizer.mu
}

// Synchronizer drives fetch cycles and holds the reconciled session state.
type Synchronizer struct {
	logger       *zap.Logger
	fetcher      BundleFetcher
	gw           ToggleGateway
	identity     IdentityProvider
	identityWait *retrier.Retrier

	required []domain.Category
	active   func() bool
	sink     SnapshotSink
	journal  SnapshotJournal
	probe    CredentialProbe

	status    *sourceGroup
	readiness *sourceGroup

	gen      atomic.Uint64
	probeGen uint64 // guarded by mu

	mu          sync.RWMutex
	config      domain.TradingConfig
	credential  domain.CredentialStatus
	providers   domain.ProviderMap
	trades      []domain.LiveTrade
	activity    []domain.ActivityEvent
	stats       json.RawMessage
	health      map[domain.Source]domain.SourceHealth
	refreshedAt time.Time
	lastApplied uint64
	sessionKey  string
	sawIdentity bool
	stopped     bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures the Synchronizer.
type Option func(*Synchronizer)

// WithIntervals overrides the refresh cadence of the two source groups.
func WithIntervals(status, readiness time.Duration) Option {
	return func(s *Synchronizer) {
		if status > 0 {
			s.status.interval = status
		}
		if readiness > 0 {
			s.readiness.interval = readiness
		}
	}
}

// WithRequiredCategories overrides the provider categories that must be
// enabled and keyed before trading can be switched on.
func WithRequiredCategories(categories []domain.Category) Option {
	return func(s *Synchronizer) {
		if len(categories) > 0 {
			s.required = categories
		}
	}
}

// WithActiveCheck installs a predicate consulted before every scheduled
// cycle. When it reports false the tick is skipped, manual refreshes are
// not affected. Used to pause polling while no one is watching.
func WithActiveCheck(fn func() bool) Option {
	return func(s *Synchronizer) {
		s.active = fn
	}
}

// WithSink installs a receiver for every applied snapshot.
func WithSink(sink SnapshotSink) Option {
	return func(s *Synchronizer) {
		s.sink = sink
	}
}

// WithJournal installs persistent snapshot storage.
func WithJournal(journal SnapshotJournal) Option {
	return func(s *Synchronizer) {
		s.journal = journal
	}
}

// WithProbe installs an advisory venue connectivity check, run after each
// cycle that refreshed the credential source. Its outcome lands in the
// snapshot's source diagnostics and never gates readiness.
func WithProbe(probe CredentialProbe) Option {
	return func(s *Synchronizer) {
		s.probe = probe
	}
}

// New creates a Synchronizer.
func New(logger *zap.Logger, fetch BundleFetcher, gw ToggleGateway, identity IdentityProvider, opts ...Option) (*Synchronizer, error) {
	if fetch == nil {
		return nil, errors.New("bundle fetcher is required")
	}
	if gw == nil {
		return nil, errors.New("toggle gateway is required")
	}
	if identity == nil {
		return nil, errors.New("identity provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Synchronizer{
		logger:       logger,
		fetcher:      fetch,
		gw:           gw,
		identity:     identity,
		identityWait: retrier.Fixed(identityRetryInterval),
		required:     domain.DefaultRequiredCategories(),
		status: &sourceGroup{
			name:     "status",
			interval: defaultStatusInterval,
			sources: []domain.Source{
				domain.SourceConfig,
				domain.SourceTrades,
				domain.SourceActivity,
				domain.SourceStats,
			},
		},
		readiness: &sourceGroup{
			name:     "readiness",
			interval: defaultReadinessInterval,
			sources: []domain.Source{
				domain.SourceCredential,
				domain.SourceProviders,
			},
		},
		config:     domain.DefaultTradingConfig(),
		credential: domain.DefaultCredentialStatus(),
		providers:  domain.DefaultProviderMap(),
		trades:     []domain.LiveTrade{},
		activity:   []domain.ActivityEvent{},
		health:     make(map[domain.Source]domain.SourceHealth),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start launches the periodic refresh loops. Each group runs its first
// cycle immediately and then ticks at its own interval. Start is idempotent.
func (s *Synchronizer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)

		s.logger.Info("starting readiness synchronizer",
			zap.Duration("status_interval", s.status.interval),
			zap.Duration("readiness_interval", s.readiness.interval))

		s.wg.Add(2)
		go s.runGroup(s.status)
		go s.runGroup(s.readiness)
	})
}

// Stop tears the synchronizer down: all timers stop and any in-flight
// generation becomes stale, late results are silently discarded. Idempotent.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		close(s.done)

		s.logger.Info("readiness synchronizer stopped")
	})
}

// Done is closed once the synchronizer has fully stopped, whether by Stop
// or by losing its session identity.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Refresh runs one full fetch round over every source group and returns
// once both settle. While stopped, or for a group whose round is already in
// flight, it is a no-op.
func (s *Synchronizer) Refresh(ctx context.Context) {
	if s.isStopped() {
		return
	}

	var wg sync.WaitGroup
	for _, g := range []*sourceGroup{s.status, s.readiness} {
		wg.Add(1)
		gopool.Go(func() {
			defer wg.Done()
			s.cycle(ctx, g)
		})
	}
	wg.Wait()
}

// Snapshot returns the current reconciled state with all derived fields.
func (s *Synchronizer) Snapshot() domain.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.buildSnapshot()
}

// Toggle switches automated trading on or off. Enable attempts are
// validated first: a disconnected credential short-circuits before the
// provider check, missing provider categories fail with their display
// names. Only when validation passes is the remote call made, local state
// is updated optimistically on success and a full refresh is triggered. A
// failed remote call leaves local state untouched and is surfaced verbatim.
func (s *Synchronizer) Toggle(ctx context.Context, enable bool) error {
	if s.isStopped() {
		return ErrStopped
	}

	if enable {
		s.mu.RLock()
		readiness := domain.ComputeReadiness(s.credential, s.providers, s.required)
		s.mu.RUnlock()

		if !readiness.IsAPIConnected {
			return &ValidationError{Reason: ReasonCredentialNotConnected}
		}
		if len(readiness.MissingRequirements) > 0 {
			return &ValidationError{Reason: ReasonProvidersMissing, Missing: readiness.MissingRequirements}
		}
	}

	requestID := uuid.New().String()
	s.logger.Info("toggling auto trade",
		zap.Bool("enable", enable),
		zap.String("request_id", requestID))

	if err := s.gw.SetAutoTrade(ctx, enable, requestID); err != nil {
		s.logger.Error("auto trade toggle failed",
			zap.Bool("enable", enable),
			zap.String("request_id", requestID),
			zap.Error(err))

		return errors.Wrap(err, "set auto trade")
	}

	s.mu.Lock()
	var optimistic *domain.StatusSnapshot
	if !s.stopped {
		s.config.AutoTradeEnabled = enable
		snap := s.buildSnapshot()
		optimistic = &snap
	}
	s.mu.Unlock()

	if optimistic != nil {
		s.publish(*optimistic)
	}

	s.Refresh(ctx)

	return nil
}

func (s *Synchronizer) runGroup(g *sourceGroup) {
	defer s.wg.Done()

	s.cycle(s.ctx, g)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("refresh loop stopped", zap.String("group", g.name))
			return
		case <-ticker.C:
			if s.active != nil && !s.active() {
				s.logger.Debug("synchronizer inactive, skipping tick", zap.String("group", g.name))
				continue
			}
			s.cycle(s.ctx, g)
		}
	}
}

// cycle runs one refresh round for the group. Overlapping rounds for the
// same group coalesce into a no-op instead of queueing.
func (s *Synchronizer) cycle(ctx context.Context, g *sourceGroup) {
	if s.isStopped() {
		return
	}

	if !g.inflight.CompareAndSwap(false, true) {
		s.logger.Debug("refresh already in flight, coalescing", zap.String("group", g.name))
		return
	}
	defer g.inflight.Store(false)

	identity, ok := s.resolveIdentity(ctx)
	if !ok {
		return
	}

	if s.noteIdentity(identity.Key) {
		s.logger.Info("session identity changed, state reset")
	}

	gen := s.gen.Add(1)
	s.logger.Debug("refresh cycle started",
		zap.String("group", g.name),
		zap.Uint64("generation", gen))

	bundle := s.fetcher.Fetch(ctx, identity.Key, g.sources)
	s.apply(g, gen, bundle)

	if s.probe != nil && bundle.Credential != nil {
		cred := *bundle.Credential
		gopool.Go(func() {
			s.runProbe(ctx, gen, cred)
		})
	}
}

// runProbe performs the advisory venue check and merges its outcome into the
// diagnostics map. Stale and post-stop results are dropped like any other.
func (s *Synchronizer) runProbe(ctx context.Context, gen uint64, cred domain.CredentialStatus) {
	health, ok := s.probe.Check(ctx, cred)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.stopped || gen <= s.probeGen {
		s.mu.Unlock()
		return
	}
	s.probeGen = gen
	s.health[domain.SourceExchangeProbe] = health
	snapshot := s.buildSnapshot()
	s.mu.Unlock()

	s.publish(snapshot)
}

// resolveIdentity gates a cycle on the session identity. An absent identity
// on a session that was never seen is a plain no-op, absence after the
// session existed means logout and shuts the synchronizer down. A present
// but unresolved identity is waited out on a short fixed interval for as
// long as the context allows.
func (s *Synchronizer) resolveIdentity(ctx context.Context) (Identity, bool) {
	identity, ok := s.identity.Current()
	if ok && identity.Resolved() {
		return identity, true
	}

	if !ok {
		s.handleIdentityAbsent()
		return Identity{}, false
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	var sessionLost bool
	identity, err := retrier.DoWithData(s.identityWait, waitCtx, func(context.Context) (Identity, error) {
		current, ok := s.identity.Current()
		if !ok {
			sessionLost = true
			cancelWait()

			return Identity{}, errIdentityAbsent
		}
		if !current.Resolved() {
			return Identity{}, errIdentityPending
		}

		return current, nil
	})
	if err != nil {
		if sessionLost {
			s.handleIdentityAbsent()
		} else {
			s.logger.Debug("identity still unresolved, cycle abandoned", zap.Error(err))
		}

		return Identity{}, false
	}

	return identity, true
}

func (s *Synchronizer) handleIdentityAbsent() {
	s.mu.RLock()
	saw := s.sawIdentity
	s.mu.RUnlock()

	if !saw {
		s.logger.Debug("no session identity yet, skipping refresh")
		return
	}

	s.logger.Info("session identity gone, shutting down synchronizer")
	// Stop waits for the refresh loops, so it must not run on this goroutine.
	go s.Stop()
}

// noteIdentity records the session key and reports whether it changed,
// resetting all source state to defaults when it did. A changed key means a
// different session now owns this synchronizer.
func (s *Synchronizer) noteIdentity(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.sawIdentity && s.sessionKey != key
	if changed {
		s.config = domain.DefaultTradingConfig()
		s.credential = domain.DefaultCredentialStatus()
		s.providers = domain.DefaultProviderMap()
		s.trades = []domain.LiveTrade{}
		s.activity = []domain.ActivityEvent{}
		s.stats = nil
		s.health = make(map[domain.Source]domain.SourceHealth)
		s.refreshedAt = time.Time{}
	}

	s.sessionKey = key
	s.sawIdentity = true

	return changed
}

// apply commits a settled bundle. Results from a generation at or below the
// group's last applied one are stale and dropped, as is anything arriving
// after stop. A bundle is committed whole, sources outside the group keep
// their previous values.
func (s *Synchronizer) apply(g *sourceGroup, gen uint64, bundle domain.SourceBundle) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Debug("discarding refresh result after stop", zap.Uint64("generation", gen))

		return
	}
	if gen <= g.lastGen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale refresh result",
			zap.String("group", g.name),
			zap.Uint64("generation", gen))

		return
	}

	g.lastGen = gen
	if gen > s.lastApplied {
		s.lastApplied = gen
	}

	if bundle.Config != nil {
		s.config = *bundle.Config
	}
	if bundle.Credential != nil {
		s.credential = *bundle.Credential
	}
	if bundle.Providers != nil {
		s.providers = bundle.Providers
	}
	if bundle.Trades != nil {
		s.trades = bundle.Trades
	}
	if bundle.Activity != nil {
		s.activity = bundle.Activity
	}
	if _, fetched := bundle.Health[domain.SourceStats]; fetched {
		s.stats = bundle.Stats
	}
	for source, health := range bundle.Health {
		s.health[source] = health
	}
	s.refreshedAt = time.Now()

	snapshot := s.buildSnapshot()
	s.mu.Unlock()

	s.publish(snapshot)
}

// buildSnapshot assembles the public state view. Callers must hold mu.
// Slices and maps inside are replaced wholesale on apply and never mutated,
// sharing them with the snapshot is safe.
func (s *Synchronizer) buildSnapshot() domain.StatusSnapshot {
	now := time.Now()

	health := make(map[domain.Source]domain.SourceHealth, len(s.health))
	for source, h := range s.health {
		health[source] = h
	}

	return domain.StatusSnapshot{
		Generation:  s.lastApplied,
		RefreshedAt: s.refreshedAt,
		Config:      s.config,
		Credential:  s.credential,
		Providers:   s.providers,
		Trades:      s.trades,
		Activity:    s.activity,
		Stats:       s.stats,
		Readiness:   domain.ComputeReadiness(s.credential, s.providers, s.required),
		Engine:      domain.ComputeEngineStatus(s.config),
		Accuracy:    domain.ComputeAccuracy(s.activity),
		TradesToday: domain.CountTradesToday(s.activity, now),
		CooldownMS:  domain.CooldownRemaining(s.config, s.activity, now).Milliseconds(),
		Sources:     health,
	}
}

func (s *Synchronizer) publish(snapshot domain.StatusSnapshot) {
	if s.sink != nil {
		s.sink.Publish(snapshot)
	}
	if s.journal != nil {
		if err := s.journal.Save(snapshot); err != nil {
			s.logger.Warn("failed to journal status snapshot", zap.Error(err))
		}
	}
}

func (s *Synchronizer) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stopped
}
