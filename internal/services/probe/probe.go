// Package probe layers an advisory connectivity check on top of the
// credential source: when the session reports a connected venue, the matching
// exchange client is asked whether that venue actually answers. Outcomes are
// diagnostic only and never gate readiness.
package probe

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeready/internal/domain"
)

const defaultCheckTimeout = 5 * time.Second

// Func performs one venue connectivity check.
type Func func(ctx context.Context) error

// Registry maps provider names from the credential source onto venue checks.
type Registry struct {
	logger  *zap.Logger
	timeout time.Duration
	checks  map[string]Func
}

// NewRegistry creates an empty registry. Checks are registered per provider
// before the registry is handed to the synchronizer.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		logger:  logger,
		timeout: defaultCheckTimeout,
		checks:  make(map[string]Func),
	}
}

// Register binds a venue check to a provider name. Names match the
// credential source case-insensitively.
func (r *Registry) Register(provider string, fn Func) {
	r.checks[normalizeProvider(provider)] = fn
}

// Check runs the venue check matching the credential's provider. The second
// return is false when the credential is not connected or no check is
// registered for its provider.
func (r *Registry) Check(ctx context.Context, cred domain.CredentialStatus) (domain.SourceHealth, bool) {
	if !cred.IsConnected() {
		return domain.SourceHealth{}, false
	}

	fn, ok := r.checks[normalizeProvider(cred.Provider)]
	if !ok {
		r.logger.Debug("no venue check registered", zap.String("provider", cred.Provider))
		return domain.SourceHealth{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	err := fn(ctx)

	health := domain.SourceHealth{
		OK:        err == nil,
		ElapsedMS: time.Since(started).Milliseconds(),
		CheckedAt: time.Now(),
	}
	if err != nil {
		health.Error = err.Error()
		r.logger.Warn("venue check failed",
			zap.String("provider", cred.Provider),
			zap.Error(err))
	} else {
		r.logger.Debug("venue check ok",
			zap.String("provider", cred.Provider),
			zap.Int64("elapsed_ms", health.ElapsedMS))
	}

	return health, true
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
