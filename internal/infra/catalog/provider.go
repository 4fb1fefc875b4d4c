package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Provider caches the built catalog keyed by the policy document's source
// version. Readers load the current snapshot lock-free; rebuilds are
// coalesced behind a mutex and published with a single atomic swap, so no
// caller ever observes a half-built tools map.
type Provider struct {
	policy  domain.PolicyProvider
	builder *Builder
	logger  *zap.Logger
	metrics domain.Metrics

	mu      sync.Mutex
	current atomic.Pointer[domain.CatalogSnapshot]
	skipped atomic.Pointer[[]domain.SkippedEntry]
}

func NewProvider(policy domain.PolicyProvider, builder *Builder, logger *zap.Logger, metrics domain.Metrics) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		policy:  policy,
		builder: builder,
		logger:  logger.Named("catalog_provider"),
		metrics: metrics,
	}
}

// EnsureFreshSnapshot fetches the current policy document and rebuilds the
// catalog only when its version differs from the cached snapshot's. A
// failing policy fetch serves the stale snapshot instead of destroying it.
func (p *Provider) EnsureFreshSnapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	doc, err := p.policy.Get(ctx)
	if err != nil {
		if stale := p.current.Load(); stale != nil {
			p.logger.Warn("policy fetch failed, serving stale snapshot",
				zap.String("sourceVersion", stale.SourceVersion),
				zap.Error(err),
			)
			p.recordServe(domain.SnapshotServeStale)
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPolicyUnavailable, err)
	}

	if snap := p.current.Load(); snap != nil && snap.SourceVersion == doc.SourceVersion {
		p.recordServe(domain.SnapshotServeHit)
		return snap, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have finished the same rebuild while we waited.
	if snap := p.current.Load(); snap != nil && snap.SourceVersion == doc.SourceVersion {
		p.recordServe(domain.SnapshotServeHit)
		return snap, nil
	}

	snap, skipped, err := p.builder.Build(ctx, doc)
	if err != nil {
		return nil, err
	}
	p.current.Store(snap)
	p.skipped.Store(&skipped)
	p.recordServe(domain.SnapshotServeRebuild)
	return snap, nil
}

// Current returns the cached snapshot without triggering a rebuild, or nil
// when nothing has been built yet.
func (p *Provider) Current() *domain.CatalogSnapshot {
	return p.current.Load()
}

// SkippedEntries reports the diagnostics of the most recent build.
func (p *Provider) SkippedEntries() []domain.SkippedEntry {
	skipped := p.skipped.Load()
	if skipped == nil {
		return nil
	}
	return append([]domain.SkippedEntry(nil), (*skipped)...)
}

// WarmOnChange consumes the policy provider's optional change signal and
// rebuilds eagerly so the next reader gets a warm cache. Poll-on-use
// remains the correctness mechanism; this is purely an optimization.
func (p *Provider) WarmOnChange(ctx context.Context) {
	changes := p.policy.Watch(ctx)
	if changes == nil {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if _, err := p.EnsureFreshSnapshot(ctx); err != nil {
					p.logger.Warn("eager rebuild after policy change failed", zap.Error(err))
				}
			}
		}
	}()
}

func (p *Provider) recordServe(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordSnapshotServe(outcome)
	}
}
