// Package aggregator merges the catalogs of N upstream servers into one
// unified snapshot for a gateway deployment.
package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Upstream pairs a configured upstream ID with its catalog source. Slice
// order decides tool-name collision precedence: the first configured
// upstream owning a name wins and later upstreams are shadowed.
type Upstream struct {
	ID     string
	Source domain.CatalogSource
}

type Options struct {
	Upstreams []Upstream
	// Interval is consulted at the top of every cycle so the refresh
	// cadence is hot-reloadable.
	Interval    func() time.Duration
	Concurrency int
	Logger      *zap.Logger
	Metrics     domain.Metrics
}

// Aggregator polls every upstream on a timer, tracks per-upstream health,
// and publishes the merged snapshot behind an atomic pointer. At most one
// refresh cycle runs at a time; extra requests are dropped, not queued.
type Aggregator struct {
	upstreams   []Upstream
	interval    func() time.Duration
	concurrency int
	logger      *zap.Logger
	metrics     domain.Metrics
	gate        *RefreshGate

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	records map[string]*domain.UpstreamRecord

	current atomic.Pointer[domain.AggregatedSnapshot]
}

func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.Interval
	if interval == nil {
		interval = func() time.Duration {
			return time.Duration(domain.DefaultRefreshSeconds) * time.Second
		}
	}
	records := make(map[string]*domain.UpstreamRecord, len(opts.Upstreams))
	for _, up := range opts.Upstreams {
		records[up.ID] = &domain.UpstreamRecord{
			ID:    up.ID,
			State: domain.UpstreamUnknown,
		}
	}
	return &Aggregator{
		upstreams:   append([]Upstream(nil), opts.Upstreams...),
		interval:    interval,
		concurrency: opts.Concurrency,
		logger:      logger.Named("aggregator"),
		metrics:     opts.Metrics,
		gate:        NewRefreshGate(),
		stop:        make(chan struct{}),
		records:     records,
	}
}

// Start performs one synchronous refresh so the first caller never sees an
// empty catalog, then ticks in the background until Stop or ctx ends.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn("initial refresh failed", zap.Error(err))
	}

	go a.run(ctx)
	return nil
}

func (a *Aggregator) run(ctx context.Context) {
	for {
		timer := time.NewTimer(a.cycleInterval())
		select {
		case <-timer.C:
			if err := a.Refresh(ctx); err != nil {
				a.logger.Warn("refresh failed", zap.Error(err))
			}
		case <-a.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.started = false
	close(a.stop)
}

func (a *Aggregator) cycleInterval() time.Duration {
	interval := a.interval()
	if interval <= 0 {
		interval = time.Duration(domain.DefaultRefreshSeconds) * time.Second
	}
	return interval
}

// Refresh polls all upstreams in parallel and publishes the merged result.
// A refresh arriving while one is in flight returns ErrRefreshInFlight and
// does nothing.
func (a *Aggregator) Refresh(ctx context.Context) error {
	if !a.gate.TryAcquire() {
		return domain.ErrRefreshInFlight
	}
	defer a.gate.Release()

	if len(a.upstreams) == 0 {
		a.publish()
		return nil
	}

	type fetchResult struct {
		index    int
		snapshot *domain.CatalogSnapshot
		err      error
	}

	timeout := a.cycleInterval()
	workers := a.workerCount()
	jobs := make(chan int)
	results := make(chan fetchResult, len(a.upstreams))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case index, ok := <-jobs:
					if !ok {
						return
					}
					fetchCtx, cancel := context.WithTimeout(ctx, timeout)
					snap, err := a.upstreams[index].Source.EnsureFreshSnapshot(fetchCtx)
					cancel()
					results <- fetchResult{index: index, snapshot: snap, err: err}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for index := range a.upstreams {
			select {
			case jobs <- index:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		up := a.upstreams[res.index]
		a.recordOutcome(up.ID, res.snapshot, res.err)
		if a.metrics != nil {
			a.metrics.RecordUpstreamRefresh(up.ID, res.err)
		}
	}

	a.publish()
	return ctx.Err()
}

// recordOutcome drives the per-upstream Unknown → Healthy ⇄ Unhealthy state
// machine. A failed fetch keeps the last-known-good snapshot so transient
// outages do not remove an upstream's tools from the aggregate.
func (a *Aggregator) recordOutcome(id string, snapshot *domain.CatalogSnapshot, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := a.records[id]
	if record == nil {
		return
	}
	if err != nil {
		record.State = domain.UpstreamUnhealthy
		record.LastError = err.Error()
		a.logger.Warn("upstream refresh failed",
			zap.String("upstream", id),
			zap.Error(err),
		)
		return
	}
	record.State = domain.UpstreamHealthy
	record.LastError = ""
	record.LastSuccess = time.Now().UTC()
	record.LastSnapshot = snapshot
	record.ToolCount = len(snapshot.Tools)
}

// publish rebuilds the aggregate from the per-upstream records and swaps it
// in wholesale; there is no incremental patching.
func (a *Aggregator) publish() {
	a.mu.Lock()

	tools := make(map[string]domain.ToolDescriptor)
	healthy := 0
	versions := make([]string, 0, len(a.upstreams))

	for _, up := range a.upstreams {
		record := a.records[up.ID]
		if record == nil {
			continue
		}
		if record.State == domain.UpstreamHealthy {
			healthy++
		}
		if record.LastSnapshot == nil {
			continue
		}
		versions = append(versions, up.ID+":"+record.LastSnapshot.SourceVersion)

		names := make([]string, 0, len(record.LastSnapshot.Tools))
		for name := range record.LastSnapshot.Tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, taken := tools[name]; taken {
				a.logger.Debug("tool name shadowed by earlier upstream",
					zap.String("tool", name),
					zap.String("upstream", up.ID),
				)
				continue
			}
			descriptor := record.LastSnapshot.Tools[name]
			descriptor.Origin = up.ID
			tools[name] = descriptor
		}
	}
	a.mu.Unlock()

	snapshot := &domain.AggregatedSnapshot{
		CatalogSnapshot: domain.CatalogSnapshot{
			Tools:         tools,
			SourceVersion: aggregateVersion(versions),
			CreatedAt:     time.Now().UTC(),
			BuildID:       uuid.NewString(),
		},
		UpstreamCount:        len(a.upstreams),
		HealthyUpstreamCount: healthy,
	}
	a.current.Store(snapshot)
	if a.metrics != nil {
		a.metrics.SetHealthyUpstreams(healthy)
	}
	a.logger.Info("aggregated snapshot published",
		zap.Int("tools", len(tools)),
		zap.Int("upstreams", len(a.upstreams)),
		zap.Int("healthy", healthy),
	)
}

// EnsureFreshSnapshot exposes the unified snapshot through the same
// contract a single catalog provider offers. The aggregate refreshes on its
// own timer, so serving is just a pointer load; a cold aggregator (Start
// not yet called) refreshes once synchronously. A cold read that loses the
// gate to an in-flight cycle waits for that cycle's publish instead of
// starting another one.
func (a *Aggregator) EnsureFreshSnapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	if snap := a.current.Load(); snap != nil {
		return &snap.CatalogSnapshot, nil
	}
	if err := a.Refresh(ctx); err != nil {
		if !errors.Is(err, domain.ErrRefreshInFlight) {
			return nil, err
		}
		if err := a.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		a.gate.Release()
	}
	if snap := a.current.Load(); snap != nil {
		return &snap.CatalogSnapshot, nil
	}
	return nil, domain.ErrNoSnapshot
}

// Snapshot returns the current aggregate or nil before the first publish.
func (a *Aggregator) Snapshot() *domain.AggregatedSnapshot {
	return a.current.Load()
}

// Current satisfies the diagnostics snapshot-source contract.
func (a *Aggregator) Current() *domain.CatalogSnapshot {
	snap := a.current.Load()
	if snap == nil {
		return nil
	}
	return &snap.CatalogSnapshot
}

// UpstreamRecords reports per-upstream health in configured order.
func (a *Aggregator) UpstreamRecords() []domain.UpstreamRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.UpstreamRecord, 0, len(a.upstreams))
	for _, up := range a.upstreams {
		if record := a.records[up.ID]; record != nil {
			out = append(out, *record)
		}
	}
	return out
}

func (a *Aggregator) workerCount() int {
	limit := a.concurrency
	if limit <= 0 {
		limit = domain.DefaultRefreshConcurrency
	}
	if limit > len(a.upstreams) {
		limit = len(a.upstreams)
	}
	return limit
}

func aggregateVersion(parts []string) string {
	hasher := sha256.New()
	for _, part := range parts {
		_, _ = hasher.Write([]byte(part))
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
