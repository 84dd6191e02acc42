package manager

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"blackboxd/pkg/types"
)

// SnapshotSource produces telemetry snapshots. Implemented by the telemetry
// collector.
type SnapshotSource interface {
	Collect(ctx context.Context) types.VRAMSnapshot
}

// Run drives the background work until ctx is cancelled: one loop polls
// telemetry and feeds the sampler, another probes deployment health and
// runs the optimization pass. Per-tick failures are logged, never fatal.
func (m *Manager) Run(ctx context.Context, source SnapshotSource, pollEvery, healthEvery time.Duration) error {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	if healthEvery <= 0 {
		healthEvery = 5 * time.Second
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(pollEvery)
		defer ticker.Stop()
		m.ObserveSnapshot(source.Collect(ctx))
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				m.ObserveSnapshot(source.Collect(ctx))
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(healthEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				m.HealthTick(ctx)
				if res := m.Optimize(ctx); res.Optimized {
					m.log.Info().
						Strs("restarted", res.RestartedModels).
						Msg(res.Message)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
