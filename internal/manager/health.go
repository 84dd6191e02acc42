package manager

import "context"

// HealthTick probes every active deployment once. A deployment is marked
// degraded after ProbeFailureThreshold consecutive failures and spun down
// after twice the threshold; one successful probe fully recovers it.
func (m *Manager) HealthTick(ctx context.Context) {
	m.mu.RLock()
	targets := make([]*Deployment, 0, len(m.deployments))
	for _, d := range m.deployments {
		if d.State == StateRunning || d.State == StateDegraded {
			targets = append(targets, d)
		}
	}
	m.mu.RUnlock()

	for _, d := range targets {
		err := m.cfg.Prober.Health(ctx, d.Port)

		m.mu.Lock()
		if cur, ok := m.deployments[d.ModelID]; !ok || cur != d {
			m.mu.Unlock()
			continue
		}
		if err == nil {
			if d.State == StateDegraded {
				m.log.Info().Str("model", d.ModelID).Msg("deployment recovered")
			}
			d.probeFailures = 0
			d.State = StateRunning
			m.mu.Unlock()
			continue
		}

		d.probeFailures++
		probeFailuresTotal.WithLabelValues(d.ModelID).Inc()
		failures := d.probeFailures
		m.mu.Unlock()

		m.log.Warn().Err(err).
			Str("model", d.ModelID).
			Int("consecutive_failures", failures).
			Msg("health probe failed")

		switch {
		case failures >= 2*m.cfg.ProbeFailureThreshold:
			m.log.Error().Str("model", d.ModelID).Msg("deployment unresponsive, spinning down")
			if _, sderr := m.Spindown(ctx, d.ModelID); sderr != nil {
				m.log.Error().Err(sderr).Str("model", d.ModelID).Msg("spindown of unresponsive deployment failed")
			}
		case failures >= m.cfg.ProbeFailureThreshold:
			m.mu.Lock()
			if cur, ok := m.deployments[d.ModelID]; ok && cur == d && d.State == StateRunning {
				d.State = StateDegraded
			}
			m.mu.Unlock()
		}
	}
}
