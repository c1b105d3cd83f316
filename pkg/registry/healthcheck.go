package registry

import (
	"context"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
)

// HealthChecker periodically sweeps the gateway registry for expired
// leases and feeds agent-side heartbeat misses into AgentRegistry's retry
// model (spec §4.4). An agent misses a heartbeat on any tick where its card's
// last-seen time has not advanced since the previous tick, since — unlike
// gateways — AgentRegistry models eviction via a retry counter rather than a
// lease.
type HealthChecker struct {
	cfg       *config.RegistryConfig
	agents    *AgentRegistry
	gateways  *GatewayRegistry
	lastSeen  map[string]time.Time
	interval  time.Duration
}

func NewHealthChecker(cfg *config.RegistryConfig, agents *AgentRegistry, gateways *GatewayRegistry) *HealthChecker {
	interval := 15 * time.Second
	if cfg != nil && cfg.HealthCheckInterval > 0 {
		interval = cfg.HealthCheckInterval
	}
	return &HealthChecker{
		cfg:      cfg,
		agents:   agents,
		gateways: gateways,
		lastSeen: make(map[string]time.Time),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *HealthChecker) tick() {
	h.gateways.SweepExpired()

	seenThisTick := make(map[string]bool)
	for _, a := range h.agents.List() {
		seenThisTick[a.Name] = true
		if a.LastSeen > h.lastSeen[a.Name].UnixMilli() {
			h.lastSeen[a.Name] = time.UnixMilli(a.LastSeen)
			continue
		}
		h.agents.RecordMissedHeartbeat(a.Name)
	}
	for name := range h.lastSeen {
		if !seenThisTick[name] {
			delete(h.lastSeen, name)
		}
	}
}
