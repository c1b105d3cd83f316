// Package registry implements the AgentRegistry and GatewayRegistry of spec
// §4.4: in-memory peer tracking discovered from heartbeat cards, with
// TTL/retry-based eviction.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

type agentEntry struct {
	card       model.AgentCard
	retryCount int
}

// AgentRegistry tracks discovered agents from heartbeat cards. Missed
// heartbeats are tallied by an external health checker via
// RecordMissedHeartbeat; any received heartbeat resets the counter.
type AgentRegistry struct {
	cfg *config.RegistryConfig

	mu      sync.RWMutex
	entries map[string]*agentEntry

	snapshots *repository.CardSnapshotRepository
}

func NewAgentRegistry(cfg *config.RegistryConfig, snapshots *repository.CardSnapshotRepository) *AgentRegistry {
	return &AgentRegistry{
		cfg:       cfg,
		entries:   make(map[string]*agentEntry),
		snapshots: snapshots,
	}
}

// WarmStart loads the last-seen card snapshot for every agent so the
// registry has something to answer with immediately after a restart,
// before any live heartbeat arrives.
func (r *AgentRegistry) WarmStart(ctx context.Context) error {
	cards, err := r.snapshots.ListAgents(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cards {
		r.entries[c.Name] = &agentEntry{card: *c}
	}
	return nil
}

// AddOrUpdate upserts a card and reports whether the agent is newly seen.
// Any heartbeat resets the agent's retry counter.
func (r *AgentRegistry) AddOrUpdate(card model.AgentCard) (isNew bool) {
	r.mu.Lock()
	e, exists := r.entries[card.Name]
	if !exists {
		e = &agentEntry{}
		r.entries[card.Name] = e
	}
	e.card = card
	e.retryCount = 0
	r.mu.Unlock()

	if r.snapshots != nil {
		if err := r.snapshots.UpsertAgent(context.Background(), &card); err != nil {
			slog.Warn("registry: persist agent card snapshot failed", "agent", card.Name, "error", err)
		}
	}
	return !exists
}

// Remove drops an agent entry.
func (r *AgentRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Get returns a copy of the named agent's card.
func (r *AgentRegistry) Get(name string) (model.AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return model.AgentCard{}, false
	}
	return e.card, true
}

// List returns every currently tracked agent card.
func (r *AgentRegistry) List() []model.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AgentCard, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.card)
	}
	return out
}

// RecordMissedHeartbeat increments name's retry counter and evicts it once
// the configured bound is exceeded, stepping log severity at 10 and 20
// retries (spec §4.4 "AgentRegistry retry model").
func (r *AgentRegistry) RecordMissedHeartbeat(name string) (evicted bool) {
	maxRetries := 30
	if r.cfg != nil && r.cfg.MaxMissedHeartbeats > 0 {
		maxRetries = r.cfg.MaxMissedHeartbeats
	}

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	e.retryCount++
	count := e.retryCount
	if count > maxRetries {
		delete(r.entries, name)
		r.mu.Unlock()
		slog.Error("registry: agent evicted after exceeding missed-heartbeat bound", "agent", name, "retries", count)
		return true
	}
	r.mu.Unlock()

	switch {
	case count >= 20:
		slog.Error("registry: agent missing heartbeats", "agent", name, "retries", count)
	case count >= 10:
		slog.Warn("registry: agent missing heartbeats", "agent", name, "retries", count)
	default:
		slog.Debug("registry: agent missed heartbeat", "agent", name, "retries", count)
	}
	return false
}
