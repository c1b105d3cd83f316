package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

type gatewayEntry struct {
	card     model.GatewayCard
	lastSeen time.Time
}

// OnRemovedFunc is fired outside any lock when a gateway entry is removed
// (spec §4.4 "fires an onRemoved callback outside any lock").
type OnRemovedFunc func(card model.GatewayCard)

// GatewayRegistry tracks discovered peer gateways, additionally computing
// TTL-based expiry against a configurable lease (default 90s).
type GatewayRegistry struct {
	cfg *config.RegistryConfig

	mu      sync.RWMutex
	entries map[string]*gatewayEntry

	snapshots *repository.CardSnapshotRepository

	onRemovedMu sync.RWMutex
	onRemoved   OnRemovedFunc

	now func() time.Time
}

func NewGatewayRegistry(cfg *config.RegistryConfig, snapshots *repository.CardSnapshotRepository) *GatewayRegistry {
	return &GatewayRegistry{
		cfg:       cfg,
		entries:   make(map[string]*gatewayEntry),
		snapshots: snapshots,
		now:       time.Now,
	}
}

// SetOnRemoved registers the callback fired after a gateway is removed.
func (r *GatewayRegistry) SetOnRemoved(fn OnRemovedFunc) {
	r.onRemovedMu.Lock()
	defer r.onRemovedMu.Unlock()
	r.onRemoved = fn
}

func (r *GatewayRegistry) AddOrUpdate(card model.GatewayCard) (isNew bool) {
	now := r.now()
	r.mu.Lock()
	e, exists := r.entries[card.Name]
	if !exists {
		e = &gatewayEntry{}
		r.entries[card.Name] = e
	}
	e.card = card
	e.lastSeen = now
	r.mu.Unlock()

	if r.snapshots != nil {
		if err := r.snapshots.UpsertGateway(context.Background(), &card); err != nil {
			slog.Warn("registry: persist gateway card snapshot failed", "gateway", card.Name, "error", err)
		}
	}
	return !exists
}

// Remove drops the entry and fires onRemoved outside the lock.
func (r *GatewayRegistry) Remove(name string) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.onRemovedMu.RLock()
	fn := r.onRemoved
	r.onRemovedMu.RUnlock()
	if fn != nil {
		fn(e.card)
	}
}

func (r *GatewayRegistry) Get(name string) (model.GatewayCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return model.GatewayCard{}, false
	}
	return e.card, true
}

func (r *GatewayRegistry) List() []model.GatewayCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.GatewayCard, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.card)
	}
	return out
}

func (r *GatewayRegistry) ttl() time.Duration {
	if r.cfg != nil && r.cfg.GatewayTTL > 0 {
		return r.cfg.GatewayTTL
	}
	return 90 * time.Second
}

// Health reports whether name's lease has expired and how long it has been
// since its last heartbeat.
func (r *GatewayRegistry) Health(name string) (isExpired bool, secondsSinceLastSeen float64, ok bool) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()
	if !exists {
		return true, 0, false
	}
	since := r.now().Sub(e.lastSeen)
	return since > r.ttl(), since.Seconds(), true
}

// SweepExpired removes every gateway whose lease has passed ttl, firing
// onRemoved for each — the periodic half of TTL-based expiry (the other
// half, Health, answers on-demand queries without mutating state).
func (r *GatewayRegistry) SweepExpired() {
	ttl := r.ttl()
	now := r.now()

	r.mu.Lock()
	var expired []string
	for name, e := range r.entries {
		if now.Sub(e.lastSeen) > ttl {
			expired = append(expired, name)
		}
	}
	r.mu.Unlock()

	for _, name := range expired {
		r.Remove(name)
	}
}
