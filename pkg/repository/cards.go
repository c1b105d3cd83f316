package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// CardSnapshotRepository persists the last-seen snapshot of each
// AgentRegistry/GatewayRegistry entry for dashboard history and, for agents
// only, warm restart; the registries themselves remain the in-memory source of truth
// during normal operation (spec §4.4).
type CardSnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewCardSnapshotRepository(pool *pgxpool.Pool) *CardSnapshotRepository {
	return &CardSnapshotRepository{pool: pool}
}

func (r *CardSnapshotRepository) UpsertAgent(ctx context.Context, c *model.AgentCard) error {
	caps, err := json.Marshal(c.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal agent capabilities: %w", err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal agent metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO agent_cards (name, capabilities, metadata, extensions, last_seen)
		VALUES ($1,$2,$3,'{}',$4)
		ON CONFLICT (name) DO UPDATE SET capabilities = EXCLUDED.capabilities, metadata = EXCLUDED.metadata, last_seen = EXCLUDED.last_seen`,
		c.Name, caps, meta, c.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert agent card: %w", err)
	}
	return nil
}

func (r *CardSnapshotRepository) UpsertGateway(ctx context.Context, c *model.GatewayCard) error {
	caps, err := json.Marshal(c.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal gateway capabilities: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO gateway_cards (name, capabilities, gateway_type, namespace, deployment_id, last_seen)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET capabilities = EXCLUDED.capabilities, gateway_type = EXCLUDED.gateway_type,
			namespace = EXCLUDED.namespace, deployment_id = EXCLUDED.deployment_id, last_seen = EXCLUDED.last_seen`,
		c.Name, caps, c.GatewayType, c.Namespace, c.DeploymentID, c.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert gateway card: %w", err)
	}
	return nil
}

// ListAgents returns every persisted agent snapshot, used to warm the
// in-memory AgentRegistry on startup before live heartbeats arrive.
func (r *CardSnapshotRepository) ListAgents(ctx context.Context) ([]*model.AgentCard, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, capabilities, metadata, last_seen FROM agent_cards`)
	if err != nil {
		return nil, fmt.Errorf("list agent cards: %w", err)
	}
	defer rows.Close()

	var out []*model.AgentCard
	for rows.Next() {
		var c model.AgentCard
		var caps, meta []byte
		if err := rows.Scan(&c.Name, &caps, &meta, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("scan agent card: %w", err)
		}
		if err := json.Unmarshal(caps, &c.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal agent capabilities: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &c.Metadata)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
