package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/meshgate/pkg/bus"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// Topic taxonomy from spec §6.2, extended to the card heartbeat channels
// ("AgentRegistry ◄── Bus (agent card heartbeats)", spec §2 diagram).

func agentHeartbeatTopic(namespace string) string {
	return fmt.Sprintf("%sa2a/v1/registry/agent/heartbeat", namespace)
}

func gatewayHeartbeatTopic(namespace string) string {
	return fmt.Sprintf("%sa2a/v1/registry/gateway/heartbeat", namespace)
}

// SubscribeAgentHeartbeats wires the bus's agent-card heartbeat topic into
// the registry's upsert path. Each message is a JSON-encoded AgentCard.
func SubscribeAgentHeartbeats(ctx context.Context, b bus.Bus, namespace string, reg *AgentRegistry) (bus.Unsubscribe, error) {
	return b.Subscribe(ctx, agentHeartbeatTopic(namespace), func(msg bus.Message) {
		var card model.AgentCard
		if err := json.Unmarshal(msg.Payload, &card); err != nil {
			slog.Warn("registry: malformed agent card heartbeat", "error", err)
			return
		}
		reg.AddOrUpdate(card)
	})
}

// SubscribeGatewayHeartbeats wires the bus's gateway-card heartbeat topic
// into the registry's upsert path. Each message is a JSON-encoded GatewayCard.
func SubscribeGatewayHeartbeats(ctx context.Context, b bus.Bus, namespace string, reg *GatewayRegistry) (bus.Unsubscribe, error) {
	return b.Subscribe(ctx, gatewayHeartbeatTopic(namespace), func(msg bus.Message) {
		var card model.GatewayCard
		if err := json.Unmarshal(msg.Payload, &card); err != nil {
			slog.Warn("registry: malformed gateway card heartbeat", "error", err)
			return
		}
		reg.AddOrUpdate(card)
	})
}
