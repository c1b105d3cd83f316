package scheduler

import "fmt"

// agentRequestTopic mirrors pkg/dispatch's topic taxonomy (spec §6.2).
func agentRequestTopic(namespace, agentName string) string {
	return fmt.Sprintf("%sa2a/v1/agent/%s/request", namespace, agentName)
}

// executionResponseTopic is this gateway instance's scheduler execution
// response topic — distinct from pkg/dispatch's own per-instance response
// topic so a scheduled firing's reply never lands in a chat submission's
// Await() waiter map, and vice versa (see DESIGN.md).
func executionResponseTopic(namespace, instanceID string) string {
	return fmt.Sprintf("%sa2a/v1/scheduler/execresponse/%s", namespace, instanceID)
}
