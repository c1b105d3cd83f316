package dispatch

import "fmt"

// Topic taxonomy from spec §6.2 ("namespace has a trailing slash").

func agentRequestTopic(namespace, agentName string) string {
	return fmt.Sprintf("%sa2a/v1/agent/%s/request", namespace, agentName)
}

func schedulerResponseTopic(namespace, instanceID string) string {
	return fmt.Sprintf("%sa2a/v1/scheduler/response/%s", namespace, instanceID)
}
