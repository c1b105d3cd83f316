package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDashboardEventTypeConstants(t *testing.T) {
	types := []string{
		EventTypeTaskStatus,
		EventTypeTaskFinal,
		EventTypeSchedulerStatus,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ, "event type should not be empty")
		assert.False(t, seen[typ], "duplicate event type: %s", typ)
		seen[typ] = true
	}
}

func TestDashboardChannel(t *testing.T) {
	assert.Equal(t, "dashboard", DashboardChannel)
}
