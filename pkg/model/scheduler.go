package model

// ScheduleType is the trigger kind of a ScheduledTask.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOneTime  ScheduleType = "one_time"
)

// NotificationConfig controls where execution notifications are sent. The
// exact channel/template content is out of spec scope; only the shape is
// modeled (spec §3 "ScheduledTask... notificationConfig?").
type NotificationConfig struct {
	OnSuccess []string `json:"onSuccess,omitempty"`
	OnFailure []string `json:"onFailure,omitempty"`
}

// MessagePart is one part of an A2A message (text or opaque structured data).
type MessagePart struct {
	Kind string `json:"kind"` // "text" | "data"
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// ScheduledTask is a trigger definition (spec §3).
type ScheduledTask struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Namespace          string              `json:"namespace"`
	UserID             *string             `json:"userId,omitempty"` // nil = namespace-level
	CreatedBy          string              `json:"createdBy"`
	ScheduleType       ScheduleType        `json:"scheduleType"`
	ScheduleExpression string              `json:"scheduleExpression"`
	Timezone           string              `json:"timezone"`
	TargetAgentName    string              `json:"targetAgentName"`
	TaskMessage        []MessagePart       `json:"taskMessage"`
	TaskMetadata       map[string]any      `json:"taskMetadata,omitempty"`
	Enabled            bool                `json:"enabled"`
	MaxRetries         int                 `json:"maxRetries"`
	RetryDelaySeconds  int                 `json:"retryDelaySeconds"`
	TimeoutSeconds     int                 `json:"timeoutSeconds"`
	NotificationConfig *NotificationConfig `json:"notificationConfig,omitempty"`
	CreatedAt          int64               `json:"createdAt"`
	UpdatedAt          int64               `json:"updatedAt"`
	NextRunAt          *int64              `json:"nextRunAt,omitempty"`
	LastRunAt          *int64              `json:"lastRunAt,omitempty"`
	DeletedAt          *int64              `json:"-"`
}

// ExecutionStatus is the lifecycle status of one ScheduledTaskExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimeout   ExecutionStatus = "timeout"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionArtifact is a materialized artifact reference on a completed execution.
type ExecutionArtifact struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// ScheduledTaskExecution is one firing of a ScheduledTask (spec §3).
type ScheduledTaskExecution struct {
	ID                string              `json:"id"`
	ScheduledTaskID   string              `json:"scheduledTaskId"`
	Status            ExecutionStatus     `json:"status"`
	A2ATaskID         *string             `json:"a2aTaskId,omitempty"`
	ScheduledFor      int64               `json:"scheduledFor"`
	StartedAt         *int64              `json:"startedAt,omitempty"`
	CompletedAt       *int64              `json:"completedAt,omitempty"`
	ResultSummary     map[string]any      `json:"resultSummary,omitempty"`
	ErrorMessage      *string             `json:"errorMessage,omitempty"`
	RetryCount        int                 `json:"retryCount"`
	Artifacts         []ExecutionArtifact `json:"artifacts,omitempty"`
	NotificationsSent []string            `json:"notificationsSent,omitempty"`
}

// SchedulerLock is the single-row leader-election lock (spec §3).
type SchedulerLock struct {
	ID              int    `json:"id"` // always 1
	LeaderID        string `json:"leaderId"`
	LeaderNamespace string `json:"leaderNamespace"`
	AcquiredAt      int64  `json:"acquiredAt"`
	ExpiresAt       int64  `json:"expiresAt"`
	HeartbeatAt     int64  `json:"heartbeatAt"`
}
