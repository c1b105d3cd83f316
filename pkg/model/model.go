// Package model defines the persisted entities of the gateway core.
// Timestamps are epoch milliseconds (int64) unless noted; IDs are opaque
// strings. Field shapes are grounded on the teacher's ent schema
// (ent/schema/*.go) adapted to this spec's entity set — see DESIGN.md.
package model

// Session is a user conversation container (spec §3).
type Session struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	Name               *string        `json:"name,omitempty"`
	AgentID            *string        `json:"agentId,omitempty"`
	ProjectID          *string        `json:"projectId,omitempty"`
	CreatedTime        int64          `json:"createdTime"`
	UpdatedTime        int64          `json:"updatedTime"`
	GatewayType        *string        `json:"gatewayType,omitempty"`
	ExternalContextID  *string        `json:"externalContextId,omitempty"`
	IsCompressionBranch bool          `json:"isCompressionBranch"`
	CompressionMetadata *CompressionMetadata `json:"compressionMetadata,omitempty"`
	DeletedAt          *int64         `json:"-"`
}

// CompressionMetadata records the provenance of a compression-branch session.
type CompressionMetadata struct {
	ParentSessionID       string   `json:"parentSessionId"`
	CompressedMessageCount int     `json:"compressedMessageCount"`
	EstimatedTokens       int      `json:"estimatedTokens"`
	ArtifactRefs          []string `json:"artifactRefs,omitempty"`
	CreatedAt             int64    `json:"createdAt"`
}

// ChatTask is one user/agent exchange rendered by the frontend. messageBubbles
// and taskMetadata are opaque to the core (spec §3, §9 "Dynamically typed
// payloads"): never parsed here beyond being valid JSON text.
type ChatTask struct {
	ID              string  `json:"id"`
	SessionID       string  `json:"sessionId"`
	UserID          string  `json:"userId"`
	UserMessage     *string `json:"userMessage,omitempty"`
	MessageBubbles  string  `json:"messageBubbles"`
	TaskMetadata    string  `json:"taskMetadata,omitempty"`
	CreatedTime     int64   `json:"createdTime"`
	UpdatedTime     *int64  `json:"updatedTime,omitempty"`
}

// TaskStatus is the lifecycle status of an audited Task.
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusRunning     TaskStatus = "running"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusCancelled   TaskStatus = "cancelled"
	TaskStatusTimeout     TaskStatus = "timeout"
	TaskStatusInterrupted TaskStatus = "interrupted"
)

// Task is the audit record of one A2A task (spec §3).
type Task struct {
	ID                         string     `json:"id"`
	UserID                     string     `json:"userId"`
	SessionID                  string     `json:"sessionId,omitempty"`
	StartTime                  int64      `json:"startTime"`
	EndTime                    *int64     `json:"endTime,omitempty"`
	Status                     TaskStatus `json:"status,omitempty"`
	InitialRequestText         *string    `json:"initialRequestText,omitempty"`
	AgentName                  *string    `json:"agentName,omitempty"`
	BackgroundExecutionEnabled bool       `json:"backgroundExecutionEnabled"`
	MaxExecutionTimeMs         *int64     `json:"maxExecutionTimeMs,omitempty"`
	LastActivityTime           int64      `json:"lastActivityTime"`
	HasBufferedEvents          bool       `json:"-"`
}

// EventDirection classifies a TaskEvent's origin.
type EventDirection string

const (
	DirectionRequest      EventDirection = "request"
	DirectionResponse     EventDirection = "response"
	DirectionStatusUpdate EventDirection = "status_update"
)

// TaskEvent is a single append-only bus message tied to a Task (spec §3).
type TaskEvent struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"taskId"`
	UserID      *string        `json:"userId,omitempty"`
	CreatedTime int64          `json:"createdTime"`
	Topic       string         `json:"topic"`
	Direction   EventDirection `json:"direction"`
	Payload     []byte         `json:"payload"`
}

// FeedbackRating is the up/down rating on a task.
type FeedbackRating string

const (
	RatingUp   FeedbackRating = "up"
	RatingDown FeedbackRating = "down"
)

// Feedback is an up/down rating on a task (spec §3).
type Feedback struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	TaskID      string         `json:"taskId"`
	UserID      string         `json:"userId"`
	Rating      FeedbackRating `json:"rating"`
	Comment     *string        `json:"comment,omitempty"`
	CreatedTime int64          `json:"createdTime"`
}

// Project is a named system-prompt container (spec §3).
type Project struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	UserID         string  `json:"userId"`
	Description    *string `json:"description,omitempty"`
	SystemPrompt   *string `json:"systemPrompt,omitempty"`
	DefaultAgentID *string `json:"defaultAgentId,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      *int64  `json:"updatedAt,omitempty"`
	DeletedAt      *int64  `json:"-"`
}

// ProjectRole is a member's access level on a shared Project ([NEW] per
// SPEC_FULL.md §3.1 — the sharing relation spec.md names but never models).
type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "owner"
	ProjectRoleEditor ProjectRole = "editor"
	ProjectRoleViewer ProjectRole = "viewer"
)

// ProjectUser is a project-sharing membership row ([NEW]).
type ProjectUser struct {
	ProjectID string      `json:"projectId"`
	UserID    string      `json:"userId"`
	Role      ProjectRole `json:"role"`
	AddedAt   int64       `json:"addedAt"`
}
