// Package conversation implements SessionService of spec §4.5: session
// lifecycle, the opaque chat-task bubble upsert, and compress-and-branch.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// Page is a generic pagination envelope (spec §6.1 `{data, meta}`).
type Page[T any] struct {
	Data        []T
	TotalCount  int64
	PageNumber  int
	PageSize    int
}

func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	pages := int(p.TotalCount) / p.PageSize
	if int(p.TotalCount)%p.PageSize != 0 {
		pages++
	}
	return pages
}

func (p Page[T]) NextPage() *int {
	if p.PageNumber < p.TotalPages() {
		next := p.PageNumber + 1
		return &next
	}
	return nil
}

// Service is SessionService.
type Service struct {
	sessions  *repository.SessionRepository
	chatTasks *repository.ChatTaskRepository
	projects  *repository.ProjectRepository

	now func() int64
}

func NewService(sessions *repository.SessionRepository, chatTasks *repository.ChatTaskRepository, projects *repository.ProjectRepository) *Service {
	return &Service{
		sessions:  sessions,
		chatTasks: chatTasks,
		projects:  projects,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// IsValidSessionID rejects the sentinel strings the frontend sometimes
// sends for an unset session (spec §4.5 "Validation").
func IsValidSessionID(id string) bool {
	return id != "" && id != "null" && id != "undefined"
}

// GetUserSessions is getUserSessions: paginated, project-filterable, with
// projectName enriched in one additional batch lookup.
func (s *Service) GetUserSessions(ctx context.Context, userID string, pageNumber, pageSize int, projectID *string) (Page[*model.Session], map[string]string, error) {
	limit, offset := pageSize, (pageNumber-1)*pageSize
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessions.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return Page[*model.Session]{}, nil, fmt.Errorf("list user sessions: %w", err)
	}
	if projectID != nil {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.ProjectID != nil && *sess.ProjectID == *projectID {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	total, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return Page[*model.Session]{}, nil, fmt.Errorf("count user sessions: %w", err)
	}

	projectNames := make(map[string]string)
	for _, sess := range sessions {
		if sess.ProjectID == nil {
			continue
		}
		if _, ok := projectNames[*sess.ProjectID]; ok {
			continue
		}
		p, err := s.projects.Get(ctx, *sess.ProjectID)
		if err == nil {
			projectNames[*sess.ProjectID] = p.Name
		}
	}

	return Page[*model.Session]{Data: sessions, TotalCount: total, PageNumber: pageNumber, PageSize: pageSize}, projectNames, nil
}

// SearchSessions is searchSessions: name-only search, paginated.
func (s *Service) SearchSessions(ctx context.Context, userID, query string, pageNumber, pageSize int) (Page[*model.Session], error) {
	limit, offset := pageSize, (pageNumber-1)*pageSize
	if offset < 0 {
		offset = 0
	}
	sessions, total, err := s.sessions.SearchByName(ctx, userID, query, limit, offset)
	if err != nil {
		return Page[*model.Session]{}, fmt.Errorf("search sessions: %w", err)
	}
	return Page[*model.Session]{Data: sessions, TotalCount: total, PageNumber: pageNumber, PageSize: pageSize}, nil
}

// GetSession loads a single session, rejecting invalid/sentinel ids as
// not-found rather than a bad request (spec §4.5 "map to 404").
func (s *Service) GetSession(ctx context.Context, userID, id string) (*model.Session, error) {
	if !IsValidSessionID(id) {
		return nil, errs.New(errs.NotFound, "session not found")
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, errs.New(errs.NotFound, "session not found")
	}
	return sess, nil
}

// CreateSession creates a new session owned by userID.
func (s *Service) CreateSession(ctx context.Context, userID string, name, agentID, projectID *string) (*model.Session, error) {
	now := s.now()
	sess := &model.Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		AgentID:     agentID,
		ProjectID:   projectID,
		CreatedTime: now,
		UpdatedTime: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// UpdateSessionName renames a session the caller owns.
func (s *Service) UpdateSessionName(ctx context.Context, userID, id, name string) error {
	if _, err := s.GetSession(ctx, userID, id); err != nil {
		return err
	}
	return s.sessions.UpdateName(ctx, id, name, s.now())
}

// SoftDeleteSession marks a session deleted without removing it.
func (s *Service) SoftDeleteSession(ctx context.Context, userID, id string) error {
	if _, err := s.GetSession(ctx, userID, id); err != nil {
		return err
	}
	return s.sessions.SoftDelete(ctx, id, s.now())
}

// MoveSessionToProject reassigns a session's project.
func (s *Service) MoveSessionToProject(ctx context.Context, userID, id string, projectID *string) error {
	if _, err := s.GetSession(ctx, userID, id); err != nil {
		return err
	}
	return s.sessions.MoveToProject(ctx, id, projectID, s.now())
}

// SaveTask is saveTask: an idempotent ChatTask upsert. messageBubbles and
// taskMetadata are opaque strings (spec §3, §9) never parsed here. Session
// updatedTime is touched on every save.
func (s *Service) SaveTask(ctx context.Context, taskID, sessionID, userID string, userMessage *string, messageBubbles, taskMetadata string) (*model.ChatTask, error) {
	if !IsValidSessionID(sessionID) {
		return nil, errs.New(errs.NotFound, "session not found")
	}
	now := s.now()
	task := &model.ChatTask{
		ID:             taskID,
		SessionID:      sessionID,
		UserID:         userID,
		UserMessage:    userMessage,
		MessageBubbles: messageBubbles,
		TaskMetadata:   taskMetadata,
		CreatedTime:    now,
		UpdatedTime:    &now,
	}
	if err := s.chatTasks.Upsert(ctx, task); err != nil {
		return nil, fmt.Errorf("save chat task: %w", err)
	}
	if err := s.sessions.Touch(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return task, nil
}

// GetSessionTasks returns a session's ChatTasks in chronological order.
func (s *Service) GetSessionTasks(ctx context.Context, sessionID string) ([]*model.ChatTask, error) {
	return s.chatTasks.ListBySession(ctx, sessionID)
}

// FlattenedMessage is one entry of the legacy flattened message view.
type FlattenedMessage struct {
	ID          string `json:"id"`
	TaskID      string `json:"taskId"`
	SessionID   string `json:"sessionId"`
	Bubbles     string `json:"bubbles"` // opaque, as stored
	CreatedTime int64  `json:"createdTime"`
}

// GetSessionMessagesFromTasks flattens a session's ChatTasks into the
// legacy message list for backwards compatibility (spec §4.5).
func (s *Service) GetSessionMessagesFromTasks(ctx context.Context, sessionID string) ([]FlattenedMessage, error) {
	tasks, err := s.GetSessionTasks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]FlattenedMessage, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FlattenedMessage{
			ID:          t.ID,
			TaskID:      t.ID,
			SessionID:   t.SessionID,
			Bubbles:     t.MessageBubbles,
			CreatedTime: t.CreatedTime,
		})
	}
	return out, nil
}
