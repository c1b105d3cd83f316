package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// Summarizer asks an LLM to produce a compressed summary of a flattened
// message list. pkg/assistant's CompressionService implements this; the
// interface lives here so pkg/conversation has no import on pkg/assistant
// (spec §4.9's LLM summarization is an implementation detail of the
// compress-and-branch flow, not a dependency of it).
type Summarizer interface {
	Summarize(ctx context.Context, messages []SummaryMessage, sourceSessionName string, provider, model string) (summaryText string, artifactRefs []string, err error)
}

// SummaryMessage is one flattened message handed to the summarizer.
type SummaryMessage struct {
	Role    string
	Text    string
	Created int64
}

// CompressAndBranchResult is the (newSession, summaryTask, compressedMessageCount) triple.
type CompressAndBranchResult struct {
	NewSession            *model.Session
	SummaryTask           *model.ChatTask
	CompressedMessageCount int
}

// CompressionOptions carries compressAndBranchSession's optional params.
type CompressionOptions struct {
	AgentID     *string
	BranchName  *string
	LLMProvider string
	LLMModel    string
}

// CompressAndBranchSession implements spec §4.5's five-step compress-and-branch
// flow, grounded on original_source's session_service.compress_and_branch_session.
// The source session is never modified.
func (s *Service) CompressAndBranchSession(ctx context.Context, userID, sourceSessionID string, opts CompressionOptions, summarizer Summarizer, cfg *config.ConversationConfig) (*CompressAndBranchResult, error) {
	source, err := s.GetSession(ctx, userID, sourceSessionID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.chatTasks.ListBySession(ctx, sourceSessionID)
	if err != nil {
		return nil, fmt.Errorf("list source session tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, errs.New(errs.BadRequest, "session has no tasks to compress")
	}

	messages := flattenTasksToMessages(tasks)

	summaryText, artifactRefs, err := s.summarize(ctx, summarizer, messages, source, opts)
	if err != nil || summaryText == "" {
		fallbackEnabled := cfg == nil || cfg.CompressionFallbackEnabled
		if !fallbackEnabled {
			return nil, fmt.Errorf("summarization failed and fallback is disabled: %w", err)
		}
		summaryText, artifactRefs = structuredFallbackSummary(messages, source)
	}

	estimatedTokens := estimateTokens(summaryText)

	now := s.now()
	newSession := &model.Session{
		ID:                  uuid.New().String(),
		UserID:              userID,
		Name:                branchSessionName(opts.BranchName, source),
		AgentID:             coalesceAgentID(opts.AgentID, source.AgentID),
		ProjectID:           source.ProjectID,
		CreatedTime:         now,
		UpdatedTime:         now,
		IsCompressionBranch: true,
		CompressionMetadata: &model.CompressionMetadata{
			ParentSessionID:        source.ID,
			CompressedMessageCount: len(messages),
			EstimatedTokens:        estimatedTokens,
			ArtifactRefs:           artifactRefs,
		},
	}
	if err := s.sessions.Create(ctx, newSession); err != nil {
		return nil, fmt.Errorf("create compression branch session: %w", err)
	}

	bubble := formatSummaryBubble(summaryText)
	summaryTask := &model.ChatTask{
		ID:             uuid.New().String(),
		SessionID:      newSession.ID,
		UserID:         userID,
		MessageBubbles: bubble,
		TaskMetadata:   `{"role":"system","kind":"compression-summary"}`,
		CreatedTime:    now,
		UpdatedTime:    &now,
	}
	if err := s.chatTasks.Create(ctx, summaryTask); err != nil {
		return nil, fmt.Errorf("create summary task: %w", err)
	}

	return &CompressAndBranchResult{
		NewSession:             newSession,
		SummaryTask:            summaryTask,
		CompressedMessageCount: len(messages),
	}, nil
}

func (s *Service) summarize(ctx context.Context, summarizer Summarizer, messages []SummaryMessage, source *model.Session, opts CompressionOptions) (string, []string, error) {
	if summarizer == nil {
		return "", nil, fmt.Errorf("no summarizer configured")
	}
	name := "(untitled session)"
	if source.Name != nil {
		name = *source.Name
	}
	return summarizer.Summarize(ctx, messages, name, opts.LLMProvider, opts.LLMModel)
}

func flattenTasksToMessages(tasks []*model.ChatTask) []SummaryMessage {
	out := make([]SummaryMessage, 0, len(tasks)*2)
	for _, t := range tasks {
		if t.UserMessage != nil && *t.UserMessage != "" {
			out = append(out, SummaryMessage{Role: "user", Text: *t.UserMessage, Created: t.CreatedTime})
		}
		out = append(out, SummaryMessage{Role: "assistant", Text: t.MessageBubbles, Created: t.CreatedTime})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out
}

// structuredFallbackSummary builds a deterministic summary when the LLM
// summarizer is unavailable or fails (spec §4.9 "fallback to a structured
// summary using keyword-topic extraction and first/last message excerpts").
func structuredFallbackSummary(messages []SummaryMessage, source *model.Session) (string, []string) {
	name := "(untitled session)"
	if source.Name != nil {
		name = *source.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation: %s\n", name)
	fmt.Fprintf(&b, "Messages: %d\n\n", len(messages))

	topics := extractTopics(messages)
	if len(topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n\n", strings.Join(topics, ", "))
	}

	if first := firstNonEmpty(messages); first != "" {
		fmt.Fprintf(&b, "First message: %s\n", truncate(first, 280))
	}
	if last := lastNonEmpty(messages); last != "" {
		fmt.Fprintf(&b, "Last message: %s\n", truncate(last, 280))
	}

	return b.String(), extractArtifactRefs(messages)
}

func extractTopics(messages []SummaryMessage) []string {
	freq := make(map[string]int)
	for _, m := range messages {
		for _, word := range strings.Fields(m.Text) {
			word = strings.ToLower(strings.Trim(word, ".,!?:;\"'()"))
			if len(word) < 5 || isStopword(word) {
				continue
			}
			freq[word]++
		}
	}
	type kv struct {
		word  string
		count int
	}
	var ranked []kv
	for w, c := range freq {
		if c > 1 {
			ranked = append(ranked, kv{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	var out []string
	for i, r := range ranked {
		if i >= 5 {
			break
		}
		out = append(out, r.word)
	}
	return out
}

var stopwords = map[string]bool{
	"about": true, "which": true, "there": true, "their": true, "would": true,
	"could": true, "should": true, "these": true, "those": true, "where": true,
}

func isStopword(w string) bool { return stopwords[w] }

func firstNonEmpty(messages []SummaryMessage) string {
	for _, m := range messages {
		if strings.TrimSpace(m.Text) != "" {
			return m.Text
		}
	}
	return ""
}

func lastNonEmpty(messages []SummaryMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].Text) != "" {
			return messages[i].Text
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractArtifactRefs pulls any referenced artifact ids out of message
// text looking for the conventional "artifact://<id>" form.
func extractArtifactRefs(messages []SummaryMessage) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range messages {
		for _, word := range strings.Fields(m.Text) {
			if strings.HasPrefix(word, "artifact://") && !seen[word] {
				seen[word] = true
				refs = append(refs, word)
			}
		}
	}
	return refs
}

// estimateTokens is the len/4 heuristic (spec §4.9).
func estimateTokens(text string) int {
	return len(text) / 4
}

func formatSummaryBubble(summary string) string {
	now := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf(`[{"type":"text","content":"📋 **Conversation Summary** (generated %s)\n\n%s"}]`, now, escapeForBubble(summary))
}

func escapeForBubble(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func branchSessionName(requested *string, source *model.Session) *string {
	if requested != nil && *requested != "" {
		return requested
	}
	base := "session"
	if source.Name != nil {
		base = *source.Name
	}
	name := base + " (compressed)"
	return &name
}

func coalesceAgentID(requested, fallback *string) *string {
	if requested != nil {
		return requested
	}
	return fallback
}
