package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/conversation"
)

const compressionSystemPrompt = `You summarize a chat conversation so it can be used as context for a fresh, branched session.

Produce a concise summary covering:
- What the user was trying to accomplish
- Key decisions, facts, or values established during the conversation
- Any artifacts (files, reports, code) that were produced, referenced by their artifact:// URI if given
- Open threads that still need attention

Write plain text, not JSON. Be factual; do not invent details that weren't in the conversation.`

// CompressionService implements pkg/conversation.Summarizer (spec §4.9
// "CompressionService"), grounded on the nil-safe LLM-caller-with-fallback
// pattern of pkg/agent/memory_compressor.go's LLMCompressor.
type CompressionService struct {
	client *client
}

var _ conversation.Summarizer = (*CompressionService)(nil)

// NewCompressionService builds a CompressionService from gateway.yaml's llm
// section. It returns a usable (always-erroring) service when llm.enabled
// is false or no API key is configured — conversation.Service treats any
// Summarize failure as "fall back to structuredFallbackSummary".
func NewCompressionService(cfg *config.LLMConfig) *CompressionService {
	c, err := newClient(cfg)
	if err != nil {
		return &CompressionService{client: nil}
	}
	return &CompressionService{client: c}
}

func (s *CompressionService) Summarize(ctx context.Context, messages []conversation.SummaryMessage, sourceSessionName string, provider, model string) (string, []string, error) {
	if s.client == nil {
		return "", nil, fmt.Errorf("compression service has no configured LLM client")
	}

	var transcript strings.Builder
	fmt.Fprintf(&transcript, "Conversation %q:\n\n", sourceSessionName)
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Text)
	}

	summary, err := s.client.complete(ctx, compressionSystemPrompt, []Message{{Role: "user", Text: transcript.String()}})
	if err != nil {
		return "", nil, err
	}

	return summary, extractArtifactRefs(summary), nil
}

// extractArtifactRefs collects the distinct artifact:// words of the LLM's
// free-text summary, in order of first appearance. Unlike pkg/conversation's
// extraction for the deterministic fallback, it first trims surrounding
// ".,;:()" from each word.
func extractArtifactRefs(text string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:()")
		if strings.HasPrefix(word, "artifact://") && !seen[word] {
			seen[word] = true
			refs = append(refs, word)
		}
	}
	return refs
}
