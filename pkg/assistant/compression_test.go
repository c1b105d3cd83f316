package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractArtifactRefs(t *testing.T) {
	text := "See the report at artifact://abc-123 and the chart artifact://def-456, thanks."
	refs := extractArtifactRefs(text)
	assert.Equal(t, []string{"artifact://abc-123", "artifact://def-456"}, refs)
}

func TestExtractArtifactRefsNoneFound(t *testing.T) {
	assert.Empty(t, extractArtifactRefs("nothing referenced here"))
}

func TestCompressionServiceSummarizeWithoutClientErrors(t *testing.T) {
	svc := NewCompressionService(nil)
	_, _, err := svc.Summarize(t.Context(), nil, "untitled", "", "")
	assert.Error(t, err)
}
