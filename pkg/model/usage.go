package model

// MonthlyUsage is a cost aggregate per (user, month) (spec §3).
type MonthlyUsage struct {
	UserID          string         `json:"userId"`
	Month           string         `json:"month"` // "2026-07"
	TotalUsage      int64          `json:"totalUsage"`
	PromptUsage     int64          `json:"promptUsage"`
	CompletionUsage int64          `json:"completionUsage"`
	CachedUsage     int64          `json:"cachedUsage"`
	UsageByModel    map[string]int64 `json:"usageByModel,omitempty"`
	UsageBySource   map[string]int64 `json:"usageBySource,omitempty"`
	CreatedAt       int64          `json:"createdAt"`
	UpdatedAt       int64          `json:"updatedAt"`
}

// TransactionType classifies a TokenTransaction.
type TransactionType string

const (
	TransactionPrompt     TransactionType = "prompt"
	TransactionCompletion TransactionType = "completion"
	TransactionCached     TransactionType = "cached"
)

// TokenTransaction is an audit row per LLM call (spec §3). tokenCost is in
// credits where 1,000,000 credits = $1.
type TokenTransaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	TaskID          *string         `json:"taskId,omitempty"`
	TransactionType TransactionType `json:"transactionType"`
	Model           string          `json:"model"`
	RawTokens       int64           `json:"rawTokens"`
	TokenCost       int64           `json:"tokenCost"`
	Rate            float64         `json:"rate"`
	Source          string          `json:"source"`
	ToolName        *string         `json:"toolName,omitempty"`
	Context         map[string]any  `json:"context,omitempty"`
	CreatedAt       int64           `json:"createdAt"`
}

// UserQuota is the shape of a per-user monthly credit ceiling ([NEW] per
// SPEC_FULL.md §3.1). It has no backing table and nothing reads it; the
// dispatcher's advisory check uses QuotaConfig.DefaultMonthlyCredits.
type UserQuota struct {
	UserID         string `json:"userId"`
	MonthlyCredits int64  `json:"monthlyCredits"`
}
