package types //nolint:revive // package name is intentional

import "time"

// ChatResult is the normalized outcome of a successful dispatch.
type ChatResult struct {
	Content    string        `json:"content"`
	TokensUsed int           `json:"tokens_used"`
	Elapsed    time.Duration `json:"elapsed"`

	// Confidence is a fixed heuristic per dialect, not a model signal.
	Confidence float64 `json:"confidence"`

	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Quota     *QuotaView `json:"quota,omitempty"`
	Attempts  int        `json:"attempts"`
	RequestID string     `json:"request_id,omitempty"`
}

// QuotaView is a read-only snapshot of a provider's daily quota record.
type QuotaView struct {
	Provider    string    `json:"provider"`
	CanUse      bool      `json:"can_use"`
	Used        int       `json:"used"`
	DailyLimit  *int      `json:"daily_limit"`
	ResetAt     time.Time `json:"reset_at"`
	LastError   string    `json:"last_error,omitempty"`
	DisplayName string    `json:"display_name"`
	Icon        string    `json:"icon,omitempty"`
}

// Remaining returns the calls left today, or -1 when unmetered.
func (q QuotaView) Remaining() int {
	if q.DailyLimit == nil {
		return -1
	}
	if left := *q.DailyLimit - q.Used; left > 0 {
		return left
	}
	return 0
}
