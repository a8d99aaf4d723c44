package models

import "time"

// Run outcomes
const (
	OutcomeOK         = "ok"
	OutcomeAuthFailed = "auth_failed"
	OutcomeFailed     = "failed"
)

// Run is the bookkeeping record for one pipeline invocation
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	PastDue    bool      `json:"past_due"`
	Outcome    string    `json:"outcome"`
	Format     string    `json:"format"`
	Since      string    `json:"since,omitempty"` // YYYY-MM-DD
	Until      string    `json:"until,omitempty"` // YYYY-MM-DD
	Points     int       `json:"points"`
	Rows       int       `json:"rows"`
	Bytes      int       `json:"bytes"` // compressed artifact size
	Published  bool      `json:"published"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the run took
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
