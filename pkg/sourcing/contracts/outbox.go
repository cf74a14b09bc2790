package contracts

import "time"

// OutboxStatus is the lifecycle state of a queued CRM write.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxRecord is a durable queued write to the CRM. Exactly one record is
// marked Sent per prospect push after the CRM connector acknowledges it;
// failures are retried with backoff until the record succeeds or is given
// up on by an operator.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type OutboxRecord struct {
	ID            string         `json:"id"`
	CanonicalKey  string         `json:"canonical_key"`
	Payload       map[string]any `json:"payload"`
	SignalIDs     []string       `json:"signal_ids"`
	Status        OutboxStatus   `json:"status"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Ready reports whether the record is due for another drain attempt.
func (r OutboxRecord) Ready(now time.Time) bool {
	if r.Status == OutboxSent {
		return false
	}
	return !r.NextAttemptAt.After(now)
}
