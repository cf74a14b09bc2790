package contracts

import "time"

// SuppressionEntry caches canonical keys already present in the external
// CRM, so the orchestrator never re-pushes a company the CRM already
// tracks. Entries with ExpiresAt in the past are treated as absent by
// readers even before a sweep physically removes them.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type SuppressionEntry struct {
	CanonicalKey string    `json:"canonical_key"`
	CRMPageID    string    `json:"crm_page_id"`
	CRMStatus    string    `json:"crm_status"`
	CompanyName  string    `json:"company_name,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry should be treated as absent as of now.
func (e SuppressionEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
