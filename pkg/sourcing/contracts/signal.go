// Package contracts defines the wire and storage types shared across the
// discovery engine: signals, source assets, asset-to-lead links, suppression
// entries, CRM outbox records, and pipeline runs.
package contracts

import "time"

// ProcessingStatus tracks what has happened to a Signal after it was
// recorded. Signals are append-only except for this field and the CRM
// reference it unlocks.
type ProcessingStatus string

const (
	StatusPending ProcessingStatus = "pending"
	StatusPushed  ProcessingStatus = "pushed"
	StatusRejected ProcessingStatus = "rejected"
)

// Signal is a single observation from one source, keyed to a canonical
// company identity. SignalType is a free-form vocabulary term (e.g.
// "github_spike", "incorporation", "hiring_signal", "company_dissolved")
// used by the verification gate to group, decay, and weight observations.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Signal struct {
	ID              string           `json:"id"`
	SignalType      string           `json:"signal_type"`
	SourceAPI       string           `json:"source_api"`
	CanonicalKey    string           `json:"canonical_key"`
	Confidence      float64          `json:"confidence"`
	RawData         map[string]any   `json:"raw_data"`
	CompanyName     string           `json:"company_name,omitempty"`
	DetectedAt      time.Time        `json:"detected_at"`
	CreatedAt       time.Time        `json:"created_at"`
	Status          ProcessingStatus `json:"status"`
	NotionPageID    string           `json:"notion_page_id,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// PreviousSnapshotKey is the reserved RawData key a collector sets to carry
// the prior observation alongside the current one, so SignalProcessor can
// diff them without a second store round trip.
const PreviousSnapshotKey = "_previous_snapshot"

// CurrentSnapshot returns RawData with PreviousSnapshotKey removed, the view
// TriggerGate compares against the previous snapshot.
func (s Signal) CurrentSnapshot() map[string]any {
	out := make(map[string]any, len(s.RawData))
	for k, v := range s.RawData {
		if k == PreviousSnapshotKey {
			continue
		}
		out[k] = v
	}
	return out
}

// PreviousSnapshot extracts the embedded prior snapshot, if any.
func (s Signal) PreviousSnapshot() (map[string]any, bool) {
	raw, ok := s.RawData[PreviousSnapshotKey]
	if !ok {
		return nil, false
	}
	snap, ok := raw.(map[string]any)
	return snap, ok
}
