package contracts

import "time"

// SourceAsset is a raw snapshot of an upstream entity at a point in time.
// Multiple rows accumulate for the same (SourceType, ExternalID) pair,
// forming an append-only, time-ordered history; the newest row is
// "current", the row before it is "previous" and is the basis for change
// detection.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type SourceAsset struct {
	ID             int64          `json:"id"`
	SourceType     string         `json:"source_type"`
	ExternalID     string         `json:"external_id"`
	RawPayload     map[string]any `json:"raw_payload"`
	FetchedAt      time.Time      `json:"fetched_at"`
	ChangeDetected bool           `json:"change_detected"`
	CreatedAt      time.Time      `json:"created_at"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
	ArchiveRef     string         `json:"archive_ref,omitempty"`
}

// ResolvedBy enumerates how an AssetToLead link was established.
type ResolvedBy string

const (
	ResolvedByDomainMatch    ResolvedBy = "domain_match"
	ResolvedByOrgMatch       ResolvedBy = "org_match"
	ResolvedByNameSimilarity ResolvedBy = "name_similarity"
	ResolvedByHeuristic      ResolvedBy = "heuristic"
	ResolvedByManual         ResolvedBy = "manual"
)

// AssetToLead links a SourceAsset to a canonical lead key. For a given
// (SourceType, ExternalID) at most one link is active: manual links
// outrank all others, and among non-manual links the highest-confidence
// link wins.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type AssetToLead struct {
	ID               int64          `json:"id"`
	AssetID          int64          `json:"asset_id"`
	SourceType       string         `json:"source_type"`
	ExternalID       string         `json:"external_id"`
	LeadCanonicalKey string         `json:"lead_canonical_key"`
	Confidence       float64        `json:"confidence"`
	ResolvedBy       ResolvedBy     `json:"resolved_by"`
	ResolvedAt       time.Time      `json:"resolved_at"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ShouldReplace implements the AssetToLead precedence rule: a manual link
// always wins; otherwise the candidate replaces the existing link only if
// the existing link is non-manual and the candidate has strictly higher
// confidence.
func (candidate AssetToLead) ShouldReplace(existing *AssetToLead) bool {
	if existing == nil {
		return true
	}
	if candidate.ResolvedBy == ResolvedByManual {
		return true
	}
	if existing.ResolvedBy == ResolvedByManual {
		return false
	}
	return candidate.Confidence > existing.Confidence
}
