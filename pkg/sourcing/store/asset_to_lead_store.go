package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// CurrentLink returns the active AssetToLead link for (sourceType,
// externalID), if any.
func (s *Store) CurrentLink(ctx context.Context, sourceType, externalID string) (*contracts.AssetToLead, error) {
	query := fmt.Sprintf(`
		SELECT id, asset_id, source_type, external_id, lead_canonical_key, confidence, resolved_by, resolved_at, metadata
		FROM asset_to_lead
		WHERE source_type = %s AND external_id = %s
	`, s.placeholder(1), s.placeholder(2))
	row := s.DB.QueryRowContext(ctx, query, sourceType, externalID)

	var (
		link       contracts.AssetToLead
		resolvedBy string
		metaJSON   sql.NullString
	)
	err := row.Scan(&link.ID, &link.AssetID, &link.SourceType, &link.ExternalID, &link.LeadCanonicalKey,
		&link.Confidence, &resolvedBy, &link.ResolvedAt, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: current link %s/%s: %w", sourceType, externalID, err)
	}
	link.ResolvedBy = contracts.ResolvedBy(resolvedBy)
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &link.Metadata); err != nil {
			return nil, fmt.Errorf("store: corrupt link metadata for %s/%s: %w", sourceType, externalID, err)
		}
	}
	return &link, nil
}

// UpsertLink replaces the active link for the asset if candidate wins
// under AssetToLead.ShouldReplace, matching the entity resolver's
// precedence rule at the persistence boundary instead of trusting every
// caller to re-check it.
func (s *Store) UpsertLink(ctx context.Context, candidate contracts.AssetToLead) (bool, error) {
	existing, err := s.CurrentLink(ctx, candidate.SourceType, candidate.ExternalID)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return false, err
	}
	if err == nil && !candidate.ShouldReplace(existing) {
		return false, nil
	}

	metaJSON, err := json.Marshal(candidate.Metadata)
	if err != nil {
		return false, fmt.Errorf("store: marshal link metadata: %w", err)
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM asset_to_lead WHERE source_type = %s AND external_id = %s`,
		s.placeholder(1), s.placeholder(2))
	if _, err := s.DB.ExecContext(ctx, deleteQuery, candidate.SourceType, candidate.ExternalID); err != nil {
		return false, fmt.Errorf("store: clear prior link for %s/%s: %w", candidate.SourceType, candidate.ExternalID, err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO asset_to_lead (asset_id, source_type, external_id, lead_canonical_key, confidence, resolved_by, resolved_at, metadata)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8))
	_, err = s.DB.ExecContext(ctx, insertQuery,
		candidate.AssetID, candidate.SourceType, candidate.ExternalID, candidate.LeadCanonicalKey,
		candidate.Confidence, string(candidate.ResolvedBy), candidate.ResolvedAt, metaJSON)
	if err != nil {
		return false, fmt.Errorf("store: insert link for %s/%s: %w", candidate.SourceType, candidate.ExternalID, err)
	}
	return true, nil
}

// GetLeadForAsset returns the canonical key (source_type, externalID) is
// currently linked to, provided the link's confidence meets
// minConfidence. The second return value is false when there is no
// active link, or its confidence falls short.
func (s *Store) GetLeadForAsset(ctx context.Context, sourceType, externalID string, minConfidence float64) (string, bool, error) {
	link, err := s.CurrentLink(ctx, sourceType, externalID)
	if errors.Is(err, contracts.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if link.Confidence < minConfidence {
		return "", false, nil
	}
	return link.LeadCanonicalKey, true, nil
}

// GetAssetsForLead returns every active link pointing at canonicalKey,
// newest first.
func (s *Store) GetAssetsForLead(ctx context.Context, canonicalKey string) ([]contracts.AssetToLead, error) {
	query := fmt.Sprintf(`
		SELECT id, asset_id, source_type, external_id, lead_canonical_key, confidence, resolved_by, resolved_at, metadata
		FROM asset_to_lead
		WHERE lead_canonical_key = %s
		ORDER BY resolved_at DESC
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("store: query links for %s: %w", canonicalKey, err)
	}
	defer rows.Close()

	var out []contracts.AssetToLead
	for rows.Next() {
		var (
			link       contracts.AssetToLead
			resolvedBy string
			metaJSON   sql.NullString
		)
		if err := rows.Scan(&link.ID, &link.AssetID, &link.SourceType, &link.ExternalID, &link.LeadCanonicalKey,
			&link.Confidence, &resolvedBy, &link.ResolvedAt, &metaJSON); err != nil {
			return nil, err
		}
		link.ResolvedBy = contracts.ResolvedBy(resolvedBy)
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &link.Metadata); err != nil {
				return nil, fmt.Errorf("store: corrupt link metadata for %s: %w", canonicalKey, err)
			}
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

// GetUnresolvedAssets returns up to limit source assets with no
// asset_to_lead row yet, oldest first, the backlog the entity resolver
// has not yet had a chance to link.
func (s *Store) GetUnresolvedAssets(ctx context.Context, limit int) ([]contracts.SourceAsset, error) {
	query := fmt.Sprintf(`
		SELECT sa.id, sa.source_type, sa.external_id, sa.raw_payload, sa.fetched_at, sa.change_detected, sa.created_at, sa.archived_at, sa.archive_ref
		FROM source_assets sa
		WHERE NOT EXISTS (
			SELECT 1 FROM asset_to_lead atl
			WHERE atl.source_type = sa.source_type AND atl.external_id = sa.external_id
		)
		ORDER BY sa.created_at ASC
		LIMIT %s
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query unresolved assets: %w", err)
	}
	defer rows.Close()

	var out []contracts.SourceAsset
	for rows.Next() {
		var (
			asset      contracts.SourceAsset
			rawJSON    []byte
			archivedAt sql.NullTime
			archiveRef sql.NullString
		)
		if err := rows.Scan(&asset.ID, &asset.SourceType, &asset.ExternalID, &rawJSON, &asset.FetchedAt,
			&asset.ChangeDetected, &asset.CreatedAt, &archivedAt, &archiveRef); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawJSON, &asset.RawPayload); err != nil {
			return nil, fmt.Errorf("store: corrupt raw_payload for asset %d: %w", asset.ID, err)
		}
		if archivedAt.Valid {
			asset.ArchivedAt = &archivedAt.Time
		}
		asset.ArchiveRef = archiveRef.String
		out = append(out, asset)
	}
	return out, rows.Err()
}
