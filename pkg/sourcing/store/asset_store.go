package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// SaveAsset inserts a new source-asset snapshot and returns its
// generated ID. Source assets are append-only: a new fetch never
// overwrites the previous one, it adds a row next to it so change
// detection can diff the two.
func (s *Store) SaveAsset(ctx context.Context, asset contracts.SourceAsset) (int64, error) {
	rawJSON, err := json.Marshal(asset.RawPayload)
	if err != nil {
		return 0, fmt.Errorf("store: marshal asset raw_payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO source_assets (source_type, external_id, raw_payload, fetched_at, change_detected, created_at)
		VALUES (%s, %s, %s, %s, %s, %s)
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6))

	createdAt := asset.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if s.Dialect == DialectPostgres {
		var id int64
		err := s.DB.QueryRowContext(ctx, query+" RETURNING id",
			asset.SourceType, asset.ExternalID, rawJSON, asset.FetchedAt, asset.ChangeDetected, createdAt).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("store: save asset %s/%s: %w", asset.SourceType, asset.ExternalID, err)
		}
		return id, nil
	}

	result, err := s.DB.ExecContext(ctx, query,
		asset.SourceType, asset.ExternalID, rawJSON, asset.FetchedAt, asset.ChangeDetected, createdAt)
	if err != nil {
		return 0, fmt.Errorf("store: save asset %s/%s: %w", asset.SourceType, asset.ExternalID, err)
	}
	return result.LastInsertId()
}

// GetLatestSnapshot returns the newest row recorded for (sourceType,
// externalID), the "current" observation a collector compares new data
// against.
func (s *Store) GetLatestSnapshot(ctx context.Context, sourceType, externalID string) (*contracts.SourceAsset, error) {
	return s.snapshotAtOffset(ctx, sourceType, externalID, 0)
}

// GetPreviousSnapshot returns the row recorded immediately before the
// latest one, mirroring the original collector's
// "ORDER BY fetched_at DESC LIMIT 1 OFFSET 1" query: the basis for
// TriggerGate's before/after diff. Returns contracts.ErrNotFound when
// fewer than two snapshots exist yet.
func (s *Store) GetPreviousSnapshot(ctx context.Context, sourceType, externalID string) (*contracts.SourceAsset, error) {
	return s.snapshotAtOffset(ctx, sourceType, externalID, 1)
}

func (s *Store) snapshotAtOffset(ctx context.Context, sourceType, externalID string, offset int) (*contracts.SourceAsset, error) {
	query := fmt.Sprintf(`
		SELECT id, source_type, external_id, raw_payload, fetched_at, change_detected, created_at, archived_at, archive_ref
		FROM source_assets
		WHERE source_type = %s AND external_id = %s
		ORDER BY fetched_at DESC
		LIMIT 1 OFFSET %d
	`, s.placeholder(1), s.placeholder(2), offset)

	row := s.DB.QueryRowContext(ctx, query, sourceType, externalID)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: snapshot %s/%s offset %d: %w", sourceType, externalID, offset, err)
	}
	return asset, nil
}

func scanAsset(row *sql.Row) (*contracts.SourceAsset, error) {
	var (
		asset      contracts.SourceAsset
		rawJSON    []byte
		archivedAt sql.NullTime
		archiveRef sql.NullString
	)
	if err := row.Scan(&asset.ID, &asset.SourceType, &asset.ExternalID, &rawJSON, &asset.FetchedAt,
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
	return &asset, nil
}

// MarkArchived records that asset's raw payload was mirrored to cold
// storage at ref.
func (s *Store) MarkArchived(ctx context.Context, assetID int64, ref string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE source_assets SET archived_at = %s, archive_ref = %s WHERE id = %s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	_, err := s.DB.ExecContext(ctx, query, at, ref, assetID)
	if err != nil {
		return fmt.Errorf("store: mark asset %d archived: %w", assetID, err)
	}
	return nil
}

// UnarchivedAssets returns up to limit assets with no archive_ref yet,
// oldest first, for the archiver job to drain.
func (s *Store) UnarchivedAssets(ctx context.Context, limit int) ([]contracts.SourceAsset, error) {
	query := fmt.Sprintf(`
		SELECT id, source_type, external_id, raw_payload, fetched_at, change_detected, created_at, archived_at, archive_ref
		FROM source_assets
		WHERE archived_at IS NULL
		ORDER BY created_at ASC
		LIMIT %s
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query unarchived assets: %w", err)
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

// IsFirstSighting records externalID as seen for sourceType and reports
// whether this is the first time, using asset_registry as a compact
// dedup index cheaper to scan than the full source_assets history.
func (s *Store) IsFirstSighting(ctx context.Context, sourceType, externalID string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO asset_registry (source_type, external_id, first_seen_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (source_type, external_id) DO NOTHING
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3))
	result, err := s.DB.ExecContext(ctx, query, sourceType, externalID, now)
	if err != nil {
		return false, fmt.Errorf("store: register sighting %s/%s: %w", sourceType, externalID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
