package store

import (
	"context"
	"fmt"

	"github.com/sourcingengine/core/pkg/sourcing/founder"
)

// FoundersForKey returns every founder record associated with
// canonicalKey, feeding the verification gate's optional founder boost.
func (s *Store) FoundersForKey(ctx context.Context, canonicalKey string) ([]founder.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, name, faang_experience, serial_founder, linkedin_url
		FROM founders
		WHERE canonical_key = %s
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("store: query founders for %s: %w", canonicalKey, err)
	}
	defer rows.Close()

	type row struct {
		id int64
		r  founder.Record
	}
	var founderRows []row
	for rows.Next() {
		var fr row
		if err := rows.Scan(&fr.id, &fr.r.Name, &fr.r.FAANGExperience, &fr.r.SerialFounder, &fr.r.LinkedInURL); err != nil {
			return nil, err
		}
		founderRows = append(founderRows, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]founder.Record, 0, len(founderRows))
	for _, fr := range founderRows {
		companies, err := s.priorCompanies(ctx, fr.id)
		if err != nil {
			return nil, err
		}
		fr.r.PriorCompanies = companies
		out = append(out, fr.r)
	}
	return out, nil
}

func (s *Store) priorCompanies(ctx context.Context, founderID int64) ([]string, error) {
	query := fmt.Sprintf(`SELECT company_name FROM founder_experiences WHERE founder_id = %s`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, founderID)
	if err != nil {
		return nil, fmt.Errorf("store: query founder experiences for %d: %w", founderID, err)
	}
	defer rows.Close()

	var companies []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// SaveFounder inserts fr under canonicalKey and returns its generated
// ID, recording its prior-company experiences alongside it.
func (s *Store) SaveFounder(ctx context.Context, canonicalKey string, fr founder.Record) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO founders (canonical_key, name, faang_experience, serial_founder, linkedin_url)
		VALUES (%s, %s, %s, %s, %s)
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))

	var id int64
	if s.Dialect == DialectPostgres {
		if err := s.DB.QueryRowContext(ctx, query+" RETURNING id",
			canonicalKey, fr.Name, fr.FAANGExperience, fr.SerialFounder, nullableString(fr.LinkedInURL)).Scan(&id); err != nil {
			return 0, fmt.Errorf("store: save founder %s: %w", fr.Name, err)
		}
	} else {
		result, err := s.DB.ExecContext(ctx, query, canonicalKey, fr.Name, fr.FAANGExperience, fr.SerialFounder, nullableString(fr.LinkedInURL))
		if err != nil {
			return 0, fmt.Errorf("store: save founder %s: %w", fr.Name, err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, err
		}
	}

	for _, company := range fr.PriorCompanies {
		expQuery := fmt.Sprintf(`INSERT INTO founder_experiences (founder_id, company_name) VALUES (%s, %s)`,
			s.placeholder(1), s.placeholder(2))
		if _, err := s.DB.ExecContext(ctx, expQuery, id, company); err != nil {
			return 0, fmt.Errorf("store: save founder experience %s: %w", company, err)
		}
	}
	return id, nil
}
