package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/google/uuid"
)

// PermitStore is the Postgres-backed store.PermitStore.
type PermitStore struct{ db *DB }

// NewPermitStore builds a PermitStore over db.
func NewPermitStore(db *DB) *PermitStore { return &PermitStore{db: db} }

// Upsert writes a Permit keyed by externalID when present, else by
// (vrm, siteId, type), per spec §4.2.
func (s *PermitStore) Upsert(ctx context.Context, p *domain.Permit, externalID string) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshal permit metadata: %w", err)
	}

	var siteID interface{}
	if p.SiteID != "" {
		siteID = p.SiteID
	}
	var extID interface{}
	if externalID != "" {
		extID = externalID
	}

	if externalID != "" {
		_, err = s.db.conn.ExecContext(ctx, `
			INSERT INTO permits (id, external_id, vrm, site_id, type, active, start_date, end_date, source, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (external_id) DO UPDATE SET
				vrm = EXCLUDED.vrm, site_id = EXCLUDED.site_id, type = EXCLUDED.type,
				active = EXCLUDED.active, start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date, source = EXCLUDED.source, metadata = EXCLUDED.metadata`,
			p.ID, extID, p.VRM, siteID, string(p.Type), p.Active, p.StartDate, p.EndDate, p.Source, metadata)
	} else {
		_, err = s.db.conn.ExecContext(ctx, `
			INSERT INTO permits (id, external_id, vrm, site_id, type, active, start_date, end_date, source, metadata)
			VALUES ($1,NULL,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (vrm, site_id, type) WHERE external_id IS NULL DO UPDATE SET
				active = EXCLUDED.active, start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date, source = EXCLUDED.source, metadata = EXCLUDED.metadata`,
			p.ID, p.VRM, siteID, string(p.Type), p.Active, p.StartDate, p.EndDate, p.Source, metadata)
	}
	if err != nil {
		return fmt.Errorf("pgstore: upsert permit: %w", err)
	}
	return nil
}

// FindApplicable returns permits that could apply at time t for
// (vrm, siteID): global or scoped to siteID, active, in date range. The
// final AppliesAt check still runs in the rule engine; this query is a
// coarse pre-filter.
func (s *PermitStore) FindApplicable(ctx context.Context, vrm, siteID string, t time.Time) ([]domain.Permit, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, vrm, site_id, type, active, start_date, end_date, source, metadata
		FROM permits
		WHERE vrm = $1 AND (site_id IS NULL OR site_id = $2)
		  AND active = TRUE AND start_date <= $3 AND (end_date IS NULL OR end_date > $3)`,
		vrm, siteID, t)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find applicable permits: %w", err)
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		var p domain.Permit
		var siteIDCol sql.NullString
		var typ string
		var endDate sql.NullTime
		var metadata []byte

		if err := rows.Scan(&p.ID, &p.VRM, &siteIDCol, &typ, &p.Active, &p.StartDate, &endDate, &p.Source, &metadata); err != nil {
			return nil, fmt.Errorf("pgstore: scan permit: %w", err)
		}
		p.Type = domain.PermitType(typ)
		if siteIDCol.Valid {
			p.SiteID = siteIDCol.String
		}
		if endDate.Valid {
			v := endDate.Time
			p.EndDate = &v
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &p.Metadata)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
