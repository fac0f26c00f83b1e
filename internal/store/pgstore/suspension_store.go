package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/google/uuid"
)

// SuspensionStore is the Postgres-backed store.SuspensionStore.
type SuspensionStore struct{ db *DB }

// NewSuspensionStore builds a SuspensionStore over db.
func NewSuspensionStore(db *DB) *SuspensionStore { return &SuspensionStore{db: db} }

func (s *SuspensionStore) Insert(ctx context.Context, sus *domain.EnforcementSuspension) error {
	if sus.ID == "" {
		sus.ID = uuid.NewString()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO enforcement_suspensions (id, site_id, start_date, end_date, reason, created_by, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sus.ID, sus.SiteID, sus.StartDate, sus.EndDate, sus.Reason, sus.CreatedBy, sus.Active)
	return err
}

func (s *SuspensionStore) End(ctx context.Context, id string, endDate time.Time) (*domain.EnforcementSuspension, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		UPDATE enforcement_suspensions SET end_date = $2 WHERE id = $1
		RETURNING id, site_id, start_date, end_date, reason, created_by, active`,
		id, endDate)
	return scanSuspension(row)
}

func (s *SuspensionStore) MostRecentActiveAt(ctx context.Context, siteID string, t time.Time) (*domain.EnforcementSuspension, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, site_id, start_date, end_date, reason, created_by, active
		FROM enforcement_suspensions
		WHERE site_id = $1 AND active = TRUE AND start_date <= $2
		  AND (end_date IS NULL OR end_date >= $2)
		ORDER BY start_date DESC LIMIT 1`, siteID, t)
	return scanSuspension(row)
}

func scanSuspension(row scannable) (*domain.EnforcementSuspension, error) {
	var sus domain.EnforcementSuspension
	var endDate sql.NullTime

	err := row.Scan(&sus.ID, &sus.SiteID, &sus.StartDate, &endDate, &sus.Reason, &sus.CreatedBy, &sus.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan suspension: %w", err)
	}
	if endDate.Valid {
		v := endDate.Time
		sus.EndDate = &v
	}
	return &sus, nil
}
