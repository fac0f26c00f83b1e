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

// PaymentStore is the Postgres-backed store.PaymentStore.
type PaymentStore struct{ db *DB }

// NewPaymentStore builds a PaymentStore over db.
func NewPaymentStore(db *DB) *PaymentStore { return &PaymentStore{db: db} }

func (s *PaymentStore) FindByDedupeKey(ctx context.Context, externalRef, source string) (*domain.Payment, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, vrm, site_id, amount, start_time, expiry_time, source, external_reference
		FROM payments WHERE external_reference = $1 AND source = $2`, externalRef, source)
	return scanPayment(row)
}

func (s *PaymentStore) Insert(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO payments (id, vrm, site_id, amount, start_time, expiry_time, source, external_reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.VRM, p.SiteID, p.Amount, p.StartTime, p.ExpiryTime, p.Source, p.ExternalReference)
	return err
}

// FindCovering returns a coarse overlap pre-filter (any payment window
// touching [mandatoryStart, mandatoryEnd]); the rule engine applies the
// exact clause-4/clause-6 comparisons in Go.
func (s *PaymentStore) FindCovering(ctx context.Context, vrm, siteID string, mandatoryStart, mandatoryEnd time.Time) ([]domain.Payment, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, vrm, site_id, amount, start_time, expiry_time, source, external_reference
		FROM payments
		WHERE vrm = $1 AND site_id = $2 AND start_time <= $4 AND expiry_time >= $3`,
		vrm, siteID, mandatoryStart, mandatoryEnd)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find covering payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PaymentStore) ExistsForSite(ctx context.Context, siteID string) (bool, error) {
	var exists bool
	err := s.db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE site_id = $1)`, siteID).Scan(&exists)
	return exists, err
}

func scanPayment(row scannable) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.VRM, &p.SiteID, &p.Amount, &p.StartTime, &p.ExpiryTime, &p.Source, &p.ExternalReference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan payment: %w", err)
	}
	return &p, nil
}
