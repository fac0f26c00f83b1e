package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PlateReviewStore is the Postgres-backed store.PlateReviewStore.
type PlateReviewStore struct{ db *DB }

// NewPlateReviewStore builds a PlateReviewStore over db.
func NewPlateReviewStore(db *DB) *PlateReviewStore { return &PlateReviewStore{db: db} }

func (s *PlateReviewStore) Insert(ctx context.Context, r *domain.PlateReview) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	images, err := json.Marshal(r.Images)
	if err != nil {
		return fmt.Errorf("pgstore: marshal review images: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO plate_reviews
			(id, movement_id, original_vrm, normalized_vrm, site_id, ts,
			 suspicion_reasons, validation_status, review_status, corrected_vrm, images, discard_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.MovementID, r.OriginalVRM, r.NormalizedVRM, r.SiteID, r.Timestamp,
		pq.Array(r.SuspicionReasons), string(r.ValidationStatus), string(r.ReviewStatus),
		r.CorrectedVRM, images, r.DiscardReason)
	return err
}

func (s *PlateReviewStore) Get(ctx context.Context, id string) (*domain.PlateReview, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, movement_id, original_vrm, normalized_vrm, site_id, ts,
		       suspicion_reasons, validation_status, review_status, corrected_vrm, images, discard_reason
		FROM plate_reviews WHERE id = $1`, id)
	return scanReview(row)
}

func (s *PlateReviewStore) FindByMovement(ctx context.Context, movementID string) (*domain.PlateReview, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, movement_id, original_vrm, normalized_vrm, site_id, ts,
		       suspicion_reasons, validation_status, review_status, corrected_vrm, images, discard_reason
		FROM plate_reviews WHERE movement_id = $1`, movementID)
	return scanReview(row)
}

func (s *PlateReviewStore) Update(ctx context.Context, r *domain.PlateReview) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE plate_reviews SET review_status = $2, corrected_vrm = $3, discard_reason = $4
		WHERE id = $1`, r.ID, string(r.ReviewStatus), r.CorrectedVRM, r.DiscardReason)
	return err
}

func (s *PlateReviewStore) FindPendingByReason(ctx context.Context, reason string, limit int) ([]domain.PlateReview, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, movement_id, original_vrm, normalized_vrm, site_id, ts,
		       suspicion_reasons, validation_status, review_status, corrected_vrm, images, discard_reason
		FROM plate_reviews
		WHERE review_status = 'PENDING' AND $1 = ANY(suspicion_reasons)
		LIMIT $2`, reason, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find pending reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.PlateReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReview(row scannable) (*domain.PlateReview, error) {
	var r domain.PlateReview
	var validationStatus, reviewStatus string
	var reasons []string
	var correctedVRM sql.NullString
	var images []byte
	var discardReason sql.NullString

	err := row.Scan(&r.ID, &r.MovementID, &r.OriginalVRM, &r.NormalizedVRM, &r.SiteID, &r.Timestamp,
		pq.Array(&reasons), &validationStatus, &reviewStatus, &correctedVRM, &images, &discardReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan plate review: %w", err)
	}

	r.SuspicionReasons = reasons
	r.ValidationStatus = domain.ValidationStatus(validationStatus)
	r.ReviewStatus = domain.ReviewStatus(reviewStatus)
	if correctedVRM.Valid {
		v := correctedVRM.String
		r.CorrectedVRM = &v
	}
	if discardReason.Valid {
		r.DiscardReason = discardReason.String
	}
	if len(images) > 0 {
		_ = json.Unmarshal(images, &r.Images)
	}
	return &r, nil
}
