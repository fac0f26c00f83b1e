package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/google/uuid"
)

// MovementStore is the Postgres-backed store.MovementStore.
type MovementStore struct{ db *DB }

// NewMovementStore builds a MovementStore over db.
func NewMovementStore(db *DB) *MovementStore { return &MovementStore{db: db} }

func (s *MovementStore) FindByNaturalKey(ctx context.Context, siteID, vrm string, ts time.Time) (*domain.Movement, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, site_id, vrm, ts, camera_id, direction, raw_payload, images,
		       confidence, requires_review, discarded, created_at
		FROM movements WHERE site_id = $1 AND vrm = $2 AND ts = $3`,
		siteID, vrm, ts)
	return scanMovement(row)
}

func (s *MovementStore) Get(ctx context.Context, id string) (*domain.Movement, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, site_id, vrm, ts, camera_id, direction, raw_payload, images,
		       confidence, requires_review, discarded, created_at
		FROM movements WHERE id = $1`, id)
	return scanMovement(row)
}

func (s *MovementStore) Insert(ctx context.Context, m *domain.Movement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	rawPayload, err := json.Marshal(m.RawPayload)
	if err != nil {
		return fmt.Errorf("pgstore: marshal raw payload: %w", err)
	}
	images, err := json.Marshal(m.Images)
	if err != nil {
		return fmt.Errorf("pgstore: marshal images: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO movements
			(id, site_id, vrm, ts, camera_id, direction, raw_payload, images,
			 confidence, requires_review, discarded, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.SiteID, m.VRM, m.Timestamp, m.CameraID, string(m.Direction),
		rawPayload, images, m.Confidence, m.RequiresReview, m.Discarded, m.CreatedAt)
	return err
}

func (s *MovementStore) Update(ctx context.Context, m *domain.Movement) error {
	images, err := json.Marshal(m.Images)
	if err != nil {
		return fmt.Errorf("pgstore: marshal images: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx, `
		UPDATE movements SET images = $2, requires_review = $3, discarded = $4, vrm = $5
		WHERE id = $1`,
		m.ID, images, m.RequiresReview, m.Discarded, m.VRM)
	return err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMovement(row scannable) (*domain.Movement, error) {
	var m domain.Movement
	var rawPayload, images []byte
	var direction string
	var confidence sql.NullFloat64
	var cameraID sql.NullString

	err := row.Scan(&m.ID, &m.SiteID, &m.VRM, &m.Timestamp, &cameraID, &direction,
		&rawPayload, &images, &confidence, &m.RequiresReview, &m.Discarded, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan movement: %w", err)
	}

	m.Direction = domain.Direction(direction)
	if cameraID.Valid {
		m.CameraID = cameraID.String
	}
	if confidence.Valid {
		v := confidence.Float64
		m.Confidence = &v
	}
	if len(rawPayload) > 0 {
		_ = json.Unmarshal(rawPayload, &m.RawPayload)
	}
	if len(images) > 0 {
		_ = json.Unmarshal(images, &m.Images)
	}
	return &m, nil
}
