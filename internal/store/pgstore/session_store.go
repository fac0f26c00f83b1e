package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/google/uuid"
)

// SessionStore is the Postgres-backed store.SessionStore.
type SessionStore struct{ db *DB }

// NewSessionStore builds a SessionStore over db.
func NewSessionStore(db *DB) *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) FindOpen(ctx context.Context, siteID, vrm string) (*domain.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
		       entry_movement_id, exit_movement_id, status
		FROM sessions WHERE site_id = $1 AND vrm = $2 AND end_time IS NULL`,
		siteID, vrm)
	return scanSession(row)
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
		       entry_movement_id, exit_movement_id, status
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// InsertOpen creates a new PROVISIONAL session. The partial unique index
// sessions_one_open_per_site_vrm is the actual source of truth for the
// at-most-one-open-session invariant (spec §5); a concurrent loser here
// gets an apperr.KindConflict it should treat as a benign duplicate-entry
// skip.
func (s *SessionStore) InsertOpen(ctx context.Context, sess *domain.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Status = domain.SessionProvisional

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO sessions
			(id, site_id, vrm, start_time, end_time, duration_minutes,
			 entry_movement_id, exit_movement_id, status)
		VALUES ($1,$2,$3,$4,NULL,NULL,$5,NULL,$6)`,
		sess.ID, sess.SiteID, sess.VRM, sess.StartTime, sess.EntryMovementID, string(sess.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("session.insert_open", "open session already exists for site/vrm")
		}
		return fmt.Errorf("pgstore: insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Close(ctx context.Context, sessionID string, endTime time.Time, exitMovementID string) (*domain.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		UPDATE sessions
		SET end_time = $2,
		    duration_minutes = FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time)) / 60),
		    exit_movement_id = $3,
		    status = 'COMPLETED'
		WHERE id = $1
		RETURNING id, site_id, vrm, start_time, end_time, duration_minutes,
		          entry_movement_id, exit_movement_id, status`,
		sessionID, endTime, exitMovementID)
	return scanSession(row)
}

func (s *SessionStore) Expire(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		UPDATE sessions
		SET end_time = $2,
		    duration_minutes = FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time)) / 60),
		    status = 'EXPIRED'
		WHERE id = $1
		RETURNING id, site_id, vrm, start_time, end_time, duration_minutes,
		          entry_movement_id, exit_movement_id, status`,
		sessionID, now)
	return scanSession(row)
}

func (s *SessionStore) FindStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
		       entry_movement_id, exit_movement_id, status
		FROM sessions
		WHERE end_time IS NULL AND start_time <= $1
		ORDER BY start_time ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find stale open: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SessionStore) FindCompletedOverlapping(ctx context.Context, vrm, siteID string, from, to time.Time) ([]domain.Session, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
		       entry_movement_id, exit_movement_id, status
		FROM sessions
		WHERE vrm = $1 AND site_id = $2 AND status = 'COMPLETED'
		  AND start_time <= $4 AND end_time >= $3`,
		vrm, siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find completed overlapping: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SessionStore) FindCompletedForVRM(ctx context.Context, vrm, siteID string) ([]domain.Session, error) {
	var rows *sql.Rows
	var err error
	if siteID == "" {
		rows, err = s.db.conn.QueryContext(ctx, `
			SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
			       entry_movement_id, exit_movement_id, status
			FROM sessions WHERE vrm = $1 AND status = 'COMPLETED'`, vrm)
	} else {
		rows, err = s.db.conn.QueryContext(ctx, `
			SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
			       entry_movement_id, exit_movement_id, status
			FROM sessions WHERE vrm = $1 AND site_id = $2 AND status = 'COMPLETED'`, vrm, siteID)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: find completed for vrm: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SessionStore) FindCompletedBySite(ctx context.Context, siteID string, limit int) ([]domain.Session, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, site_id, vrm, start_time, end_time, duration_minutes,
		       entry_movement_id, exit_movement_id, status
		FROM sessions WHERE site_id = $1 AND status = 'COMPLETED'
		ORDER BY start_time ASC LIMIT $2`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find completed by site: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSession(row scannable) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var endTime sql.NullTime
	var duration sql.NullInt64
	var exitMovementID sql.NullString

	err := row.Scan(&sess.ID, &sess.SiteID, &sess.VRM, &sess.StartTime, &endTime,
		&duration, &sess.EntryMovementID, &exitMovementID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan session: %w", err)
	}

	sess.Status = domain.SessionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		sess.DurationMinutes = &d
	}
	if exitMovementID.Valid {
		v := exitMovementID.String
		sess.ExitMovementID = &v
	}
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]domain.Session, error) {
	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}
