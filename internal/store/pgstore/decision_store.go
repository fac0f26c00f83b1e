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

// DecisionStore is the Postgres-backed store.DecisionStore.
type DecisionStore struct{ db *DB }

// NewDecisionStore builds a DecisionStore over db.
func NewDecisionStore(db *DB) *DecisionStore { return &DecisionStore{db: db} }

func (s *DecisionStore) FindBySession(ctx context.Context, sessionID string) (*domain.Decision, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, session_id, outcome, rule_applied, rationale, status, params, updated_at
		FROM decisions WHERE session_id = $1`, sessionID)
	return scanDecision(row)
}

// UpsertIfMutable inserts a new Decision, or updates an existing one in
// place only while its status is still Mutable(); a human-reviewed
// Decision is left untouched (spec §4.4 "Write semantics").
func (s *DecisionStore) UpsertIfMutable(ctx context.Context, d *domain.Decision) (*domain.Decision, bool, error) {
	existing, err := s.FindBySession(ctx, d.SessionID)
	if err != nil {
		return nil, false, err
	}

	params, err := json.Marshal(d.Params)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: marshal decision params: %w", err)
	}

	if existing == nil {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.UpdatedAt = time.Now()
		_, err = s.db.conn.ExecContext(ctx, `
			INSERT INTO decisions (id, session_id, outcome, rule_applied, rationale, status, params, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			d.ID, d.SessionID, string(d.Outcome), d.RuleApplied, d.Rationale, string(d.Status), params, d.UpdatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("pgstore: insert decision: %w", err)
		}
		return d, true, nil
	}

	if !existing.Status.Mutable() {
		// Human-reviewed; frozen. The caller logs the attempted change.
		return existing, false, nil
	}

	d.ID = existing.ID
	d.UpdatedAt = time.Now()
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE decisions SET outcome = $2, rule_applied = $3, rationale = $4,
		       status = $5, params = $6, updated_at = $7
		WHERE id = $1 AND status IN ('NEW','CANDIDATE')`,
		d.ID, string(d.Outcome), d.RuleApplied, d.Rationale, string(d.Status), params, d.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: update decision: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// A concurrent operator review won the race between our read and
		// write; per spec §5 the automatic update silently yields.
		current, err := s.FindBySession(ctx, d.SessionID)
		return current, false, err
	}
	return d, true, nil
}

func (s *DecisionStore) FindCandidatesForReevaluation(ctx context.Context, limit int) ([]domain.Decision, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT d.id, d.session_id, d.outcome, d.rule_applied, d.rationale, d.status, d.params, d.updated_at
		FROM decisions d
		JOIN sessions s ON s.id = d.session_id
		WHERE d.outcome = 'ENFORCEMENT_CANDIDATE' AND d.status IN ('NEW','CANDIDATE')
		  AND s.end_time IS NOT NULL
		ORDER BY d.updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find reevaluation candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *DecisionStore) RetroactivelyResolveBySuspension(ctx context.Context, siteID string, start time.Time, end *time.Time) (int, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE decisions d SET
			outcome = 'COMPLIANT',
			rule_applied = 'ENFORCEMENT_DISABLED_RETROACTIVE',
			status = 'AUTO_RESOLVED',
			rationale = d.rationale || ' | RETROACTIVE: suspension covers session start',
			updated_at = now()
		FROM sessions s
		WHERE d.session_id = s.id
		  AND s.site_id = $1
		  AND s.start_time >= $2
		  AND ($3::timestamptz IS NULL OR s.start_time <= $3)
		  AND d.outcome = 'ENFORCEMENT_CANDIDATE'
		  AND d.status = 'NEW'`,
		siteID, start, end)
	if err != nil {
		return 0, fmt.Errorf("pgstore: retroactive resolve: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func scanDecision(row scannable) (*domain.Decision, error) {
	var d domain.Decision
	var outcome, status string
	var params []byte

	err := row.Scan(&d.ID, &d.SessionID, &outcome, &d.RuleApplied, &d.Rationale, &status, &params, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan decision: %w", err)
	}
	d.Outcome = domain.Outcome(outcome)
	d.Status = domain.DecisionStatus(status)
	if len(params) > 0 {
		_ = json.Unmarshal(params, &d.Params)
	}
	return &d, nil
}
