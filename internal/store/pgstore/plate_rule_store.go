package pgstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
)

// PlateRuleStore is the Postgres-backed platevalidator.RuleSource, read
// once at process start per spec §4.1's Postgres-with-built-in-fallback
// note.
type PlateRuleStore struct{ db *DB }

// NewPlateRuleStore builds a PlateRuleStore over db.
func NewPlateRuleStore(db *DB) *PlateRuleStore { return &PlateRuleStore{db: db} }

// LoadActiveRules reads every active plate_rules row, ordered by priority.
// A row whose pattern fails to compile is skipped rather than aborting the
// whole load, since one bad rule should not take down plate validation.
func (s *PlateRuleStore) LoadActiveRules(ctx context.Context) ([]platevalidator.Rule, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT name, pattern, status, priority
		FROM plate_rules
		WHERE active = TRUE
		ORDER BY priority ASC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load plate rules: %w", err)
	}
	defer rows.Close()

	var out []platevalidator.Rule
	for rows.Next() {
		var name, pattern, status string
		var priority int
		if err := rows.Scan(&name, &pattern, &status, &priority); err != nil {
			return nil, fmt.Errorf("pgstore: scan plate rule: %w", err)
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		out = append(out, platevalidator.Rule{
			Name:     name,
			Pattern:  compiled,
			Status:   domain.ValidationStatus(status),
			Priority: priority,
		})
	}
	return out, rows.Err()
}
