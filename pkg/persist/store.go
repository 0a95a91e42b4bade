package persist

import (
	"database/sql"
	"encoding/json"

	"github.com/snarehq/snare/internal/errx"
	"github.com/snarehq/snare/pkg/api"
)

// RuleStore persists rule sets as whole-set transactional replaces. The
// rank column preserves insertion order, which the mock engine uses for
// deterministic tie-breaking.
type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

// OpenRuleStore opens the database at path and wraps it in a RuleStore.
func OpenRuleStore(path string) (*RuleStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &RuleStore{db: db}, nil
}

func (s *RuleStore) Close() error {
	return s.db.Close()
}

// SaveMockRules replaces the stored mock rule set atomically.
func (s *RuleStore) SaveMockRules(rules []api.MockRule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mock_rules`); err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO mock_rules(id, rank, enabled, priority, rule_json, updated_at)
VALUES (?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`)
	if err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	defer stmt.Close()

	for i, rule := range rules {
		blob, err := json.Marshal(rule)
		if err != nil {
			return errx.Wrap(ErrStoreSave, err)
		}
		if _, err := stmt.Exec(rule.ID, i, rule.Enabled, rule.Priority, blob); err != nil {
			return errx.Wrap(ErrStoreSave, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	return nil
}

// LoadMockRules returns the stored mock rules in insertion order.
func (s *RuleStore) LoadMockRules() ([]api.MockRule, error) {
	rows, err := s.db.Query(`SELECT rule_json FROM mock_rules ORDER BY rank`)
	if err != nil {
		return nil, errx.Wrap(ErrStoreRead, err)
	}
	defer rows.Close()

	var rules []api.MockRule
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, errx.Wrap(ErrStoreRead, err)
		}
		var rule api.MockRule
		if err := json.Unmarshal(blob, &rule); err != nil {
			return nil, errx.Wrap(ErrStoreRead, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Wrap(ErrStoreRead, err)
	}
	return rules, nil
}

// SaveBreakpointRules replaces the stored breakpoint rule set atomically.
func (s *RuleStore) SaveBreakpointRules(rules []api.BreakpointRule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM breakpoint_rules`); err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO breakpoint_rules(id, rank, enabled, rule_json, updated_at)
VALUES (?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`)
	if err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	defer stmt.Close()

	for i, rule := range rules {
		blob, err := json.Marshal(rule)
		if err != nil {
			return errx.Wrap(ErrStoreSave, err)
		}
		if _, err := stmt.Exec(rule.ID, i, rule.Enabled, blob); err != nil {
			return errx.Wrap(ErrStoreSave, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errx.Wrap(ErrStoreSave, err)
	}
	return nil
}

// LoadBreakpointRules returns the stored breakpoint rules in insertion order.
func (s *RuleStore) LoadBreakpointRules() ([]api.BreakpointRule, error) {
	rows, err := s.db.Query(`SELECT rule_json FROM breakpoint_rules ORDER BY rank`)
	if err != nil {
		return nil, errx.Wrap(ErrStoreRead, err)
	}
	defer rows.Close()

	var rules []api.BreakpointRule
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, errx.Wrap(ErrStoreRead, err)
		}
		var rule api.BreakpointRule
		if err := json.Unmarshal(blob, &rule); err != nil {
			return nil, errx.Wrap(ErrStoreRead, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Wrap(ErrStoreRead, err)
	}
	return rules, nil
}
