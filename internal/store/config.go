package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"velometrics/internal/settings"
)

// The store implements settings.Backend over the config_entries table.
var _ settings.Backend = (*DB)(nil)

// Resolve returns the highest-precedence config entry for the key whose
// scope matches the given identifiers. Precedence is total and fixed:
// fitting > bicycle > user > global. The returned data_type is the winning
// entry's own declaration; entries outside the resolution context never
// affect it.
func (s *DB) Resolve(ctx context.Context, key string, fittingID, bicycleID, userID *int64) (*settings.Resolved, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, scope, data_type
		FROM config_entries
		WHERE key = ?
		  AND ((scope = 'fitting' AND scope_id = ?)
		    OR (scope = 'bicycle' AND scope_id = ?)
		    OR (scope = 'user' AND scope_id = ?)
		    OR scope = 'global')
		ORDER BY CASE scope
			WHEN 'fitting' THEN 0
			WHEN 'bicycle' THEN 1
			WHEN 'user' THEN 2
			ELSE 3
		END
		LIMIT 1`,
		key, scopeID(fittingID), scopeID(bicycleID), scopeID(userID))

	var r settings.Resolved
	err := row.Scan(&r.Value, &r.Scope, &r.DataType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving config %q: %w", key, err)
	}
	return &r, nil
}

// Upsert writes a config entry, replacing any prior value for
// (key, scope, scope_id).
func (s *DB) Upsert(ctx context.Context, e settings.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_entries (key, scope, scope_id, value, data_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key, scope, scope_id) DO UPDATE SET
			value = excluded.value,
			data_type = excluded.data_type,
			updated_at = CURRENT_TIMESTAMP`,
		e.Key, e.Scope, scopeID(e.ScopeID), e.Value, e.DataType)
	if err != nil {
		return fmt.Errorf("upserting config %q: %w", e.Key, err)
	}
	return nil
}

// Entries returns every stored entry for a key across all scopes.
func (s *DB) Entries(ctx context.Context, key string) ([]settings.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, scope, scope_id, value, data_type
		FROM config_entries
		WHERE key = ?
		ORDER BY CASE scope
			WHEN 'fitting' THEN 0
			WHEN 'bicycle' THEN 1
			WHEN 'user' THEN 2
			ELSE 3
		END, scope_id`, key)
	if err != nil {
		return nil, fmt.Errorf("listing config entries %q: %w", key, err)
	}
	defer rows.Close()

	var entries []settings.Entry
	for rows.Next() {
		var e settings.Entry
		var id int64
		if err := rows.Scan(&e.Key, &e.Scope, &id, &e.Value, &e.DataType); err != nil {
			return nil, err
		}
		if id != 0 {
			e.ScopeID = &id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scopeID maps a nil scope identifier to the stored sentinel 0.
func scopeID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
