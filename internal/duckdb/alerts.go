package duckdb

import (
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// RecordAlert stores a started alert or marks a stored one as recovered.
func (s *Store) RecordAlert(t model.AlertTransition) error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	var recoveredAt any
	if !t.Alert.Active {
		recoveredAt = t.Alert.RecoveredAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, started_at, recovered_at, average_hits, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			recovered_at = excluded.recovered_at,
			active = excluded.active`,
		t.Alert.ID, t.Alert.StartedAt, recoveredAt, t.Alert.AverageHits, t.Alert.Active,
	)
	if err != nil {
		return fmt.Errorf("record alert %s: %w", t.Alert.ID, err)
	}
	return nil
}

// AlertHistory returns up to limit alerts, most recently started first.
func (s *Store) AlertHistory(limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = model.DefaultRecentAlerts
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, recovered_at, average_hits, active
		FROM alerts
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a         model.Alert
			recovered sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.StartedAt, &recovered, &a.AverageHits, &a.Active); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.RecoveredAt = recovered.Int64
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
