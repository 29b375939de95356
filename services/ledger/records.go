package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// SaveDeliberation persists a council deliberation record.
func (l *Ledger) SaveDeliberation(ctx context.Context, d *types.CouncilDeliberation) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deliberation: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO deliberations (id, request_id, query, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.RequestID, d.Query, string(payload), formatTime(d.Timestamp))
	if err != nil {
		return fmt.Errorf("save deliberation: %w", types.ErrPersistenceFailure)
	}
	return nil
}

// GetDeliberation loads one deliberation record by id.
func (l *Ledger) GetDeliberation(ctx context.Context, id string) (*types.CouncilDeliberation, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		`SELECT payload FROM deliberations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFoundError("deliberation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load deliberation: %w", err)
	}

	var d types.CouncilDeliberation
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("corrupt deliberation %s: %w", id, err)
	}
	return &d, nil
}

// SaveAlert persists a watcher alert.
func (l *Ledger) SaveAlert(ctx context.Context, a types.Alert) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO alerts (id, node_id, kind, severity, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.NodeID, a.Kind, a.Severity, a.Message, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save alert: %w", types.ErrPersistenceFailure)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first.
func (l *Ledger) ListAlerts(ctx context.Context, limit int) ([]types.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, node_id, kind, severity, message, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var (
			a  types.Alert
			ts string
		)
		if err := rows.Scan(&a.ID, &a.NodeID, &a.Kind, &a.Severity, &a.Message, &ts); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}
