package store

import (
	"context"
	"fmt"

	"github.com/roach88/dinnermatch/internal/domain"
)

// LogActivity appends an audit entry.
func (q queries) LogActivity(ctx context.Context, a domain.Activity) error {
	details, err := marshalMap(a.Details)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO activity_log (action_type, actor, target_type, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Type, a.Actor, a.TargetType, a.TargetID, details, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("log activity %s: %w", a.Type, err)
	}
	return nil
}

// CountActivity returns how many entries of one type were recorded.
func (q queries) CountActivity(ctx context.Context, actionType string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE action_type = ?`, actionType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activity %s: %w", actionType, err)
	}
	return n, nil
}

// ListActivity returns audit entries, newest last. An empty targetID
// returns every entry. limit <= 0 means no limit.
func (q queries) ListActivity(ctx context.Context, targetID string, limit int) ([]domain.Activity, error) {
	query := `SELECT id, action_type, actor, target_type, target_id, details, created_at FROM activity_log`
	var args []any
	if targetID != "" {
		query += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a                domain.Activity
			details, created string
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Actor, &a.TargetType, &a.TargetID, &details, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.Details, err = unmarshalMap(details); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
