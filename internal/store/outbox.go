package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/dinnermatch/internal/domain"
)

const notificationColumns = `id, dedupe_key, template, recipient, data, action_token, match_id, host_id,
	status, attempts, last_error, created_at, sent_at`

// EnqueueNotification adds a message to the outbox. A message with a
// dedupe key already queued is ignored and reported as not inserted.
func (q queries) EnqueueNotification(ctx context.Context, n domain.Notification) (bool, error) {
	data, err := marshalMap(n.Data)
	if err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO notifications
		(dedupe_key, template, recipient, data, action_token, match_id, host_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'queued', ?)
		ON CONFLICT(dedupe_key) DO NOTHING
	`,
		n.DedupeKey, string(n.Template), n.To, data, nullString(n.ActionToken),
		nullString(n.MatchID), nullString(n.HostID), formatTime(n.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue notification %s: %w", n.DedupeKey, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue notification %s: %w", n.DedupeKey, err)
	}
	return rows == 1, nil
}

// PendingNotifications returns up to limit queued messages, oldest first.
func (q queries) PendingNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	return q.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'queued'
		ORDER BY id ASC
		LIMIT ?
	`, limit)
}

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	Status   domain.DeliveryStatus
	Template domain.Template
	MatchID  string
	HostID   string
}

// ListNotifications returns outbox entries in enqueue order.
func (q queries) ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Template != "" {
		where = append(where, "template = ?")
		args = append(args, string(f.Template))
	}
	if f.MatchID != "" {
		where = append(where, "match_id = ?")
		args = append(args, f.MatchID)
	}
	if f.HostID != "" {
		where = append(where, "host_id = ?")
		args = append(args, f.HostID)
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	return q.queryNotifications(ctx, query, args...)
}

// MarkNotificationSent records a delivery and clears the raw action token.
func (q queries) MarkNotificationSent(ctx context.Context, id int64, at time.Time) error {
	return q.markNotification(ctx, `
		UPDATE notifications
		SET status = 'sent', attempts = attempts + 1, sent_at = ?, action_token = NULL, last_error = ''
		WHERE id = ?
	`, id, formatTime(at), id)
}

// MarkNotificationFailed records a failed delivery attempt.
func (q queries) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	return q.markNotification(ctx, `
		UPDATE notifications
		SET status = 'failed', attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, id, reason, id)
}

// RequeueNotification puts a failed message back in the queue.
func (q queries) RequeueNotification(ctx context.Context, id int64) error {
	return q.markNotification(ctx, `
		UPDATE notifications SET status = 'queued' WHERE id = ? AND status = 'failed'
	`, id, id)
}

func (q queries) markNotification(ctx context.Context, query string, id int64, args ...any) error {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("notification", fmt.Sprint(id))
	}
	return nil
}

// GetNotification returns one outbox entry.
func (q queries) GetNotification(ctx context.Context, id int64) (domain.Notification, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, domain.NotFound("notification", fmt.Sprint(id))
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("get notification %d: %w", id, err)
	}
	return n, nil
}

func (q queries) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func scanNotification(s scanner) (domain.Notification, error) {
	var (
		n                      domain.Notification
		template, data, status string
		token, matchID, hostID sql.NullString
		created                string
		sent                   sql.NullString
	)
	err := s.Scan(&n.ID, &n.DedupeKey, &template, &n.To, &data, &token, &matchID, &hostID,
		&status, &n.Attempts, &n.LastError, &created, &sent)
	if err != nil {
		return domain.Notification{}, err
	}
	n.Template = domain.Template(template)
	n.Status = domain.DeliveryStatus(status)
	n.ActionToken = token.String
	n.MatchID = matchID.String
	n.HostID = hostID.String
	if n.Data, err = unmarshalMap(data); err != nil {
		return domain.Notification{}, err
	}
	if n.CreatedAt, err = parseTime(created); err != nil {
		return domain.Notification{}, err
	}
	if n.SentAt, err = parseTimePtr(sent); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}
