package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dinnermatch/internal/domain"
)

const tokenColumns = `digest, purpose, match_id, host_id, issued_at, expires_at, consumed_at, outcome`

// InsertToken stores a new action token record.
func (q queries) InsertToken(ctx context.Context, t domain.ActionToken) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO action_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Digest, string(t.Purpose), nullString(t.MatchID), nullString(t.HostID),
		formatTime(t.IssuedAt), formatTime(t.ExpiresAt), formatTimePtr(t.ConsumedAt), string(t.Outcome),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken looks a token up by digest.
func (q queries) GetToken(ctx context.Context, digest string) (domain.ActionToken, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM action_tokens WHERE digest = ?`, digest)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ActionToken{}, domain.NotFound("token", "")
	}
	if err != nil {
		return domain.ActionToken{}, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// ConsumeToken marks an unconsumed token used. It reports false when the
// token was already consumed, leaving the first outcome in place.
func (q queries) ConsumeToken(ctx context.Context, digest string, at time.Time, outcome domain.Outcome) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE action_tokens SET consumed_at = ?, outcome = ?
		WHERE digest = ? AND consumed_at IS NULL
	`, formatTime(at), string(outcome), digest)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return n == 1, nil
}

// OpenTokensForMatch returns a match's unconsumed tokens of one purpose.
func (q queries) OpenTokensForMatch(ctx context.Context, matchID string, purpose domain.Purpose) ([]domain.ActionToken, error) {
	return q.queryTokens(ctx, `
		SELECT `+tokenColumns+` FROM action_tokens
		WHERE match_id = ? AND purpose = ? AND consumed_at IS NULL
		ORDER BY issued_at ASC, digest ASC
	`, matchID, string(purpose))
}

// ExpiredOpenTokens returns unconsumed tokens of one purpose whose expiry
// is at or before now.
func (q queries) ExpiredOpenTokens(ctx context.Context, purpose domain.Purpose, now time.Time) ([]domain.ActionToken, error) {
	return q.queryTokens(ctx, `
		SELECT `+tokenColumns+` FROM action_tokens
		WHERE purpose = ? AND consumed_at IS NULL AND expires_at <= ?
		ORDER BY expires_at ASC, digest ASC
	`, string(purpose), formatTime(now))
}

func (q queries) queryTokens(ctx context.Context, query string, args ...any) ([]domain.ActionToken, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := []domain.ActionToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(s scanner) (domain.ActionToken, error) {
	var (
		t                domain.ActionToken
		purpose, outcome string
		matchID, hostID  sql.NullString
		issued, expires  string
		consumed         sql.NullString
	)
	if err := s.Scan(&t.Digest, &purpose, &matchID, &hostID, &issued, &expires, &consumed, &outcome); err != nil {
		return domain.ActionToken{}, err
	}
	t.Purpose = domain.Purpose(purpose)
	t.Outcome = domain.Outcome(outcome)
	t.MatchID = matchID.String
	t.HostID = hostID.String

	var err error
	if t.IssuedAt, err = parseTime(issued); err != nil {
		return domain.ActionToken{}, err
	}
	if t.ExpiresAt, err = parseTime(expires); err != nil {
		return domain.ActionToken{}, err
	}
	if t.ConsumedAt, err = parseTimePtr(consumed); err != nil {
		return domain.ActionToken{}, err
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
