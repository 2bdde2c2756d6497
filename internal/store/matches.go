package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
)

const matchColumns = `id, guest_id, host_id, status, party_size, match_score, why_its_a_fit,
	alternatives, admin_notes, requested_at, responded_at, finalized_at, attendance_confirmed_at,
	no_show, no_show_reported_at, created_at, updated_at`

// MatchFilter narrows ListMatches. Zero fields match everything.
type MatchFilter struct {
	Statuses []domain.Status
	HostID   string
	GuestID  string
}

// InsertMatch stores a new match. A second live match for the same guest
// is rejected by the live-guest index and reported as a validation error.
func (q queries) InsertMatch(ctx context.Context, m domain.Match) error {
	alts, err := marshalStrings(m.Alternatives)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.GuestID, m.HostID, string(m.Status), m.PartySize, m.Score, m.WhyItsAFit,
		alts, m.AdminNotes, formatTimePtr(m.RequestedAt), formatTimePtr(m.RespondedAt),
		formatTimePtr(m.FinalizedAt), formatTimePtr(m.AttendanceConfirmedAt), boolInt(m.NoShow),
		formatTimePtr(m.NoShowReportedAt), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.Error{
				Code:    domain.CodeValidation,
				Message: "guest already has a live match",
				Subject: m.GuestID,
			}
		}
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMatch rewrites every mutable column of a match.
func (q queries) UpdateMatch(ctx context.Context, m domain.Match) error {
	alts, err := marshalStrings(m.Alternatives)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE matches SET
			host_id = ?, status = ?, party_size = ?, match_score = ?, why_its_a_fit = ?,
			alternatives = ?, admin_notes = ?, requested_at = ?, responded_at = ?,
			finalized_at = ?, attendance_confirmed_at = ?, no_show = ?, no_show_reported_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		m.HostID, string(m.Status), m.PartySize, m.Score, m.WhyItsAFit,
		alts, m.AdminNotes, formatTimePtr(m.RequestedAt), formatTimePtr(m.RespondedAt),
		formatTimePtr(m.FinalizedAt), formatTimePtr(m.AttendanceConfirmedAt), boolInt(m.NoShow),
		formatTimePtr(m.NoShowReportedAt), formatTime(m.UpdatedAt),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("match", m.ID)
	}
	return nil
}

// DeleteMatch removes a match.
func (q queries) DeleteMatch(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete match %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("match", id)
	}
	return nil
}

// GetMatch returns one match.
func (q queries) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, domain.NotFound("match", id)
	}
	if err != nil {
		return domain.Match{}, fmt.Errorf("get match %s: %w", id, err)
	}
	return m, nil
}

// ListMatches returns matches in creation order.
func (q queries) ListMatches(ctx context.Context, f MatchFilter) ([]domain.Match, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.HostID != "" {
		where = append(where, "host_id = ?")
		args = append(args, f.HostID)
	}
	if f.GuestID != "" {
		where = append(where, "guest_id = ?")
		args = append(args, f.GuestID)
	}

	query := `SELECT ` + matchColumns + ` FROM matches`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// LiveMatchForGuest returns the guest's live match, if any.
func (q queries) LiveMatchForGuest(ctx context.Context, guestID string) (domain.Match, bool, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE guest_id = ? AND status <> 'declined'
	`, guestID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, false, nil
	}
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("live match for %s: %w", guestID, err)
	}
	return m, true, nil
}

func scanMatch(s scanner) (domain.Match, error) {
	var (
		m                               domain.Match
		status, alts                    string
		requested, responded, finalized sql.NullString
		attended, reported              sql.NullString
		noShow                          int
		created, updated                string
	)
	err := s.Scan(&m.ID, &m.GuestID, &m.HostID, &status, &m.PartySize, &m.Score, &m.WhyItsAFit,
		&alts, &m.AdminNotes, &requested, &responded, &finalized, &attended,
		&noShow, &reported, &created, &updated)
	if err != nil {
		return domain.Match{}, err
	}
	if m.Status, err = domain.ParseStatus(status); err != nil {
		return domain.Match{}, err
	}
	m.NoShow = noShow != 0
	if m.Alternatives, err = unmarshalStrings(alts); err != nil {
		return domain.Match{}, err
	}
	if m.RequestedAt, err = parseTimePtr(requested); err != nil {
		return domain.Match{}, err
	}
	if m.RespondedAt, err = parseTimePtr(responded); err != nil {
		return domain.Match{}, err
	}
	if m.FinalizedAt, err = parseTimePtr(finalized); err != nil {
		return domain.Match{}, err
	}
	if m.AttendanceConfirmedAt, err = parseTimePtr(attended); err != nil {
		return domain.Match{}, err
	}
	if m.NoShowReportedAt, err = parseTimePtr(reported); err != nil {
		return domain.Match{}, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return domain.Match{}, err
	}
	if m.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Match{}, err
	}
	return m, nil
}

// isUniqueViolation recognizes a UNIQUE constraint failure from either
// SQLite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
