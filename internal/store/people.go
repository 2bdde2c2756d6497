package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dinnermatch/internal/domain"
)

const guestColumns = `id, name, email, phone, party_size, neighborhood, max_travel_time, languages,
	kosher, contribution, vibe_chabad, vibe_social, vibe_formality, is_flagged, no_show_count,
	created_at, updated_at`

const hostColumns = `id, name, email, phone, address, neighborhood, seats_available, languages,
	kosher_level, contribution, vibe_chabad, vibe_social, vibe_formality, tagline, private_notes,
	created_at, updated_at`

// UpsertGuest inserts a guest or updates its registration fields.
// no_show_count and created_at are owned by the core and survive updates.
func (q queries) UpsertGuest(ctx context.Context, g domain.Guest) error {
	langs, err := marshalStrings(g.Languages)
	if err != nil {
		return fmt.Errorf("upsert guest: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO guests (`+guestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			party_size = excluded.party_size,
			neighborhood = excluded.neighborhood,
			max_travel_time = excluded.max_travel_time,
			languages = excluded.languages,
			kosher = excluded.kosher,
			contribution = excluded.contribution,
			vibe_chabad = excluded.vibe_chabad,
			vibe_social = excluded.vibe_social,
			vibe_formality = excluded.vibe_formality,
			is_flagged = excluded.is_flagged,
			updated_at = excluded.updated_at
	`,
		g.ID, g.Name, g.Email, g.Phone, g.PartySize, g.Neighborhood, g.MaxTravelTime, langs,
		string(g.Kosher), string(g.Contribution), g.Vibe.Chabad, g.Vibe.Social, g.Vibe.Formality,
		boolInt(g.IsFlagged), g.NoShowCount, formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert guest %s: %w", g.ID, err)
	}
	return nil
}

// GetGuest returns one guest.
func (q queries) GetGuest(ctx context.Context, id string) (domain.Guest, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Guest{}, domain.NotFound("guest", id)
	}
	if err != nil {
		return domain.Guest{}, fmt.Errorf("get guest %s: %w", id, err)
	}
	return g, nil
}

// ListGuests returns every guest in registration order.
func (q queries) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	return q.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests ORDER BY created_at ASC, id ASC`)
}

// UnplacedGuests returns guests with no live match, in registration order.
func (q queries) UnplacedGuests(ctx context.Context) ([]domain.Guest, error) {
	return q.queryGuests(ctx, `
		SELECT `+guestColumns+` FROM guests g
		WHERE NOT EXISTS (
			SELECT 1 FROM matches m WHERE m.guest_id = g.id AND m.status <> 'declined'
		)
		ORDER BY created_at ASC, id ASC
	`)
}

// IncrementNoShow adds one to a guest's no-show count and returns the new value.
func (q queries) IncrementNoShow(ctx context.Context, guestID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		UPDATE guests SET no_show_count = no_show_count + 1 WHERE id = ?
		RETURNING no_show_count
	`, guestID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("guest", guestID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment no-show %s: %w", guestID, err)
	}
	return n, nil
}

// FlagGuest marks a guest for organizer attention. The no-show count is
// left alone.
func (q queries) FlagGuest(ctx context.Context, guestID string, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE guests SET is_flagged = 1, updated_at = ? WHERE id = ?`, formatTime(at), guestID)
	if err != nil {
		return fmt.Errorf("flag guest %s: %w", guestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("flag guest %s: %w", guestID, err)
	}
	if n == 0 {
		return domain.NotFound("guest", guestID)
	}
	return nil
}

func (q queries) queryGuests(ctx context.Context, query string, args ...any) ([]domain.Guest, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query guests: %w", err)
	}
	defer rows.Close()

	guests := []domain.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		guests = append(guests, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guests: %w", err)
	}
	return guests, nil
}

func scanGuest(s scanner) (domain.Guest, error) {
	var (
		g                    domain.Guest
		langs, kosher, contr string
		flagged              int
		created, updated     string
	)
	err := s.Scan(&g.ID, &g.Name, &g.Email, &g.Phone, &g.PartySize, &g.Neighborhood, &g.MaxTravelTime,
		&langs, &kosher, &contr, &g.Vibe.Chabad, &g.Vibe.Social, &g.Vibe.Formality, &flagged,
		&g.NoShowCount, &created, &updated)
	if err != nil {
		return domain.Guest{}, err
	}
	g.Kosher = domain.Requirement(kosher)
	g.Contribution = domain.Contribution(contr)
	g.IsFlagged = flagged != 0
	if g.Languages, err = unmarshalStrings(langs); err != nil {
		return domain.Guest{}, err
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return domain.Guest{}, err
	}
	if g.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Guest{}, err
	}
	return g, nil
}

// UpsertHost inserts a host or updates its registration fields, and
// makes sure the host has a capacity counter.
func (q queries) UpsertHost(ctx context.Context, h domain.Host) error {
	langs, err := marshalStrings(h.Languages)
	if err != nil {
		return fmt.Errorf("upsert host: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO hosts (`+hostColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			neighborhood = excluded.neighborhood,
			seats_available = excluded.seats_available,
			languages = excluded.languages,
			kosher_level = excluded.kosher_level,
			contribution = excluded.contribution,
			vibe_chabad = excluded.vibe_chabad,
			vibe_social = excluded.vibe_social,
			vibe_formality = excluded.vibe_formality,
			tagline = excluded.tagline,
			private_notes = excluded.private_notes,
			updated_at = excluded.updated_at
	`,
		h.ID, h.Name, h.Email, h.Phone, h.Address, h.Neighborhood, h.Seats, langs,
		string(h.Kosher), string(h.Contribution), h.Vibe.Chabad, h.Vibe.Social, h.Vibe.Formality,
		h.Tagline, h.PrivateNotes, formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert host %s: %w", h.ID, err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO host_capacity (host_id, committed) VALUES (?, 0)
		ON CONFLICT(host_id) DO NOTHING
	`, h.ID)
	if err != nil {
		return fmt.Errorf("init capacity %s: %w", h.ID, err)
	}
	return nil
}

// GetHost returns one host.
func (q queries) GetHost(ctx context.Context, id string) (domain.Host, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Host{}, domain.NotFound("host", id)
	}
	if err != nil {
		return domain.Host{}, fmt.Errorf("get host %s: %w", id, err)
	}
	return h, nil
}

// ListHosts returns every host ordered by id.
func (q queries) ListHosts(ctx context.Context) ([]domain.Host, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+hostColumns+` FROM hosts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query hosts: %w", err)
	}
	defer rows.Close()

	hosts := []domain.Host{}
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hosts: %w", err)
	}
	return hosts, nil
}

func scanHost(s scanner) (domain.Host, error) {
	var (
		h                    domain.Host
		langs, kosher, contr string
		created, updated     string
	)
	err := s.Scan(&h.ID, &h.Name, &h.Email, &h.Phone, &h.Address, &h.Neighborhood, &h.Seats,
		&langs, &kosher, &contr, &h.Vibe.Chabad, &h.Vibe.Social, &h.Vibe.Formality,
		&h.Tagline, &h.PrivateNotes, &created, &updated)
	if err != nil {
		return domain.Host{}, err
	}
	h.Kosher = domain.KosherLevel(kosher)
	h.Contribution = domain.Contribution(contr)
	if h.Languages, err = unmarshalStrings(langs); err != nil {
		return domain.Host{}, err
	}
	if h.CreatedAt, err = parseTime(created); err != nil {
		return domain.Host{}, err
	}
	if h.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Host{}, err
	}
	return h, nil
}

// Seats returns a host's seats_available.
func (q queries) Seats(ctx context.Context, hostID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT seats_available FROM hosts WHERE id = ?`, hostID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("host", hostID)
	}
	if err != nil {
		return 0, fmt.Errorf("seats %s: %w", hostID, err)
	}
	return n, nil
}

// Committed returns a host's running committed-seat counter.
func (q queries) Committed(ctx context.Context, hostID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT committed FROM host_capacity WHERE host_id = ?`, hostID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("host", hostID)
	}
	if err != nil {
		return 0, fmt.Errorf("committed %s: %w", hostID, err)
	}
	return n, nil
}

// SetCommitted overwrites a host's committed-seat counter.
func (q queries) SetCommitted(ctx context.Context, hostID string, seats int) error {
	res, err := q.q.ExecContext(ctx, `UPDATE host_capacity SET committed = ? WHERE host_id = ?`, seats, hostID)
	if err != nil {
		return fmt.Errorf("set committed %s: %w", hostID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("host", hostID)
	}
	return nil
}

// SumPartySize totals party_size over a host's matches in statuses.
func (q queries) SumPartySize(ctx context.Context, hostID string, statuses []domain.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{hostID}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(party_size), 0) FROM matches
		WHERE host_id = ? AND status IN (`+placeholders(len(statuses))+`)
	`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum party size %s: %w", hostID, err)
	}
	return n, nil
}
