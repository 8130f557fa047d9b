package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/appovenbackend/ticketing/internal/core"
)

const eventColumns = `id, title, description, city, venue, start_at, end_at,
	price_minor_units, is_active, requires_approval, registration_open,
	banner_url, latitude, longitude, organizer_name, organizer_contact, created_at`

func (p *Postgres) CreateEvent(ctx context.Context, e *core.Event) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO events (id, title, description, city, venue, start_at, end_at,
				price_minor_units, is_active, requires_approval, registration_open,
				banner_url, latitude, longitude, organizer_name, organizer_contact, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			e.ID, e.Title, e.Description, e.City, e.Venue, e.StartAt, e.EndAt,
			e.PriceMinorUnits, e.IsActive, e.RequiresApproval, e.RegistrationOpen,
			e.BannerURL, e.Latitude, e.Longitude, e.OrganizerName, e.OrganizerContact,
			e.CreatedAt)
		return err
	})
}

// UpdateEvent writes the full row except created_at, which is immutable.
func (p *Postgres) UpdateEvent(ctx context.Context, e *core.Event) error {
	return withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE events SET title = $2, description = $3, city = $4, venue = $5,
				start_at = $6, end_at = $7, price_minor_units = $8, is_active = $9,
				requires_approval = $10, registration_open = $11, banner_url = $12,
				latitude = $13, longitude = $14, organizer_name = $15, organizer_contact = $16
			WHERE id = $1`,
			e.ID, e.Title, e.Description, e.City, e.Venue, e.StartAt, e.EndAt,
			e.PriceMinorUnits, e.IsActive, e.RequiresApproval, e.RegistrationOpen,
			e.BannerURL, e.Latitude, e.Longitude, e.OrganizerName, e.OrganizerContact)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return core.ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (*core.Event, error) {
	var e *core.Event
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
		var err error
		e, err = scanEvent(row)
		return err
	})
	return e, err
}

// DeleteEventCascade removes the event plus its tickets and received-qr
// audit rows, and clears featured slots pointing at it, in one
// transaction.
func (p *Postgres) DeleteEventCascade(ctx context.Context, id string) error {
	return p.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE event_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM received_qr_tokens WHERE event_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE featured_slots SET event_id = NULL WHERE event_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return core.ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) ListActiveEvents(ctx context.Context, now time.Time) ([]core.Event, error) {
	return p.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE is_active AND end_at > $1 ORDER BY start_at`, now)
}

func (p *Postgres) ListAllEvents(ctx context.Context) ([]core.Event, error) {
	return p.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
}

func (p *Postgres) ListRecentEvents(ctx context.Context, limit int) ([]core.Event, error) {
	return p.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC LIMIT $1`, limit)
}

// ExpireEvents deactivates events whose end passed the cutoff and that
// were still active. Idempotent.
func (p *Postgres) ExpireEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx,
			`UPDATE events SET is_active = FALSE WHERE is_active AND end_at <= $1`, cutoff)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// SetFeaturedSlot assigns or clears one of the two named slots.
func (p *Postgres) SetFeaturedSlot(ctx context.Context, slot core.FeaturedSlot, eventID string) error {
	return withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx,
			`UPDATE featured_slots SET event_id = NULLIF($2, '') WHERE slot = $1`,
			slot, eventID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return core.ErrNotFound
		}
		return nil
	})
}

// GetFeaturedSlots returns both slots; an empty string means unassigned.
func (p *Postgres) GetFeaturedSlots(ctx context.Context) (map[core.FeaturedSlot]string, error) {
	slots := map[core.FeaturedSlot]string{core.Featured1: "", core.Featured2: ""}
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx,
			`SELECT slot, COALESCE(event_id, '') FROM featured_slots`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var slot, eventID string
			if err := rows.Scan(&slot, &eventID); err != nil {
				return err
			}
			slots[core.FeaturedSlot(slot)] = eventID
		}
		return rows.Err()
	})
	return slots, err
}

func (p *Postgres) listEvents(ctx context.Context, query string, args ...interface{}) ([]core.Event, error) {
	var out []core.Event
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	return out, err
}

func scanEvent(row rowScanner) (*core.Event, error) {
	var e core.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.City, &e.Venue,
		&e.StartAt, &e.EndAt, &e.PriceMinorUnits, &e.IsActive,
		&e.RequiresApproval, &e.RegistrationOpen, &e.BannerURL,
		&e.Latitude, &e.Longitude, &e.OrganizerName, &e.OrganizerContact,
		&e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
