package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/appovenbackend/ticketing/internal/core"
)

const ticketColumns = `id, event_id, user_id, qr_token, issued_at,
	is_validated, validated_at, validation_history, meta`

func (p *Postgres) GetTicket(ctx context.Context, id string) (*core.Ticket, error) {
	var t *core.Ticket
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
		var err error
		t, err = scanTicket(row)
		return err
	})
	return t, err
}

func (p *Postgres) GetTicketByPaymentID(ctx context.Context, paymentID string) (*core.Ticket, error) {
	var t *core.Ticket
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+ticketColumns+` FROM tickets WHERE meta->>'payment_id' = $1`, paymentID)
		var err error
		t, err = scanTicket(row)
		return err
	})
	return t, err
}

func (p *Postgres) HasTicket(ctx context.Context, userID, eventID string) (bool, error) {
	var exists bool
	err := withRetry(ctx, func() error {
		return p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tickets WHERE user_id = $1 AND event_id = $2)`,
			userID, eventID).Scan(&exists)
	})
	return exists, err
}

func (p *Postgres) ListUserTickets(ctx context.Context, userID string) ([]core.Ticket, error) {
	var out []core.Ticket
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx,
			`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY issued_at DESC`,
			userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	return out, err
}

// CreateFreeTicket inserts the ticket and appends the event to the
// user's subscriptions in one transaction. A second free ticket for the
// same (user, event) maps to core.ErrAlreadyExists.
func (p *Postgres) CreateFreeTicket(ctx context.Context, t *core.Ticket) error {
	return p.tx(ctx, func(tx *sql.Tx) error {
		if err := insertTicket(ctx, tx, t); err != nil {
			if isUniqueViolation(err) {
				return core.ErrAlreadyExists
			}
			return err
		}
		return appendSubscription(ctx, tx, t.UserID, t.EventID)
	})
}

// CreatePaidTicket inserts the ticket, appends the subscription, and
// records the points earn, all in one transaction. A ticket already
// issued for the same payment maps to core.ErrAlreadyExists so the
// caller can return the existing one unchanged.
func (p *Postgres) CreatePaidTicket(ctx context.Context, t *core.Ticket, award *core.PointsAward) error {
	return p.tx(ctx, func(tx *sql.Tx) error {
		if err := insertTicket(ctx, tx, t); err != nil {
			if isUniqueViolation(err) {
				return core.ErrAlreadyExists
			}
			return err
		}
		if err := appendSubscription(ctx, tx, t.UserID, t.EventID); err != nil {
			return err
		}
		if award != nil {
			return applyAwardTx(ctx, tx, award)
		}
		return nil
	})
}

// ValidateTicket performs the at-most-once scan transition. The ticket
// row is locked for the duration, so concurrent scans serialize: the
// first returns first=true, the rest observe the validated state. When
// award is set and this is the first scan, the earn is recorded in the
// same transaction and the history entry carries points_awarded.
func (p *Postgres) ValidateTicket(ctx context.Context, ticketID string, entry core.ScanEntry, award *core.PointsAward) (*core.Ticket, bool, error) {
	var ticket *core.Ticket
	var first bool
	err := p.tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, ticketID)
		t, err := scanTicket(row)
		if err != nil {
			return err
		}

		if t.IsValidated {
			ticket, first = t, false
			return nil
		}

		if award != nil {
			entry.PointsAwarded = true
		}
		t.IsValidated = true
		ts := entry.Timestamp
		t.ValidatedAt = &ts
		t.ValidationHistory = append(t.ValidationHistory, entry)

		history, err := marshalJSON(t.ValidationHistory)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tickets SET is_validated = TRUE, validated_at = $2, validation_history = $3
			WHERE id = $1 AND is_validated = FALSE`,
			ticketID, entry.Timestamp, history)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("ticket %s: concurrent validation despite row lock", ticketID)
		}

		if award != nil {
			if err := applyAwardTx(ctx, tx, award); err != nil {
				return err
			}
		}
		ticket, first = t, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ticket, first, nil
}

// RecordReceivedQR appends a scan-audit row. Never authoritative.
func (p *Postgres) RecordReceivedQR(ctx context.Context, rec *core.ReceivedQRToken) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO received_qr_tokens (id, token, event_id, received_at, source)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, rec.Token, rec.EventID, rec.ReceivedAt, rec.Source)
		return err
	})
}

func insertTicket(ctx context.Context, tx *sql.Tx, t *core.Ticket) error {
	history, err := marshalJSON(t.ValidationHistory)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(t.Meta)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (id, event_id, user_id, qr_token, issued_at,
			is_validated, validated_at, validation_history, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.EventID, t.UserID, t.QRToken, t.IssuedAt,
		t.IsValidated, t.ValidatedAt, history, meta)
	return err
}

func scanTicket(row rowScanner) (*core.Ticket, error) {
	var t core.Ticket
	var validatedAt sql.NullTime
	var history, meta []byte
	err := row.Scan(&t.ID, &t.EventID, &t.UserID, &t.QRToken, &t.IssuedAt,
		&t.IsValidated, &validatedAt, &history, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ValidatedAt = nullTime(validatedAt)
	if err := unmarshalJSON(history, &t.ValidationHistory); err != nil {
		return nil, fmt.Errorf("decode validation_history: %w", err)
	}
	if err := unmarshalJSON(meta, &t.Meta); err != nil {
		return nil, fmt.Errorf("decode ticket meta: %w", err)
	}
	return &t, nil
}
