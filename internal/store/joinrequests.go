package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/appovenbackend/ticketing/internal/core"
)

const joinRequestColumns = `id, user_id, event_id, status, requested_at, reviewed_at, reviewed_by`

func (p *Postgres) CreateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO event_join_requests (id, user_id, event_id, status, requested_at, reviewed_at, reviewed_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.UserID, r.EventID, r.Status, r.RequestedAt, r.ReviewedAt, r.ReviewedBy)
		if isUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return err
	})
}

func (p *Postgres) GetJoinRequest(ctx context.Context, id string) (*core.EventJoinRequest, error) {
	var r *core.EventJoinRequest
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+joinRequestColumns+` FROM event_join_requests WHERE id = $1`, id)
		var err error
		r, err = scanJoinRequest(row)
		return err
	})
	return r, err
}

func (p *Postgres) GetJoinRequestByUserEvent(ctx context.Context, userID, eventID string) (*core.EventJoinRequest, error) {
	var r *core.EventJoinRequest
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx, `
			SELECT `+joinRequestColumns+` FROM event_join_requests
			WHERE user_id = $1 AND event_id = $2`, userID, eventID)
		var err error
		r, err = scanJoinRequest(row)
		return err
	})
	return r, err
}

// UpdateJoinRequest writes status and review fields.
func (p *Postgres) UpdateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error {
	return withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE event_join_requests
			SET status = $2, requested_at = $3, reviewed_at = $4, reviewed_by = $5
			WHERE id = $1`,
			r.ID, r.Status, r.RequestedAt, r.ReviewedAt, r.ReviewedBy)
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

// ListJoinRequests returns requests for an event, optionally filtered
// by status. Pending first, oldest first.
func (p *Postgres) ListJoinRequests(ctx context.Context, eventID string, status core.JoinRequestStatus) ([]core.EventJoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM event_join_requests WHERE event_id = $1`
	args := []interface{}{eventID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY requested_at`

	var out []core.EventJoinRequest
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			r, err := scanJoinRequest(rows)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return rows.Err()
	})
	return out, err
}

func scanJoinRequest(row rowScanner) (*core.EventJoinRequest, error) {
	var r core.EventJoinRequest
	var reviewedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.Status,
		&r.RequestedAt, &reviewedAt, &r.ReviewedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ReviewedAt = nullTime(reviewedAt)
	return &r, nil
}
