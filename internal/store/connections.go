package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/appovenbackend/ticketing/internal/core"
)

const connectionColumns = `id, requester_id, target_id, status, created_at, updated_at`

func (p *Postgres) CreateConnection(ctx context.Context, c *core.Connection) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO connections (id, requester_id, target_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.RequesterID, c.TargetID, c.Status, c.CreatedAt, c.UpdatedAt)
		if isUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return err
	})
}

func (p *Postgres) GetConnection(ctx context.Context, id string) (*core.Connection, error) {
	var c *core.Connection
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id)
		var err error
		c, err = scanConnection(row)
		return err
	})
	return c, err
}

// GetConnectionBetween returns the edge joining a and b in either
// direction; the pair index guarantees at most one exists.
func (p *Postgres) GetConnectionBetween(ctx context.Context, a, b string) (*core.Connection, error) {
	var c *core.Connection
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx, `
			SELECT `+connectionColumns+` FROM connections
			WHERE (requester_id = $1 AND target_id = $2)
			   OR (requester_id = $2 AND target_id = $1)`, a, b)
		var err error
		c, err = scanConnection(row)
		return err
	})
	return c, err
}

func (p *Postgres) UpdateConnectionStatus(ctx context.Context, id string, status core.ConnectionStatus) error {
	return withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx,
			`UPDATE connections SET status = $2, updated_at = now() WHERE id = $1`,
			id, status)
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

func (p *Postgres) DeleteConnection(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
		return err
	})
}

// DeleteConnectionBetween removes any edge joining a and b.
func (p *Postgres) DeleteConnectionBetween(ctx context.Context, a, b string) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			DELETE FROM connections
			WHERE (requester_id = $1 AND target_id = $2)
			   OR (requester_id = $2 AND target_id = $1)`, a, b)
		return err
	})
}

// CountAcceptedConnections returns the user's connection count for
// profile display.
func (p *Postgres) CountAcceptedConnections(ctx context.Context, userID string) (int, error) {
	var n int
	err := withRetry(ctx, func() error {
		return p.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM connections
			WHERE status = 'accepted' AND (requester_id = $1 OR target_id = $1)`,
			userID).Scan(&n)
	})
	return n, err
}

func scanConnection(row rowScanner) (*core.Connection, error) {
	var c core.Connection
	err := row.Scan(&c.ID, &c.RequesterID, &c.TargetID, &c.Status,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
