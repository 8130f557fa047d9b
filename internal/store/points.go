package store

import (
	"context"
	"database/sql"

	"github.com/appovenbackend/ticketing/internal/core"
)

// ApplyPointsTx appends one signed transaction and adjusts the balance
// atomically. A delta that would drive the balance negative maps to
// core.ErrInsufficientPoints and nothing is written.
func (p *Postgres) ApplyPointsTx(ctx context.Context, userID string, ptx core.PointsTransaction) (int64, error) {
	var balance int64
	err := p.tx(ctx, func(tx *sql.Tx) error {
		award := core.PointsAward{UserID: userID, Points: ptx.Points, Reason: ptx.Reason}
		if err := applyTx(ctx, tx, &award, ptx); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT total_points FROM user_points WHERE user_id = $1`, userID).Scan(&balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetPoints returns the balance plus full history; a user with no
// ledger activity reads as a zero balance.
func (p *Postgres) GetPoints(ctx context.Context, userID string) (*core.UserPoints, error) {
	up := &core.UserPoints{UserID: userID}
	err := withRetry(ctx, func() error {
		err := p.db.QueryRowContext(ctx,
			`SELECT total_points FROM user_points WHERE user_id = $1`, userID).
			Scan(&up.TotalPoints)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		rows, err := p.db.QueryContext(ctx, `
			SELECT type, points, reason, actor, ts FROM points_transactions
			WHERE user_id = $1 ORDER BY ts, id`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		up.Transactions = up.Transactions[:0]
		for rows.Next() {
			var t core.PointsTransaction
			if err := rows.Scan(&t.Type, &t.Points, &t.Reason, &t.Actor, &t.Timestamp); err != nil {
				return err
			}
			up.Transactions = append(up.Transactions, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return up, nil
}

// ListPointsTransactions returns recent transactions, newest first.
// An empty userID lists across all users.
func (p *Postgres) ListPointsTransactions(ctx context.Context, userID string, limit int) ([]core.PointsTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT type, points, reason, actor, ts FROM points_transactions`
	args := []interface{}{limit}
	if userID != "" {
		query += ` WHERE user_id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT $1`

	var out []core.PointsTransaction
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var t core.PointsTransaction
			if err := rows.Scan(&t.Type, &t.Points, &t.Reason, &t.Actor, &t.Timestamp); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// applyAwardTx records an earn inside an already-open transaction.
func applyAwardTx(ctx context.Context, tx *sql.Tx, award *core.PointsAward) error {
	ptx := core.PointsTransaction{
		Type:   core.PointsEarned,
		Points: award.Points,
		Reason: award.Reason,
	}
	return applyTx(ctx, tx, award, ptx)
}

func applyTx(ctx context.Context, tx *sql.Tx, award *core.PointsAward, ptx core.PointsTransaction) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_points (user_id, total_points) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`, award.UserID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_points SET total_points = total_points + $2
		WHERE user_id = $1 AND total_points + $2 >= 0`,
		award.UserID, ptx.Points)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrInsufficientPoints
	}

	ts := ptx.Timestamp
	if ts.IsZero() {
		var err error
		if err = tx.QueryRowContext(ctx, `SELECT now()`).Scan(&ts); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, type, points, reason, actor, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		award.UserID, ptx.Type, ptx.Points, ptx.Reason, ptx.Actor, ts)
	return err
}
