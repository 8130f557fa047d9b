package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/appovenbackend/ticketing/internal/core"
)

const userColumns = `id, name, COALESCE(phone, ''), COALESCE(email, ''), password_hash,
	COALESCE(google_id, ''), role, is_private, bio, picture_url,
	instagram, twitter, linkedin, subscribed_events, created_at`

// CreateUser inserts a new account. A taken phone or google id maps to
// core.ErrAlreadyExists.
func (p *Postgres) CreateUser(ctx context.Context, u *core.User) error {
	subs, err := marshalJSON(u.SubscribedEvents)
	if err != nil {
		return err
	}
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO users (id, name, phone, email, password_hash, google_id, role,
				is_private, bio, picture_url, instagram, twitter, linkedin,
				subscribed_events, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7,
				$8, $9, $10, $11, $12, $13, $14, $15)`,
			u.ID, u.Name, u.Phone, u.Email, u.PasswordHash, u.GoogleID, u.Role,
			u.IsPrivate, u.Bio, u.PictureURL, u.Instagram, u.Twitter, u.LinkedIn,
			subs, u.CreatedAt)
		if isUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return err
	})
}

// GetUser loads one user by id.
func (p *Postgres) GetUser(ctx context.Context, id string) (*core.User, error) {
	var u *core.User
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
		var err error
		u, err = scanUser(row)
		return err
	})
	return u, err
}

// GetUserByPhone loads a user by phone number.
func (p *Postgres) GetUserByPhone(ctx context.Context, phone string) (*core.User, error) {
	var u *core.User
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
		var err error
		u, err = scanUser(row)
		return err
	})
	return u, err
}

// UpdateUser writes mutable profile fields. Subscriptions are changed
// only through the ticket composite operations.
func (p *Postgres) UpdateUser(ctx context.Context, u *core.User) error {
	return withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE users SET name = $2, email = $3, is_private = $4, bio = $5,
				picture_url = $6, instagram = $7, twitter = $8, linkedin = $9
			WHERE id = $1`,
			u.ID, u.Name, u.Email, u.IsPrivate, u.Bio,
			u.PictureURL, u.Instagram, u.Twitter, u.LinkedIn)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var u core.User
	var subs []byte
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.PasswordHash,
		&u.GoogleID, &u.Role, &u.IsPrivate, &u.Bio, &u.PictureURL,
		&u.Instagram, &u.Twitter, &u.LinkedIn, &subs, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(subs, &u.SubscribedEvents); err != nil {
		return nil, fmt.Errorf("decode subscribed_events: %w", err)
	}
	return &u, nil
}

// appendSubscription adds eventID to the user's subscription set inside
// an open transaction, locking the row to serialize concurrent writers.
func appendSubscription(ctx context.Context, tx *sql.Tx, userID, eventID string) error {
	var subs []byte
	err := tx.QueryRowContext(ctx,
		`SELECT subscribed_events FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&subs)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	var ids []string
	if err := unmarshalJSON(subs, &ids); err != nil {
		return fmt.Errorf("decode subscribed_events: %w", err)
	}
	for _, id := range ids {
		if id == eventID {
			return nil
		}
	}
	ids = append(ids, eventID)

	out, err := marshalJSON(ids)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET subscribed_events = $2 WHERE id = $1`, userID, out)
	return err
}
