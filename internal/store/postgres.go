// Package store implements the persistence layer on Postgres. It is
// the only package that speaks SQL; services depend on interfaces they
// declare themselves, which *Postgres satisfies. Cross-aggregate writes
// (ticket + subscription, ticket + points) are composite operations so
// the invariants hold inside one transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/lib/pq"
)

// Postgres wraps a database/sql pool opened with the lib/pq driver.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects and pings before returning.
func OpenPostgres(url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	slog.Info("postgres connected")
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// tx runs fn inside a transaction, rolling back on error.
func (p *Postgres) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	t, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

// retryBackoff is the capped schedule for transient database faults.
var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// withRetry retries fn on transient errors (connection faults,
// serialization failures, deadlocks). fn must be safe to re-run.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) || attempt >= len(retryBackoff) {
			return err
		}
		slog.Warn("transient database error, retrying",
			"attempt", attempt+1, "backoff", retryBackoff[attempt], "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff[attempt]):
		}
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		// Class 08: connection exceptions.
		return pqErr.Code.Class() == "08"
	}
	return errors.Is(err, sql.ErrConnDone)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column: %w", err)
	}
	return b, nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// nullTime converts a nullable column to a *time.Time.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
