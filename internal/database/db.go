package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-checkout/internal/config"
)

const (
	pingAttempts = 5
	pingTimeout  = 5 * time.Second
)

// NewConnection opens the pool and waits for the server to answer, retrying
// the ping while the database is still starting.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	backoff := 200 * time.Millisecond

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}

		if attempt < pingAttempts {
			if err := sleepBackoff(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("ping database after %d attempts: %w", pingAttempts, err)
}
