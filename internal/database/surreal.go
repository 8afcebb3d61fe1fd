package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/surrealdb/surrealdb.go"
)

// SurrealConfig holds the connection settings for SurrealDB.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// NewSurrealDB connects, signs in and selects the namespace and database,
// retrying the whole sequence with backoff.
func NewSurrealDB(ctx context.Context, cfg SurrealConfig, retryer *Retryer) (*surrealdb.DB, error) {
	if retryer == nil {
		retryer = DefaultRetryer()
	}

	var db *surrealdb.DB
	err := retryer.Retry(ctx, func() error {
		conn, err := connectSurreal(ctx, cfg)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, NewDBError(fmt.Errorf("%w: %v", ErrNotConnected, err), "connect surrealdb")
	}

	slog.Info("Successfully signed in to SurrealDB",
		"url", redactURL(cfg.URL),
		"namespace", cfg.Namespace,
		"database", cfg.Database)
	return db, nil
}

func connectSurreal(ctx context.Context, cfg SurrealConfig) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to surrealdb at %s: %w", redactURL(cfg.URL), err)
	}

	if cfg.Username != "" {
		authData := &surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		}
		if _, err = db.SignIn(ctx, authData); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}

	if err = db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}
	return db, nil
}
