package services

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresProvider reports PostgreSQL readiness over a small database/sql
// handle, independent of the repository's pgx pool.
type PostgresProvider struct {
	BaseProvider
	db *sql.DB
}

// NewPostgresProvider opens and pings a database/sql connection
func NewPostgresProvider(ctx context.Context, dsn string) (*PostgresProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresProvider{
		BaseProvider: BaseProvider{serviceType: "postgres"},
		db:           db,
	}, nil
}

// HealthCheck verifies PostgreSQL connectivity and that the schema is migrated
func (p *PostgresProvider) HealthCheck(ctx context.Context) error {
	var applied int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		return fmt.Errorf("postgres not ready: %w", err)
	}
	if applied == 0 {
		return fmt.Errorf("postgres not ready: no migrations applied")
	}
	return nil
}

// Close closes the connection
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}
