package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// RunMigrations applies every pending .sql file from migrationsDir in name order.
// Each file runs in its own transaction together with its schema_migrations row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, log *zap.Logger) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := pendingMigrations(migrationsDir, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debug("schema up to date", zap.Int("applied", len(applied)))
		return nil
	}

	for _, name := range pending {
		content, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}

		log.Info("migration applied", zap.String("migration", name))
	}

	return nil
}

// pendingMigrations lists the .sql files in dir not yet recorded, sorted by name
func pendingMigrations(dir string, applied map[string]bool) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var pending []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") || applied[f.Name()] {
			continue
		}
		pending = append(pending, f.Name())
	}
	sort.Strings(pending)

	return pending, nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}

	return applied, rows.Err()
}

// EnsureClients upserts the configured admin API clients so a fresh
// database accepts the keys from configuration.
func EnsureClients(ctx context.Context, pool *pgxpool.Pool, clients []*models.ApiClient) error {
	for _, c := range clients {
		perms, err := json.Marshal(c.Permissions)
		if err != nil {
			return fmt.Errorf("failed to marshal permissions: %w", err)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO api_clients (name, api_key, is_active, permissions)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (api_key) DO UPDATE
			SET name = EXCLUDED.name, is_active = EXCLUDED.is_active, permissions = EXCLUDED.permissions
		`, c.Name, c.ApiKey, c.IsActive, perms)
		if err != nil {
			return fmt.Errorf("failed to upsert api client %s: %w", c.Name, err)
		}
	}
	return nil
}
