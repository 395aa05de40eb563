// ABOUTME: PostgreSQL implementation of the Store interface using lib/pq
// ABOUTME: For deployments that keep transcripts in a hosted Postgres database

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	sqlStore
}

var postgresDialect = dialect{
	name:        "postgres",
	numbered:    true,
	isDuplicate: isUniqueViolation,
}

// NewPostgresStore connects to the database named by dsn and creates the
// schema if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{sqlStore{
		db:      db,
		dialect: postgresDialect,
		logger:  logger,
	}}

	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

// createSchema creates tables and columns that don't exist yet
func (s *PostgresStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id     TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			task_prompt TEXT NOT NULL,
			folder_path TEXT,
			status      TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'running', 'completed', 'failed')),
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_user ON rooms(user_id)`,
		`CREATE TABLE IF NOT EXISTS ai_messages (
			seq         BIGSERIAL PRIMARY KEY,
			message_id  TEXT NOT NULL UNIQUE,
			room_id     TEXT NOT NULL,
			agent_name  TEXT NOT NULL,
			content     TEXT NOT NULL,
			model_used  TEXT,
			tool_calls  JSONB,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_messages_room ON ai_messages(room_id, seq)`,
		`ALTER TABLE ai_messages ADD COLUMN IF NOT EXISTS token_count INTEGER`,
		`ALTER TABLE ai_messages ADD COLUMN IF NOT EXISTS custom_type TEXT`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation checks for Postgres error 23505 (unique_violation)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
