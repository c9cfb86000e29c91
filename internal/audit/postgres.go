package audit

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresSink stores audit events in a PostgreSQL table.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink connects to connURL and creates table if it does not exist.
func NewPostgresSink(ctx context.Context, connURL, table string, maxConns int) (*PostgresSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("audit db config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("audit db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit db ping: %w", err)
	}

	s := &PostgresSink{pool: pool, table: table}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit db migrate: %w", err)
	}

	log.Info().Str("table", table).Msg("Postgres audit sink initialized")
	return s, nil
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			stage      TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			data       JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_type ON %[1]s (type);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s (created_at);
	`, s.table)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresSink) Kind() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ev models.AuditEvent) error {
	data := ev.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, stage, type, reason, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`, s.table)

	if _, err := s.pool.Exec(ctx, query, ev.ID, ev.Stage, ev.Type, ev.Reason, data, ev.Timestamp); err != nil {
		return fmt.Errorf("insert audit event %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	query := fmt.Sprintf(`SELECT id, stage, type, reason, data, created_at
		FROM %s ORDER BY created_at DESC LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Stage, &ev.Type, &ev.Reason, &ev.Data, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Purge deletes events created before the cutoff.
func (s *PostgresSink) Purge(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.table), before)
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
