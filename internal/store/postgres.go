package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgInsert = `INSERT INTO event_records
		(id, schema_version, value, created_unix_millis, source_topic, source_partition, source_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_topic, source_partition, source_offset) DO NOTHING`

	pgSelectBySource = `SELECT id FROM event_records
		WHERE source_topic = $1 AND source_partition = $2 AND source_offset = $3`

	pgListRecent = `SELECT id, schema_version, value, created_unix_millis, source_topic, source_partition, source_offset
		FROM event_records
		ORDER BY created_unix_millis DESC, seq DESC
		LIMIT $1`
)

// PostgresStore persists records in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and applies migrations
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	if err := migratePostgres(connString); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping database", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func migratePostgres(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	drv, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return unavailable("create migration driver", err)
	}

	return runMigrations(DriverPostgres, drv)
}

// InsertOrGetExisting implements Writer
func (s *PostgresStore) InsertOrGetExisting(ctx context.Context, rec Record) (string, bool, error) {
	if err := rec.validate(); err != nil {
		return "", false, err
	}

	id := uuid.New().String()
	tag, err := s.pool.Exec(ctx, pgInsert,
		id,
		schemaVersionOf(rec),
		rec.Value,
		rec.CreatedAt.UnixMilli(),
		rec.Source.Topic,
		rec.Source.Partition,
		rec.Source.Offset,
	)
	if err != nil {
		return "", false, unavailable("insert record", err)
	}
	if tag.RowsAffected() > 0 {
		return id, true, nil
	}

	var existingID string
	err = s.pool.QueryRow(ctx, pgSelectBySource,
		rec.Source.Topic, rec.Source.Partition, rec.Source.Offset,
	).Scan(&existingID)
	if err != nil {
		return "", false, unavailable("load existing record", err)
	}

	return existingID, false, nil
}

// ListRecent implements Reader
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.pool.Query(ctx, pgListRecent, limit)
	if err != nil {
		return nil, unavailable("query records", err)
	}
	defer rows.Close()

	records := make([]Record, 0, min(limit, 256))
	for rows.Next() {
		var r Record
		var createdMillis int64
		if err := rows.Scan(
			&r.ID, &r.SchemaVersion, &r.Value, &createdMillis,
			&r.Source.Topic, &r.Source.Partition, &r.Source.Offset,
		); err != nil {
			return nil, unavailable("scan record", err)
		}
		r.CreatedAt = time.UnixMilli(createdMillis).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate records", err)
	}

	return records, nil
}

// Ping checks the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
