package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	sqliteInsert = `INSERT INTO event_records
		(id, schema_version, value, created_unix_millis, source_topic, source_partition, source_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_topic, source_partition, source_offset) DO NOTHING`

	sqliteSelectBySource = `SELECT id FROM event_records
		WHERE source_topic = ? AND source_partition = ? AND source_offset = ?`

	sqliteListRecent = `SELECT id, schema_version, value, created_unix_millis, source_topic, source_partition, source_offset
		FROM event_records
		ORDER BY created_unix_millis DESC, seq DESC
		LIMIT ?`
)

// SQLiteStore persists records in a local SQLite database.
// Inserts are serialised; reads run concurrently thanks to WAL mode.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite creates or opens the database file at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping database", err)
	}

	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	if err := runMigrations(DriverSQLite, drv); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// sqliteDSN turns a file path into a DSN with WAL, full fsync on commit and a
// busy timeout so readers never fail while the writer holds the lock.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
}

// InsertOrGetExisting implements Writer
func (s *SQLiteStore) InsertOrGetExisting(ctx context.Context, rec Record) (string, bool, error) {
	if err := rec.validate(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	res, err := s.db.ExecContext(ctx, sqliteInsert,
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

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, unavailable("read rows affected", err)
	}
	if affected > 0 {
		return id, true, nil
	}

	var existingID string
	err = s.db.QueryRowContext(ctx, sqliteSelectBySource,
		rec.Source.Topic, rec.Source.Partition, rec.Source.Offset,
	).Scan(&existingID)
	if err != nil {
		return "", false, unavailable("load existing record", err)
	}

	return existingID, false, nil
}

// ListRecent implements Reader
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx, sqliteListRecent, limit)
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

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
