package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Row is one event as stored, in the fixed exported column order.
type Row struct {
	Timestamp        time.Time
	EventType        string
	MaskedIdentity   string
	IdentifierHash   string
	MaskedIdentifier string
	Status           string
	StorageRef       string
	ErrorCode        string
	ExtraJSON        string
}

// Store is the SQLite-backed event log. It implements Appender.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the event database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "events.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("starting migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// parseMigrationVersion extracts the leading number from "0001_init.sql".
func parseMigrationVersion(name string) (int, error) {
	base := strings.TrimSuffix(name, ".sql")
	idx := strings.Index(base, "_")
	if idx <= 0 {
		return 0, fmt.Errorf("malformed migration filename: %s", name)
	}
	v, err := strconv.Atoi(base[:idx])
	if err != nil {
		return 0, fmt.Errorf("malformed migration version in %s: %w", name, err)
	}
	return v, nil
}

// Append validates the payload against the allow-list and writes one event
// row. Any forbidden key or raw-identifier value hard-fails the call with
// ErrForbiddenField; nothing is written.
func (s *Store) Append(ctx context.Context, eventType string, payload Payload) error {
	if err := validate(payload); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(timestamp, event_type, masked_identity, identifier_hash, masked_identifier, status, storage_reference, error_code, extra_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(),
		eventType,
		payload[KeyMaskedIdentity],
		payload[KeyIdentifierHash],
		payload[KeyMaskedIdentifier],
		payload[KeyStatus],
		payload[KeyStorageRef],
		payload[KeyErrorCode],
		payload[KeyExtra],
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// RowsByIdentifierHash returns all events recorded for one identifier hash,
// oldest first.
func (s *Store) RowsByIdentifierHash(ctx context.Context, hash string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, event_type, masked_identity, identifier_hash, masked_identifier, status, storage_reference, error_code, extra_json
		FROM events WHERE identifier_hash = ? ORDER BY id`, hash)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// RowsByType returns all events of one type, oldest first.
func (s *Store) RowsByType(ctx context.Context, eventType string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, event_type, masked_identity, identifier_hash, masked_identifier, status, storage_reference, error_code, extra_json
		FROM events WHERE event_type = ? ORDER BY id`, eventType)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// DeleteByIdentifierHash removes every event recorded for one identifier
// hash and returns the number of rows deleted. Used by the data-deletion
// flow.
func (s *Store) DeleteByIdentifierHash(ctx context.Context, hash string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE identifier_hash = ?", hash)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted events: %w", err)
	}
	return int(n), nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Timestamp, &r.EventType, &r.MaskedIdentity, &r.IdentifierHash, &r.MaskedIdentifier, &r.Status, &r.StorageRef, &r.ErrorCode, &r.ExtraJSON); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
