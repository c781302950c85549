// Package sqlstore provides a provenance store kept in a SQL database. Both
// postgres (through lib/pq) and sqlite (through modernc.org/sqlite) are
// supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LopezGroup-ICIQ/cattools"
	"github.com/LopezGroup-ICIQ/cattools/retry"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour of a database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Config configures Open.
type Config struct {
	Dialect Dialect
	// DSN is the data source name passed to the driver: a connection URL for
	// postgres, a file path or ":memory:" for sqlite.
	DSN          string
	PingTimeout  time.Duration
	PingRetries  int
	MaxOpenConns int
}

// Validate checks if the configuration is usable
func (c Config) Validate() error {
	if c.Dialect != Postgres && c.Dialect != SQLite {
		return fmt.Errorf("unknown sql dialect %q", c.Dialect)
	}
	if c.DSN == "" {
		return errors.New("sql store dsn is required")
	}
	if c.PingTimeout < 0 {
		return errors.New("ping timeout must be >= 0")
	}
	if c.PingRetries < 0 {
		return errors.New("ping retries must be >= 0")
	}
	return nil
}

// Store is a cattools.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ cattools.Store = (*Store)(nil)

// Open connects to the database, waits for it to answer and creates the
// tables if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	db, err := sql.Open(string(cfg.Dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	switch {
	case cfg.Dialect == SQLite:
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retry.WithMaxRetries(cfg.PingRetries), retry.WithBaseWait(250*time.Millisecond))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := New(db, cfg.Dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Migrate must have been run on it.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		record_key   TEXT PRIMARY KEY,
		ordinal      BIGINT NOT NULL,
		node_type    TEXT NOT NULL,
		engine_label TEXT NOT NULL,
		exit_status  INTEGER NOT NULL,
		document     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_query ON records (node_type, exit_status, ordinal)`,
	`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS collection_members (
		collection TEXT NOT NULL,
		position   INTEGER NOT NULL,
		record_key TEXT NOT NULL,
		PRIMARY KEY (collection, position)
	)`,
}

// Migrate creates the tables used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to the dialect's form.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put inserts or replaces a record. A missing key or ordinal is assigned in
// place on the given record.
func (s *Store) Put(ctx context.Context, record *cattools.ExecutionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if record.Key == cattools.NoRecord {
		record.Key = cattools.NewRecordKey()
	}
	if record.Ordinal == 0 {
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ordinal), 0) + 1 FROM records`)
		if err := row.Scan(&record.Ordinal); err != nil {
			return fmt.Errorf("failed to assign ordinal: %w", err)
		}
	}
	record.AssignBlobKeys()
	document, err := cattools.EncodeRecord(record)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO records (record_key, ordinal, node_type, engine_label, exit_status, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_key) DO UPDATE SET
			ordinal = excluded.ordinal,
			node_type = excluded.node_type,
			engine_label = excluded.engine_label,
			exit_status = excluded.exit_status,
			document = excluded.document`),
		record.Key, record.Ordinal, record.NodeType, record.EngineLabel, record.ExitStatus, string(document))
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", record.Key, err)
	}
	return tx.Commit()
}

// AddToCollection appends keys to a named collection, creating it if needed.
func (s *Store) AddToCollection(ctx context.Context, collection string, keys ...string) error {
	if collection == "" {
		return errors.New("collection name required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO collections (name) VALUES (?) ON CONFLICT (name) DO NOTHING`), collection); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", collection, err)
	}
	var position int64
	row := tx.QueryRowContext(ctx, s.rebind(
		`SELECT COALESCE(MAX(position), -1) + 1 FROM collection_members WHERE collection = ?`), collection)
	if err := row.Scan(&position); err != nil {
		return fmt.Errorf("failed to read collection %q: %w", collection, err)
	}
	for _, key := range keys {
		var exists int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM records WHERE record_key = ?`), key).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return cattools.NotFoundError(key)
		}
		if err != nil {
			return fmt.Errorf("failed to read record %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO collection_members (collection, position, record_key) VALUES (?, ?, ?)`),
			collection, position, key); err != nil {
			return fmt.Errorf("failed to add %s to collection %q: %w", key, collection, err)
		}
		position++
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context, key string) (*cattools.ExecutionRecord, error) {
	var document string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT document FROM records WHERE record_key = ?`), key).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cattools.NotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	return cattools.DecodeRecord([]byte(document))
}

func (s *Store) Query(ctx context.Context, filter cattools.Filter) ([]*cattools.ExecutionRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.NodeType != "" {
		conditions = append(conditions, "node_type = ?")
		args = append(args, filter.NodeType)
	}
	if filter.EngineLabel != "" {
		conditions = append(conditions, "engine_label = ?")
		args = append(args, filter.EngineLabel)
	}
	if filter.ExitStatus != nil {
		conditions = append(conditions, "exit_status = ?")
		args = append(args, *filter.ExitStatus)
	}
	query := `SELECT document FROM records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ordinal"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*cattools.ExecutionRecord
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := cattools.DecodeRecord([]byte(document))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) Members(ctx context.Context, collection string) ([]cattools.Member, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM collections WHERE name = ?`), collection).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", collection, cattools.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %q: %w", collection, err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT m.record_key, r.ordinal
		FROM collection_members m
		JOIN records r ON r.record_key = m.record_key
		WHERE m.collection = ?
		ORDER BY m.position`), collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %q: %w", collection, err)
	}
	defer rows.Close()

	members := []cattools.Member{}
	for rows.Next() {
		var member cattools.Member
		if err := rows.Scan(&member.Key, &member.Ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan collection member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
