// Package store reads design documents from a SQL table. PostgreSQL is
// reached through pgx or lib/pq, local files through SQLite.
//
// The table is expected to have the columns
//
//	id TEXT PRIMARY KEY, title TEXT, kind TEXT, markdown TEXT, updated_at TIMESTAMP
//
// where kind is a diagram kind name or empty for auto-detection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	"github.com/lib/pq"                // PostgreSQL driver "postgres"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver "sqlite3"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
)

var (
	// ErrNotFound is returned when no document has the requested id
	ErrNotFound = errors.New("document not found")
	// ErrTableMissing is returned when the configured table does not exist
	ErrTableMissing = errors.New("document table does not exist")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Document is one stored design document
type Document struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Kind      string    `json:"kind" yaml:"kind"`
	Markdown  string    `json:"markdown" yaml:"markdown"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store reads documents from one table
type Store struct {
	db       *sql.DB
	driver   string
	table    string
	postgres bool
	logger   *zap.Logger
}

// Open connects with cfg and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := New(db, cfg.Driver, cfg.Table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. driver selects the placeholder style; table
// must be a plain, optionally schema-qualified identifier.
func New(db *sql.DB, driver, table string, logger *zap.Logger) (*Store, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		driver:   driver,
		table:    table,
		postgres: driver == "pgx" || driver == "postgres",
		logger:   logger,
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) placeholder(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) selectFrom() string {
	return "SELECT id, title, kind, markdown, updated_at FROM " + s.table
}

// Get loads the document with the given id
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	query := s.selectFrom() + " WHERE id = " + s.placeholder(1)

	var doc Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Title, &doc.Kind, &doc.Markdown, &doc.UpdatedAt)
	if err != nil {
		return nil, convertError(err)
	}
	return &doc, nil
}

// List loads every document, or only those of kind when kind is not empty,
// ordered by id
func (s *Store) List(ctx context.Context, kind string) ([]Document, error) {
	query := s.selectFrom()
	var args []any
	if kind != "" {
		query += " WHERE kind = " + s.placeholder(1)
		args = append(args, kind)
	}
	query += " ORDER BY id"
	return s.query(ctx, query, args...)
}

// ListByIDs loads the documents with the given ids, ordered by id. Unknown
// ids are skipped.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	if s.postgres {
		query := s.selectFrom() + " WHERE id = ANY($1) ORDER BY id"
		return s.query(ctx, query, pq.Array(ids))
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := s.selectFrom() + " WHERE id IN (" + marks + ") ORDER BY id"
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Kind, &doc.Markdown, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, convertError(err)
	}

	s.logger.Debug("documents loaded",
		zap.String("table", s.table),
		zap.Int("count", len(docs)),
		zap.Duration("elapsed", time.Since(start)))
	return docs, nil
}
