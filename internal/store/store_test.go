package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphaener/ddmark/internal/cli/config"
)

var columns = []string{"id", "title", "kind", "markdown", "updated_at"}

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, driver, "design_documents", nil)
	require.NoError(t, err)
	return s, mock
}

func TestGet(t *testing.T) {
	s, mock := newMockStore(t, "pgx")
	updated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, kind, markdown, updated_at FROM design_documents WHERE id = $1")).
		WithArgs("order-domain").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("order-domain", "受注ドメイン", "class", "## エンティティ", updated))

	doc, err := s.Get(context.Background(), "order-domain")
	require.NoError(t, err)
	assert.Equal(t, &Document{ID: "order-domain", Title: "受注ドメイン", Kind: "class", Markdown: "## エンティティ", UpdatedAt: updated}, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectQuery("SELECT .* FROM design_documents WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name   string
		driver string
		kind   string
		query  string
		args   []driver.Value
	}{
		{"all", "pgx", "", "SELECT id, title, kind, markdown, updated_at FROM design_documents ORDER BY id", nil},
		{"by kind postgres", "pgx", "er", "SELECT id, title, kind, markdown, updated_at FROM design_documents WHERE kind = $1 ORDER BY id", []driver.Value{"er"}},
		{"by kind sqlite", "sqlite3", "er", "SELECT id, title, kind, markdown, updated_at FROM design_documents WHERE kind = ? ORDER BY id", []driver.Value{"er"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t, tt.driver)
			expect := mock.ExpectQuery(regexp.QuoteMeta(tt.query))
			if tt.args != nil {
				expect = expect.WithArgs(tt.args...)
			}
			expect.WillReturnRows(sqlmock.NewRows(columns).
				AddRow("a", "A", "er", "# a", now).
				AddRow("b", "B", "er", "# b", now))

			docs, err := s.List(context.Background(), tt.kind)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "b", docs[1].ID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListByIDs(t *testing.T) {
	now := time.Now().UTC()

	t.Run("postgres uses ANY", func(t *testing.T) {
		s, mock := newMockStore(t, "pgx")
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1) ORDER BY id")).
			WithArgs(pq.Array([]string{"a", "b"})).
			WillReturnRows(sqlmock.NewRows(columns).AddRow("a", "A", "", "# a", now))

		docs, err := s.ListByIDs(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite expands placeholders", func(t *testing.T) {
		s, mock := newMockStore(t, "sqlite3")
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id IN (?, ?, ?) ORDER BY id")).
			WithArgs("a", "b", "c").
			WillReturnRows(sqlmock.NewRows(columns))

		docs, err := s.ListByIDs(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no ids", func(t *testing.T) {
		s, _ := newMockStore(t, "pgx")
		docs, err := s.ListByIDs(context.Background(), nil)
		assert.NoError(t, err)
		assert.Nil(t, docs)
	})
}

func TestNew_InvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"", "docs; DROP TABLE users", "1docs", "a.b.c"} {
		_, err := New(db, "pgx", table, nil)
		assert.Error(t, err, table)
	}
	_, err = New(db, "pgx", "public.design_documents", nil)
	assert.NoError(t, err)
}

func TestConvertError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"pgx missing table", &pgconn.PgError{Code: "42P01", Message: `relation "docs" does not exist`}, ErrTableMissing},
		{"pq missing table", &pq.Error{Code: "42P01", Message: `relation "docs" does not exist`}, ErrTableMissing},
		{"sqlite missing table", errors.New("no such table: docs"), ErrTableMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, convertError(tt.err), tt.target)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, convertError(other))
	assert.NoError(t, convertError(nil))
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite3", URL: "file::memory:?cache=shared", Table: "docs"}, nil)
	require.NoError(t, err)
	defer s.Close()
	s.db.SetMaxOpenConns(1)

	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrTableMissing)

	_, err = s.db.ExecContext(ctx, `CREATE TABLE docs (
		id TEXT PRIMARY KEY, title TEXT, kind TEXT, markdown TEXT, updated_at TIMESTAMP)`)
	require.NoError(t, err)
	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.db.ExecContext(ctx, `INSERT INTO docs VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)`,
		"db", "DB設計", "er", "## 物理設計", updated,
		"flow", "受注処理", "flow", "## プロセスフロー", updated)
	require.NoError(t, err)

	doc, err := s.Get(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, "DB設計", doc.Title)
	assert.True(t, updated.Equal(doc.UpdatedAt))

	docs, err := s.ListByIDs(ctx, []string{"flow", "absent"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "flow", docs[0].Kind)

	docs, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
