package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// undefinedTable is the PostgreSQL SQLSTATE for a missing relation
const undefinedTable = "42P01"

// convertError maps driver errors onto the package errors
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// Check for PostgreSQL errors (pgx)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrTableMissing, pgErr.Message)
	}

	// Check for PostgreSQL errors (lib/pq)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == undefinedTable {
		return fmt.Errorf("%w: %s", ErrTableMissing, pqErr.Message)
	}

	// SQLite reports missing tables only in the message
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrTableMissing, err)
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
