package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition is returned when a workflow entity is moved out
	// of a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateImmutable       = "55000"
)

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == sqlStateUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

// IsImmutableViolation reports whether err was raised by the revision
// immutability guard.
func IsImmutableViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == sqlStateImmutable
}
