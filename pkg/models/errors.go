package models

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel errors for storage-level failures. Callers test with errors.Is.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint is violated,
	// e.g. inserting a second embedding with the same chunk index.
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidTransition is returned for a document status change
	// outside pending -> processing -> {processed, error}.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingVector is returned when an embedding is persisted
	// without a vector.
	ErrMissingVector = errors.New("embedding requires a non-empty vector")

	// ErrForeignKey is returned when a record references a missing parent.
	ErrForeignKey = errors.New("referenced record does not exist")
)

// PostgreSQL error codes we translate into sentinel errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// TranslateError maps driver and GORM errors onto the package sentinels so
// callers never need to import gorm or pgx to classify a failure.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %v", ErrForeignKey, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.Detail)
		}
	}

	return err
}
