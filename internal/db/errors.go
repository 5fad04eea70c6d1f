package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Custom database errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrForeignKey   = errors.New("foreign key constraint violation")
	ErrInvalidInput = errors.New("invalid input")
	// ErrStale indicates a guarded update matched no row because the row
	// changed after it was read
	ErrStale = errors.New("stale record")
	// ErrBusy indicates another writer held the database lock past the busy timeout
	ErrBusy = errors.New("database busy")
)

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate checks if error is a duplicate error
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsStale checks if error is a stale guarded update
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// IsBusy checks if error is lock contention with another writer
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsForeignKey checks if error is a foreign key constraint violation
func IsForeignKey(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

// MapGormError maps GORM errors to custom domain errors
func MapGormError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	// Check for SQLite constraint and locking errors
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "unique constraint"):
		return ErrDuplicate
	case strings.Contains(errMsg, "foreign key constraint"):
		return ErrForeignKey
	case strings.Contains(errMsg, "check constraint"):
		return ErrInvalidInput
	case strings.Contains(errMsg, "database is locked"), strings.Contains(errMsg, "database table is locked"):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}

	return err
}
