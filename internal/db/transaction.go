package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithTransaction runs fn inside a transaction that commits when fn returns
// nil and rolls back on error or panic. Errors returned by fn come back
// wrapped unchanged; failures to begin or commit are mapped so a writer
// that lost the lock shows up as ErrBusy.
func (db *DB) WithTransaction(ctx context.Context, fn func(*gorm.DB) error) error {
	var fnErr error
	err := db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fmt.Errorf("transaction aborted: %w", fnErr)
	}
	return fmt.Errorf("transaction failed: %w", MapGormError(err))
}

// WithTx returns a DB handle bound to an open transaction so repositories
// built from it take part in that transaction. Nested WithTransaction calls
// on the handle become savepoints.
func WithTx(tx *gorm.DB) *DB {
	return &DB{DB: tx}
}
