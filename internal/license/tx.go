package license

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// committedError marks an error whose transaction must still commit, e.g. a
// VENCIDA transition that has to persist while the call itself fails.
type committedError struct {
	err error
}

func (e committedError) Error() string { return e.err.Error() }

func (e committedError) Unwrap() error { return e.err }

// Commit wraps err so Transaction commits the pending writes before returning it.
func Commit(err error) error {
	if err == nil {
		return nil
	}
	return committedError{err: err}
}

// Transaction runs fn in a database transaction. Errors wrapped with Commit are
// returned after a successful commit; any other error rolls back.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var deferred error
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := fn(tx)
		var c committedError
		if errors.As(err, &c) {
			deferred = c.err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return deferred
}
