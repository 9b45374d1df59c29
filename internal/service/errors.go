package service

import (
	"database/sql"
	"errors"
)

// Sentinel errors surfaced to callers. Handlers map these onto HTTP
// status codes.
var (
	// ErrUnauthenticated is returned when an operation is attempted
	// without an acting owner.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when the addressed record does not exist
	// or belongs to another owner.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for requests the service refuses to store.
	ErrInvalid = errors.New("invalid request")
)

// asNotFound converts the store's row-absence error into ErrNotFound and
// leaves everything else untouched.
func asNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
