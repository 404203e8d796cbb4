package database

import (
	"errors"

	"github.com/lib/pq"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsSerializationFailure reports whether err is a postgres conflict that a
// fresh attempt of the same transaction may succeed on.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}
