package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

// Postgres SQLSTATE values that mean "another transaction got there first".
var conflictSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available (lock_timeout)
}

var sqliteBusyMarkers = []string{
	"database is locked",
	"database table is locked",
}

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error chain.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if info, ok := pkgerrors.PostgresInfo(err); ok {
		if info.Code != "23505" {
			return false
		}
		return constraintName == "" || info.Constraint == constraintName
	}
	return chainContains(err, func(msg string) bool {
		if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
			return false
		}
		return constraintName == "" || strings.Contains(msg, constraintName)
	})
}

// IsConcurrencyConflict reports whether err is a lock timeout, deadlock or serialization failure.
func IsConcurrencyConflict(err error) bool {
	if err == nil {
		return false
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
		return true
	}
	if info, ok := pkgerrors.PostgresInfo(err); ok {
		_, hit := conflictSQLStates[info.Code]
		return hit
	}
	return chainContains(err, func(msg string) bool {
		for _, marker := range sqliteBusyMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
		return false
	})
}

func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
		return err
	}
	if IsConcurrencyConflict(err) {
		return pkgerrors.ConcurrencyConflict(err)
	}
	return err
}

func chainContains(err error, match func(string) bool) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if match(e.Error()) {
			return true
		}
	}
	return false
}
