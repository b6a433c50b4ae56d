package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalid wraps validation failures of caller-supplied records.
	ErrInvalid = errors.New("invalid record")
	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrAlertNotTriggered is returned when acknowledging an alert that is not in the triggered state.
	ErrAlertNotTriggered = errors.New("alert is not in triggered state")
	// ErrDuplicateOpenAlert is returned when a sensor already has a non-resolved alert.
	ErrDuplicateOpenAlert = errors.New("sensor already has an open alert")
	// ErrAlertResolved is returned when updating an alert another writer already resolved.
	ErrAlertResolved = errors.New("alert is already resolved")
	// ErrZoneInUse is returned when deleting a zone that sensors or alerts still reference.
	ErrZoneInUse = errors.New("zone is still referenced")
	// ErrAdminZones is returned when assigning zones to an Admin.
	ErrAdminZones = errors.New("admins cannot be assigned to zones")
)

// isUniqueViolation matches the translated gorm error as well as the raw
// driver messages of postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
