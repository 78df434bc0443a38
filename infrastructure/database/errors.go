package database

import (
	"errors"
	"fmt"
)

var (
	ErrDatabaseError = errors.New("database error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("record not found")
)

// NotFoundError identifies the entity/key that was missing, so callers can
// render a precise message instead of a generic "not found".
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s with id '%s' not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	return nil
}
