package service

import (
	"errors"

	"github.com/garyjia/expense-approval/internal/application/workflow"
)

var (
	// ErrClaimNotFound is returned when the claim id does not exist
	ErrClaimNotFound = workflow.ErrClaimNotFound

	// ErrUserNotFound is returned when the user id does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrCompanyNotFound is returned when the user's company is missing
	ErrCompanyNotFound = errors.New("company not found")

	// ErrForbidden is returned when the actor may not perform the operation
	ErrForbidden = errors.New("forbidden")

	// ErrEmailTaken is returned when creating a user with an existing email
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidInput is returned for malformed request data
	ErrInvalidInput = errors.New("invalid input")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
