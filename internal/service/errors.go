package service

import (
	"errors"
	"fmt"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrNotFound         = errors.New("reference item not found")
	ErrGUIDRequired     = errors.New("guid is required")
	ErrUnauthenticated  = errors.New("authentication required")
)

// PermissionError reports a caller lacking a permission.
type PermissionError struct {
	Principal  string
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s does not have permission %s", e.Principal, e.Permission)
}

// ArgumentError reports an invalid request argument.
type ArgumentError struct {
	Argument string
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Argument, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// RepositoryError wraps a persistence failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// IntegrationError wraps a failure of a collaborating system (cache, object storage, encoding).
type IntegrationError struct {
	Op  string
	Err error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration %s: %v", e.Op, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }
