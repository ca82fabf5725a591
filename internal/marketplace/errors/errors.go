// Package errors defines the sentinel errors shared by the repository,
// service and transport layers. Callers wrap them with fmt.Errorf("%w: ...")
// to add detail and classify with errors.Is.
package errors

import (
	"fmt"
)

var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrForbidden    = fmt.Errorf("forbidden")
	ErrInvalidState = fmt.Errorf("invalid state")
	ErrConflict     = fmt.Errorf("conflict")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnauthorized = fmt.Errorf("unauthorized")
)
