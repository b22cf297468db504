package weather

import (
	"errors"
	"fmt"
)

// Pipeline error kinds. Callers match them with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid forecast request")
	ErrNetwork           = errors.New("forecast request failed")
	ErrMalformedResponse = errors.New("malformed forecast response")
	ErrAlignment         = errors.New("forecast sequences are not aligned")
	ErrMissingVariable   = errors.New("variable missing from forecast response")
	ErrEmptyDataset      = errors.New("dataset has no timestamps")
)

// MissingVariableError names a requested variable the API did not return.
type MissingVariableError struct {
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingVariable, e.Variable)
}

func (e *MissingVariableError) Is(target error) bool {
	return target == ErrMissingVariable
}
