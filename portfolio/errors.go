package portfolio

import (
	"errors"
	"fmt"
)

// ErrUnknownToken signals a symbol or ticker with no canonical asset mapping.
var ErrUnknownToken = errors.New("unknown token")

// ErrorKind classifies an import failure.
type ErrorKind string

const (
	UnknownToken      ErrorKind = "unknown token"
	BrokenFile        ErrorKind = "broken file"
	EmptyFile         ErrorKind = "empty file"
	UnexpectedContent ErrorKind = "unexpected content"
	DatabaseError     ErrorKind = "database error"
)

// ImportError is a single row or file failure accumulated during an import
// run. It is returned to the caller, never persisted.
type ImportError struct {
	Kind     ErrorKind
	Filename string
	// Source names the adapter that produced the error, empty when no
	// adapter recognized the file
	Source string
	// Transaction is attached on database errors so the user can retry
	Transaction *Transaction
	Err         error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Filename, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Kind)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}
