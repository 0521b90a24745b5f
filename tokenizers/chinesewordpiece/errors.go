package chinesewordpiece

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMissingUnkToken is returned by Tokenize when an unknown token is needed but the configured
// unknown token is not in the vocabulary.
var ErrMissingUnkToken = errors.New("ChineseWordPiece error: Missing [UNK] token from the vocabulary")

// MissingFieldError is returned when deserializing a record that lacks a required field.
type MissingFieldError struct {
	Field string
}

// Error implements error.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// InvalidDiscriminantError is returned when deserializing a record whose "type" is not TypeName.
type InvalidDiscriminantError struct {
	Got string
}

// Error implements error.
func (e *InvalidDiscriminantError) Error() string {
	return fmt.Sprintf("invalid value: string %q, expected %s", e.Got, TypeName)
}
