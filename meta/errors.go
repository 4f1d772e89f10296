package meta

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedName means a name does not follow the
	// P<n>...T<n>...config<n> convention.
	ErrMalformedName = errors.New("malformed configuration name")

	// ErrMalformedHeader means a structure file could not be parsed at all.
	ErrMalformedHeader = errors.New("malformed structure file")

	// ErrFileNotFound means a required input file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// MalformedNameError reports which prefix was missing from Name.
type MalformedNameError struct {
	Name   string
	Prefix string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("%s: %s: no %q prefix followed by digits", ErrMalformedName, e.Name, e.Prefix)
}

func (e *MalformedNameError) Unwrap() error { return ErrMalformedName }

// MalformedHeaderError wraps the reader error for the structure file at Path.
// Line is the line the reader stopped at, or 0 if unknown.
type MalformedHeaderError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMalformedHeader, e.Path, e.Err)
}

func (e *MalformedHeaderError) Unwrap() []error { return []error{ErrMalformedHeader, e.Err} }
