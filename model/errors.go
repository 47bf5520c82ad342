package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateMember   = errors.New("duplicate member")
	ErrEmptyEnum         = errors.New("enum declares no constants")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidDecl       = errors.New("invalid declaration")
)

// BuildError reports a construction-time violation. Call names the builder
// operation that was rejected.
type BuildError struct {
	Decl string
	Call string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s: %v", e.Decl, e.Call, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
