package model

import (
	"errors"
	"fmt"
	"strings"
)

// SourceLoadError reports an input that could not be read or parsed.
type SourceLoadError struct {
	Source string // "tracts", "stores", "demographics"
	Path   string // file path or URL
	Err    error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceLoadError) Unwrap() error {
	return e.Err
}

// NewSourceLoadError wraps err as a SourceLoadError.
func NewSourceLoadError(source, path string, err error) *SourceLoadError {
	return &SourceLoadError{Source: source, Path: path, Err: err}
}

// JoinKeyMismatchError reports region identifiers missing from a joined table.
type JoinKeyMismatchError struct {
	Table   string
	Missing []string
	Total   int
}

func (e *JoinKeyMismatchError) Error() string {
	shown := e.Missing
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return fmt.Sprintf("join %s: %d of %d region keys not found (e.g. %s)",
		e.Table, len(e.Missing), e.Total, strings.Join(shown, ", "))
}

// ModelConvergenceError reports an iterative fit that did not converge.
type ModelConvergenceError struct {
	Model  ModelKind
	Reason string
	Err    error
}

func (e *ModelConvergenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fit %s: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("fit %s: %s", e.Model, e.Reason)
}

func (e *ModelConvergenceError) Unwrap() error {
	return e.Err
}

// IsSourceLoad reports whether err (or any error in its chain) is a SourceLoadError.
func IsSourceLoad(err error) bool {
	var e *SourceLoadError
	return errors.As(err, &e)
}

// IsJoinKeyMismatch reports whether err (or any error in its chain) is a JoinKeyMismatchError.
func IsJoinKeyMismatch(err error) bool {
	var e *JoinKeyMismatchError
	return errors.As(err, &e)
}

// IsConvergence reports whether err (or any error in its chain) is a ModelConvergenceError.
func IsConvergence(err error) bool {
	var e *ModelConvergenceError
	return errors.As(err, &e)
}
