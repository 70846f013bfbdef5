// Package apperr defines the error taxonomy shared by the indexer, the index
// store, the query compiler and the interactive session.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNoFrontmatter        = errors.New("no frontmatter")
	ErrMalformedFrontmatter = errors.New("malformed frontmatter")
	ErrMissingField         = errors.New("missing required field")
	ErrIO                   = errors.New("i/o error")
	ErrIndexCorrupt         = errors.New("index corruption")
	ErrQuerySyntax          = errors.New("query syntax error")
	ErrStaleReference       = errors.New("stale reference")
	ErrIndexBusy            = errors.New("indexing pass already in progress")
	ErrCancelled            = errors.New("cancelled")
)

// ParseError reports a file whose frontmatter could not be turned into a
// document. Kind is one of ErrNoFrontmatter, ErrMalformedFrontmatter or
// ErrMissingField.
type ParseError struct {
	Path  string
	Field string
	Kind  error
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += fmt.Sprintf(" %q", e.Field)
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IOError reports a candidate file that could not be read.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// CorruptionError is fatal for the operation that produced it. The store is
// left at its last committed generation.
type CorruptionError struct {
	Op  string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("index corruption during %s: %v", e.Op, e.Err)
}

func (e *CorruptionError) Unwrap() []error { return []error{ErrIndexCorrupt, e.Err} }

// QuerySyntaxError points at the offending token of a query string.
// Pos is the byte offset of Token within the query.
type QuerySyntaxError struct {
	Token  string
	Pos    int
	Reason string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query: %s at %d: %q", e.Reason, e.Pos, e.Token)
}

func (e *QuerySyntaxError) Is(target error) bool { return target == ErrQuerySyntax }

// StaleReferenceError marks a result whose backing file no longer exists.
type StaleReferenceError struct {
	ID   string
	Path string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale reference %s: %s no longer exists", e.ID, e.Path)
}

func (e *StaleReferenceError) Is(target error) bool { return target == ErrStaleReference }
