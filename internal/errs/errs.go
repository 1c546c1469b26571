// Package errs defines the engine's error taxonomy: Syntax, Unresolved,
// Stale, Cancelled, Internal, Fatal. Every user-visible failure the engine
// produces is one of these, so callers can type-switch instead of
// string-matching.
package errs

import (
	"fmt"
	"time"

	"github.com/standardbeagle/corels/internal/types"
)

type Kind string

const (
	KindSyntax     Kind = "syntax"
	KindUnresolved Kind = "unresolved"
	KindStale      Kind = "stale"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
	KindFatal      Kind = "fatal"
)

// SyntaxError wraps a parse failure. It never propagates past File
// Manager; it is recorded as a stage-0 diagnostic instead.
type SyntaxError struct {
	FileID     types.FileID
	Path       string
	Range      types.Range
	Underlying error
}

func NewSyntaxError(fileID types.FileID, path string, rng types.Range, err error) *SyntaxError {
	return &SyntaxError{FileID: fileID, Path: path, Range: rng, Underlying: err}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s at %d:%d: %v", e.Path, e.Range.Start.Line+1, e.Range.Start.Character+1, e.Underlying)
}

func (e *SyntaxError) Unwrap() error { return e.Underlying }

// UnresolvedError records an import alias or name reference that could
// not be located. The dependency is still recorded as not-found so a
// later-appearing file re-invalidates dependents.
type UnresolvedError struct {
	Name  string
	Range types.Range
}

func NewUnresolvedError(name string, rng types.Range) *UnresolvedError {
	return &UnresolvedError{Name: name, Range: rng}
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved name %q at %d:%d", e.Name, e.Range.Start.Line+1, e.Range.Start.Character+1)
}

// StaleError is returned when an editor request or edit refers to a file
// version that is not newer than the server's view. File Manager also
// returns it for a file it does not track, with CurrentVers set to -1.
type StaleError struct {
	FileID          types.FileID
	RequestedVers   int
	CurrentVers     int
}

func NewStaleError(fileID types.FileID, requested, current int) *StaleError {
	return &StaleError{FileID: fileID, RequestedVers: requested, CurrentVers: current}
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale version %d for file %d: current is %d", e.RequestedVers, e.FileID, e.CurrentVers)
}

// CancelledError is returned when the originating request was withdrawn
// before a work product was produced. No diagnostic is emitted.
type CancelledError struct {
	Operation string
}

func NewCancelledError(op string) *CancelledError { return &CancelledError{Operation: op} }

func (e *CancelledError) Error() string { return fmt.Sprintf("%s cancelled", e.Operation) }

// InternalError wraps a stage-worker panic recovered at symbol
// granularity. The scheduler converts it to a diagnostic and a warning
// log line, then continues.
type InternalError struct {
	Stage      string
	Recovered  any
	Timestamp  time.Time
}

func NewInternalError(stage string, recovered any) *InternalError {
	return &InternalError{Stage: stage, Recovered: recovered, Timestamp: time.Now()}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in stage %s: %v", e.Stage, e.Recovered)
}

// FatalError signals the transport I/O failing or the engine mutex being
// poisoned: the server logs, signals exit, and lets the transport
// terminate. The engine itself never panics past this point.
type FatalError struct {
	Reason     string
	Underlying error
}

func NewFatalError(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Underlying: err}
}

func (e *FatalError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Underlying)
	}
	return fmt.Sprintf("fatal: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent errors raised while processing a
// batch (e.g. every file under a newly added entry point).
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors[0])
}

func (e *MultiError) Unwrap() []error { return e.Errors }
