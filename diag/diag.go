// Package diag carries the error-kind taxonomy and warning/fatal
// bookkeeping described by the error handling design: corruption is
// diagnosed with file/revision context and then side-stepped whenever
// possible so a damaged MKSSI project still yields the maximal correct
// subset of history.
package diag

import "fmt"

// Kind classifies a diagnostic per the error handling design.
type Kind int

const (
	// Io is a filesystem or read failure.
	Io Kind = iota
	// Parse is an RCS/project grammar failure.
	Parse
	// BadPatch is a patch engine failure to apply an edit script.
	BadPatch
	// CorruptRevision is a missing patch/version for a referenced revision.
	CorruptRevision
	// Configuration is a CLI/validation failure.
	Configuration
	// Internal is an invariant violation.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Parse:
		return "parse"
	case BadPatch:
		return "bad-patch"
	case CorruptRevision:
		return "corrupt-revision"
	case Configuration:
		return "configuration"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with file/revision context, matching the spec's
// requirement that corruption be diagnosed with that context.
type Error struct {
	Kind     Kind
	File     string
	Revision string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	loc := e.File
	if e.Revision != "" {
		loc = fmt.Sprintf("%s#%s", e.File, e.Revision)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, loc, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without wrapping an underlying cause.
func New(kind Kind, file, revision, message string) *Error {
	return &Error{Kind: kind, File: file, Revision: revision, Message: message}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, file, revision string, err error) *Error {
	return &Error{Kind: kind, File: file, Revision: revision, Message: err.Error(), Err: err}
}

// Fatal reports whether a Kind is always fatal regardless of context.
// Parse and CorruptRevision are contextually recoverable (see Sink),
// so they are not unconditionally fatal here.
func (k Kind) Fatal() bool {
	switch k {
	case Configuration, Internal:
		return true
	default:
		return false
	}
}
