package diag

import "github.com/sirupsen/logrus"

// Sink accumulates diagnostics for the run and decides, at the end,
// whether the process exits 0 or 1. It is threaded through the
// pipeline the way the teacher threads a single *logrus.Logger
// through GitP4Transfer/GitFilter.
type Sink struct {
	Logger   *logrus.Logger
	warnings []*Error
	fatal    *Error
}

// NewSink builds a Sink around the given logger (never nil).
func NewSink(logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sink{Logger: logger}
}

// Warn records a recoverable diagnostic and logs it.
func (s *Sink) Warn(e *Error) {
	s.warnings = append(s.warnings, e)
	s.Logger.Warnf("%s", e.Error())
}

// Fatal records a fatal diagnostic. Only the first fatal sticks,
// matching "there are no retries" from the error handling design.
func (s *Sink) Fatal(e *Error) {
	if s.fatal == nil {
		s.fatal = e
	}
	s.Logger.Errorf("%s", e.Error())
}

// HasFatal reports whether a fatal diagnostic has been recorded.
func (s *Sink) HasFatal() bool {
	return s.fatal != nil
}

// FatalError returns the first fatal diagnostic, or nil.
func (s *Sink) FatalError() *Error {
	return s.fatal
}

// Warnings returns all recorded recoverable diagnostics, in order.
func (s *Sink) Warnings() []*Error {
	return s.warnings
}

// Report routes an error to Warn or Fatal based on its Kind and the
// context-sensitive rules in the error handling design: Parse is
// fatal only for the project manifest; CorruptRevision is always a
// warning (the referencing change is dropped by the caller).
func (s *Sink) Report(e *Error, fatalOverride bool) {
	if fatalOverride || e.Kind.Fatal() {
		s.Fatal(e)
		return
	}
	s.Warn(e)
}
