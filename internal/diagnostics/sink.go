package diagnostics

import (
	"os"

	"github.com/rs/zerolog"
)

// WarningKind enumerates the non-fatal conditions the weaver records
// instead of aborting on.
type WarningKind string

const (
	// WarningTypeMismatch flags a mapping input whose static type does not
	// match its calculation's declared input descriptor. Attach still
	// succeeds; existing mappings are known to rely on this slack, so it
	// stays a warning rather than a hard error.
	WarningTypeMismatch WarningKind = "type-mismatch"
	// WarningMultipleReductions flags a (call, order) pair with more than
	// one reduction-capable analysis mapped to it.
	WarningMultipleReductions WarningKind = "multiple-reductions"
	// WarningReductionRemoved flags a reduction that had to be removed
	// despite being a valid placement, because another reduction for the
	// same (call, order) already won.
	WarningReductionRemoved WarningKind = "reduction-removed"
)

// Warning is a single recorded non-fatal diagnostic.
type Warning struct {
	Kind   WarningKind
	Call   string
	Order  string
	Detail string
}

// Sink accumulates warnings produced while a pass runs and flushes them
// through a logger once the pass completes, per the propagation policy in
// the error-handling design: warnings never abort a pass.
type Sink struct {
	warnings []Warning
	flushed  int
	logger   zerolog.Logger
}

// NewSink creates a Sink that logs at the given verbosity (0..3, mapped to
// zerolog levels Error..Debug).
func NewSink(verbosity int) *Sink {
	level := verbosityToLevel(verbosity)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
	return &Sink{logger: logger}
}

func verbosityToLevel(v int) zerolog.Level {
	switch {
	case v <= 0:
		return zerolog.ErrorLevel
	case v == 1:
		return zerolog.WarnLevel
	case v == 2:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// Record appends a warning without emitting it immediately; it is flushed
// at the end of the offending pass via Flush.
func (s *Sink) Record(w Warning) {
	s.warnings = append(s.warnings, w)
}

// Warnings returns every warning recorded so far, in recording order.
func (s *Sink) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

// Flush logs every warning recorded since the previous Flush at Warn
// level, tagged with the pass name that just completed. Warnings are
// retained for Warnings() after flushing.
func (s *Sink) Flush(pass string) {
	pending := s.warnings[s.flushed:]
	s.flushed = len(s.warnings)
	for _, w := range pending {
		s.logger.Warn().
			Str("pass", pass).
			Str("kind", string(w.Kind)).
			Str("call", w.Call).
			Str("order", w.Order).
			Msg(w.Detail)
	}
}

// Logger exposes the underlying structured logger for pass-level
// diagnostics and timings outside the warning path.
func (s *Sink) Logger() *zerolog.Logger {
	return &s.logger
}
