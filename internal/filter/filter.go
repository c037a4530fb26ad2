// Package filter selects which entries reach the sinks using expr-lang
// boolean expressions, e.g. `severity != "Debug" && payload contains "motor"`.
package filter

import (
	"errors"
	"fmt"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/observability"
	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

var ErrEmptyExpression = errors.New("filter: empty expression")

// Env is the evaluation environment. Field tags are the names usable in
// expressions.
type Env struct {
	Severity string `expr:"severity"`
	Level    int    `expr:"level"`
	Payload  string `expr:"payload"`
	Source   string `expr:"source"`
	Session  string `expr:"session"`
	Plain    bool   `expr:"plain"`
	Unix     int64  `expr:"unix_ms"`
}

// Expr is a compiled filter. The zero value is not usable; use Compile.
type Expr struct {
	program *vm.Program
	raw     string
	logger  zerolog.Logger
}

func Compile(raw string) (*Expr, error) {
	if raw == "" {
		return nil, ErrEmptyExpression
	}
	program, err := expr.Compile(raw, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", raw, err)
	}
	return &Expr{
		program: program,
		raw:     raw,
		logger:  observability.Component("filter"),
	}, nil
}

func (e *Expr) String() string {
	return e.raw
}

// Match reports whether the entry passes. Evaluation errors let the entry
// through so a bad runtime value never hides output.
func (e *Expr) Match(entry ingest.Entry) bool {
	out, err := expr.Run(e.program, envFor(entry))
	if err != nil {
		e.logger.Warn().Err(err).Str("expr", e.raw).Msg("filter.eval_failed")
		return true
	}
	ok, _ := out.(bool)
	return ok
}

func envFor(entry ingest.Entry) Env {
	return Env{
		Severity: entry.Record.Severity.String(),
		Level:    levelOf(entry),
		Payload:  entry.Record.Payload,
		Source:   entry.Source,
		Session:  entry.Session,
		Plain:    entry.Plain,
		Unix:     entry.Time.UnixMilli(),
	}
}

// levelOf orders severities for comparisons like `level >= 1`. Plain and
// unknown entries rank below Debug.
func levelOf(entry ingest.Entry) int {
	if entry.Plain {
		return -1
	}
	switch sev := entry.Record.Severity; sev {
	case frame.SeverityDebug, frame.SeverityWarning, frame.SeverityError:
		return int(sev)
	default:
		return -1
	}
}
