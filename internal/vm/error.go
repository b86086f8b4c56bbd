package vm

import (
	"fmt"
	"strings"

	"marl/internal/ast"
)

// TraceFrame is one line of a runtime error's stack trace.
type TraceFrame struct {
	Loc  ast.LocationRange
	Name string
}

// RuntimeError is the single user-visible failure of the evaluator: a
// message, the innermost location, and the chain of call frames that led
// there. Frames run outermost first.
type RuntimeError struct {
	Msg        string
	StackTrace []TraceFrame
	maxTrace   int
}

func (e *RuntimeError) Error() string {
	var out strings.Builder
	out.WriteString("RUNTIME ERROR: ")
	out.WriteString(e.Msg)
	trace := e.StackTrace
	if e.maxTrace > 0 && len(trace) > e.maxTrace {
		// Keep the innermost frames; they are the ones that name the fault.
		trace = trace[len(trace)-e.maxTrace:]
		out.WriteString("\n\t...")
	}
	for _, tf := range trace {
		out.WriteString("\n\t")
		out.WriteString(tf.Loc.String())
		if tf.Name != "" {
			out.WriteString("\t")
			out.WriteString(tf.Name)
		}
	}
	return out.String()
}

// StaticError is a front-end failure (lex, parse, desugar, or analysis),
// formatted one message per line.
type StaticError struct {
	Msgs []string
}

func (e *StaticError) Error() string {
	return fmt.Sprintf("STATIC ERROR: %s", strings.Join(e.Msgs, "\n"))
}
