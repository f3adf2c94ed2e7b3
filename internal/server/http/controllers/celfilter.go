package controllers

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mailroom-sh/mailroom/internal/delivery"
)

// taskFilter wraps a compiled CEL program evaluated against failed delivery
// tasks. When disabled, Eval always returns true.
type taskFilter struct {
	prog    cel.Program
	enabled bool
}

func newTaskFilter(expr string) (taskFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return taskFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("recipient", cel.StringType),
		cel.Variable("issue_id", cel.StringType),
		cel.Variable("attempts", cel.IntType),
		cel.Variable("last_error", cel.StringType),
		cel.Variable("enqueued_at_ms", cel.IntType),
		cel.Variable("updated_at_ms", cel.IntType),
		// For failed tasks updated_at_ms is the failure time; failed_at_ms
		// is an alias so filters read naturally.
		cel.Variable("failed_at_ms", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return taskFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return taskFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return taskFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return taskFilter{}, err
	}
	return taskFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a task. When disabled,
// returns true.
func (f taskFilter) Eval(t delivery.Task) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"recipient":      t.Recipient,
		"issue_id":       t.IssueID,
		"attempts":       int64(t.Attempts),
		"last_error":     t.LastError,
		"enqueued_at_ms": t.EnqueuedAtMs,
		"updated_at_ms":  t.UpdatedAtMs,
		"failed_at_ms":   t.UpdatedAtMs,
		"now_ms":         time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
