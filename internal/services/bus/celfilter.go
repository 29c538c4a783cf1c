package bussvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/pkg/errmodel"
)

// celFilter wraps a compiled CEL program shared by search and subscribe.
// When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("payload", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, errmodel.Validation("invalid_filter", iss.Err().Error(), map[string]any{"filter": expr})
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return celFilter{}, errmodel.Validation("invalid_filter", "filter must evaluate to a bool", map[string]any{"filter": expr})
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an event. Evaluation errors
// count as no match.
func (f celFilter) Eval(ev eventlog.Event, now time.Time) bool {
	if !f.enabled {
		return true
	}
	var payload any
	_ = json.Unmarshal(ev.Payload, &payload)
	out, _, err := f.prog.Eval(map[string]any{
		"id":         ev.ID,
		"channel":    ev.Channel,
		"event_type": ev.Type,
		"ts_ms":      ev.Timestamp.UnixMilli(),
		"text":       string(ev.Payload),
		"payload":    payload,
		"now_ms":     now.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// ValidateFilter compiles expr and reports whether it is a usable filter.
func ValidateFilter(expr string) error {
	_, err := newCELFilter(expr)
	return err
}
