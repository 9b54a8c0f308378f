// Package policy evaluates access rules written in rego.
package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is a prepared OPA query over one or more rego modules.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Module is a named rego source.
type Module struct {
	Name   string
	Source string
}

// NewEngine prepares query against modules.
func NewEngine(ctx context.Context, query string, modules ...Module) (*Engine, error) {
	opts := []func(*rego.Rego){rego.Query(query)}
	for _, m := range modules {
		opts = append(opts, rego.Module(m.Name, m.Source))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: prepared}, nil
}

// EvalSet evaluates the query as a set of strings and returns the members
// sorted. An undefined result is an empty set.
func (e *Engine) EvalSet(ctx context.Context, input any) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	var out []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("failed to evaluate policy: non-string member %v", item)
			}
			out = append(out, s)
		}
	case string:
		out = append(out, v)
	default:
		return nil, fmt.Errorf("failed to evaluate policy: unexpected result type %T", v)
	}
	sort.Strings(out)
	return out, nil
}
