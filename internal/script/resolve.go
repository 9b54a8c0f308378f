package script

import (
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// resolveValue replaces a whole-string "${a.b.c}" reference with the value
// at that path of state. Any other value is returned as is.
func resolveValue(v any, state map[string]any) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return v, nil
	}
	path := strings.TrimSpace(s[2 : len(s)-1])
	var cur any = state
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: script reference missing: %s", domain.ErrReference, path)
		}
		next, ok := m[part]
		if !ok {
			return nil, fmt.Errorf("%w: script reference missing: %s", domain.ErrReference, path)
		}
		cur = next
	}
	return cur, nil
}

// resolveAll resolves references inside maps and lists recursively.
func resolveAll(v any, state map[string]any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := resolveAll(item, state)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := resolveAll(item, state)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return resolveValue(v, state)
}

func resolveMap(v any, state map[string]any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	r, err := resolveAll(v, state)
	if err != nil {
		return nil, err
	}
	m, ok := r.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", domain.ErrValidation, r)
	}
	return m, nil
}
