// Package algorithms holds the builtin generic algorithms.
package algorithms

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/registry"
)

// BasicCleanerID is the type id of the basic data cleaner.
const BasicCleanerID = "generic.data_cleaning.basic"

// BasicCleaner drops nil rows and nil fields of object rows.
type BasicCleaner struct{}

var _ capability.Algorithm = BasicCleaner{}

func (BasicCleaner) Describe() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		TypeID:  BasicCleanerID,
		Version: "1.0.0",
		Kind:    domain.CapabilityKindAlgorithm,
		InputsSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"rows": map[string]any{"type": "array"}},
			"required":   []any{"rows"},
		},
		OutputsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rows":  map[string]any{"type": "array"},
				"stats": map[string]any{"type": "object"},
			},
			"required": []any{"rows", "stats"},
		},
		DeterminismLevel: "deterministic",
		CostProfile:      "linear",
	}
}

// Run returns {"rows": cleaned, "stats": {"dropped": n, "kept": m}}.
func (BasicCleaner) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	var rows []any
	switch v := inputs["rows"].(type) {
	case nil:
	case []any:
		rows = v
	case []map[string]any:
		for _, r := range v {
			rows = append(rows, r)
		}
	default:
		return nil, fmt.Errorf("%w: rows must be a list, got %T", domain.ErrValidation, v)
	}

	cleaned := make([]any, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		switch row := r.(type) {
		case nil:
			dropped++
		case map[string]any:
			if row == nil {
				dropped++
				continue
			}
			kept := make(map[string]any, len(row))
			for k, v := range row {
				if v != nil {
					kept[k] = v
				}
			}
			cleaned = append(cleaned, kept)
		default:
			cleaned = append(cleaned, r)
		}
	}
	return map[string]any{
		"rows":  cleaned,
		"stats": map[string]any{"dropped": dropped, "kept": len(cleaned)},
	}, nil
}

// Register adds the builtin algorithms to algs.
func Register(algs *registry.Algorithms) error {
	return algs.Add(BasicCleaner{})
}
