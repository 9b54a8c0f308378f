// Package script runs kernelscript documents: ordered steps that call
// algorithms, store artifacts, move pointers and touch agent memory.
package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Language is the only script language the engine accepts.
const Language = "kernelscript.v1"

const schemaURL = "https://kernel.schemas.local/script/kernelscript.v1.json"

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["script_id", "language", "steps"],
  "properties": {
    "script_id": {"type": "string", "minLength": 1},
    "language": {"type": "string"},
    "description": {"type": "string"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "save_as": {"type": "string"},
          "ttl": {"type": ["number", "null"], "minimum": 0}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(documentSchema)); err != nil {
			compileErr = fmt.Errorf("failed to load script schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Script is a parsed kernelscript document.
type Script struct {
	ScriptID    string           `json:"script_id"`
	Language    string           `json:"language"`
	Description string           `json:"description,omitempty"`
	Steps       []map[string]any `json:"steps"`
}

// Parse validates doc and returns the script it describes. doc is any
// JSON-shaped value, typically an artifact payload.
func Parse(doc any) (*Script, error) {
	plain, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if err := Validate(plain); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: agent_script: %v", domain.ErrValidation, err)
	}
	var s Script
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: agent_script: %v", domain.ErrValidation, err)
	}
	return &s, nil
}

// Validate checks the structure of a script document.
func Validate(doc any) error {
	m, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: agent_script must be an object", domain.ErrValidation)
	}
	if err := requireKeys(m, "agent_script", "script_id", "language", "steps"); err != nil {
		return err
	}
	if m["language"] != Language {
		return fmt.Errorf("%w: unsupported script language %v", domain.ErrValidation, m["language"])
	}
	steps, ok := m["steps"].([]any)
	if !ok || len(steps) == 0 {
		return fmt.Errorf("%w: script.steps must be a non-empty list", domain.ErrValidation)
	}
	for i, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: step[%d] must be an object", domain.ErrValidation, i)
		}
		if err := requireKeys(step, fmt.Sprintf("step[%d]", i), "type"); err != nil {
			return err
		}
	}

	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(m); err != nil {
		return fmt.Errorf("%w: agent_script: %v", domain.ErrValidation, err)
	}
	return nil
}

func requireKeys(m map[string]any, where string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing keys: %s", domain.ErrValidation, where, strings.Join(missing, ", "))
	}
	return nil
}

// normalize converts doc to plain JSON values.
func normalize(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: agent_script is not JSON: %v", domain.ErrValidation, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: agent_script is not JSON: %v", domain.ErrValidation, err)
	}
	return out, nil
}
