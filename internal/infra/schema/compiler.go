// Package schema compiles declarative tool input schemas into reusable
// validators. Compilation happens once at registration time; the compiled
// validator is stored on the tool entry and shared by every call.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"toolgate/internal/domain"
)

// Compile resolves a JSON-Schema-like input schema into an argument
// validator. Schemas are author-supplied data, so this stays a runtime
// check rather than a compile-time type.
func Compile(inputSchema map[string]any) (domain.ArgumentValidator, error) {
	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}

	required := requiredProperties(inputSchema)

	return func(args map[string]any) []domain.SchemaViolation {
		// Required properties first: each missing one gets its own
		// violation with an exact path, which reads better than the
		// resolver's combined error.
		var violations []domain.SchemaViolation
		for _, name := range required {
			if _, ok := args[name]; !ok {
				violations = append(violations, domain.SchemaViolation{
					Path:   name,
					Reason: "required property is missing",
				})
			}
		}
		if len(violations) > 0 {
			return violations
		}

		if err := resolved.Validate(args); err != nil {
			violations = append(violations, domain.SchemaViolation{
				Path:   "",
				Reason: err.Error(),
			})
		}
		return violations
	}, nil
}

func requiredProperties(inputSchema map[string]any) []string {
	raw, ok := inputSchema["required"]
	if !ok {
		return nil
	}

	var required []string
	switch list := raw.(type) {
	case []string:
		required = append(required, list...)
	case []any:
		for _, item := range list {
			if name, ok := item.(string); ok {
				required = append(required, name)
			}
		}
	}
	sort.Strings(required)
	return required
}
