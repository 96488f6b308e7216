package llms

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema from a Go struct. Definitions are
// inlined so the schema can be sent to providers that accept a bare
// object schema in response_format.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	var zero T
	return reflector.Reflect(&zero)
}

// validateAgainstSchema checks obj against the top-level required
// properties and their declared types. This is intentionally shallow; the
// generator only depends on flat schemas like {description: string}.
func validateAgainstSchema(obj map[string]any, schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}

	for _, name := range schema.Required {
		value, ok := obj[name]
		if !ok {
			return fmt.Errorf("missing required property %q", name)
		}

		prop, ok := schema.Properties.Get(name)
		if !ok || prop == nil {
			continue
		}
		if err := checkType(name, value, prop.Type); err != nil {
			return err
		}
	}

	return nil
}

func checkType(name string, value any, schemaType string) error {
	switch schemaType {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("property %q must be a string", name)
		}
		if s == "" {
			return fmt.Errorf("property %q must be a non-empty string", name)
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("property %q must be a number", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("property %q must be a boolean", name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("property %q must be an array", name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("property %q must be an object", name)
		}
	}
	return nil
}

func marshalSchema(schema *jsonschema.Schema) (string, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(data), nil
}
