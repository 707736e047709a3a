package swarm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// FunctionToJSON converts an AgentFunction to the OpenAI function format.
// Functions implementing SchemaProvider supply their parameter schema directly.
func FunctionToJSON(f AgentFunction) map[string]interface{} {
	var parameters map[string]interface{}
	if sp, ok := f.(SchemaProvider); ok {
		parameters = sp.Schema()
	}
	if parameters == nil {
		parameters = parametersSchema(f.Parameters())
	}

	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        f.Name(),
			"description": f.Description(),
			"parameters":  parameters,
		},
	}
}

func parametersSchema(params []Parameter) map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for _, p := range params {
		if p.Name == ContextVariablesName {
			continue
		}

		var prop map[string]interface{}
		// If the type is a struct, try to get field names
		if p.Type != nil && p.Type.Kind() == reflect.Struct {
			structProperties := make(map[string]interface{})
			for j := 0; j < p.Type.NumField(); j++ {
				field := p.Type.Field(j)
				structProperties[fieldName(field)] = map[string]interface{}{
					"type": getJSONType(field.Type),
				}
			}
			prop = map[string]interface{}{
				"type":       "object",
				"properties": structProperties,
			}
		} else {
			prop = map[string]interface{}{
				"type": getJSONType(p.Type),
			}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return field.Name
}

// getJSONType converts Go types to JSON schema types
func getJSONType(t reflect.Type) string {
	if t == nil {
		return "string"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct, reflect.Interface:
		return "object"
	default:
		return "string"
	}
}

// stringify renders a function result as tool message content. Strings pass
// through, everything else is JSON encoded.
func stringify(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}
