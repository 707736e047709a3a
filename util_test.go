package swarm

import (
	"context"
	"reflect"
	"testing"
	"time"
)

type schemaFunc struct {
	AgentFunction
	schema map[string]interface{}
}

func (s schemaFunc) Schema() map[string]interface{} { return s.schema }

func TestFunctionToJSON(t *testing.T) {
	type address struct {
		Street string `json:"street,omitempty"`
		Zip    int
	}

	fn := NewAgentFunction("lookup", "Looks things up", func(context.Context, map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, []Parameter{
		{Name: "city", Description: "City name", Type: reflect.TypeOf(""), Required: true},
		{Name: "days", Type: reflect.TypeOf(0)},
		{Name: "address", Type: reflect.TypeOf(address{})},
		{Name: ContextVariablesName, Type: reflect.TypeOf(map[string]interface{}{})},
		{Name: "untyped"},
	})

	got := FunctionToJSON(fn)
	if got["type"] != "function" {
		t.Errorf("Expected type function, got %v", got["type"])
	}
	function := got["function"].(map[string]interface{})
	if function["name"] != "lookup" || function["description"] != "Looks things up" {
		t.Errorf("Unexpected name/description: %v", function)
	}

	params := function["parameters"].(map[string]interface{})
	props := params["properties"].(map[string]interface{})
	if _, ok := props[ContextVariablesName]; ok {
		t.Error("context_variables must be omitted")
	}

	expected := map[string]interface{}{
		"city": map[string]interface{}{"type": "string", "description": "City name"},
		"days": map[string]interface{}{"type": "integer"},
		"address": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"street": map[string]interface{}{"type": "string"},
				"Zip":    map[string]interface{}{"type": "integer"},
			},
		},
		"untyped": map[string]interface{}{"type": "string"},
	}
	if !reflect.DeepEqual(props, expected) {
		t.Errorf("Expected properties %v, got %v", ToJSON(expected), ToJSON(props))
	}
	if !reflect.DeepEqual(params["required"], []string{"city"}) {
		t.Errorf("Expected only city required, got %v", params["required"])
	}
}

func TestFunctionToJSONWithSchema(t *testing.T) {
	schema := map[string]interface{}{"type": "object", "properties": map[string]interface{}{"petId": map[string]interface{}{"type": "integer"}}}
	fn := schemaFunc{
		AgentFunction: NewAgentFunction("getPetById", "Find pet", nil, nil),
		schema:        schema,
	}

	params := FunctionToJSON(fn)["function"].(map[string]interface{})["parameters"]
	if !reflect.DeepEqual(params, schema) {
		t.Errorf("Expected the provided schema, got %v", params)
	}
}

func TestGetJSONType(t *testing.T) {
	tests := []struct {
		in   reflect.Type
		want string
	}{
		{reflect.TypeOf(""), "string"},
		{reflect.TypeOf(int64(0)), "integer"},
		{reflect.TypeOf(uint8(0)), "integer"},
		{reflect.TypeOf(1.5), "number"},
		{reflect.TypeOf(true), "boolean"},
		{reflect.TypeOf([]string{}), "array"},
		{reflect.TypeOf(map[string]int{}), "object"},
		{reflect.TypeOf(struct{}{}), "object"},
		{nil, "string"},
	}
	for _, tt := range tests {
		if got := getJSONType(tt.in); got != tt.want {
			t.Errorf("getJSONType(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"string", "hi", "hi"},
		{"bytes", []byte("raw"), "raw"},
		{"stringer", time.Second, "1s"},
		{"map", map[string]interface{}{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"slice", []int{1, 2}, "[1,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stringify(tt.in)
			AssertNoError(t, err, "stringify")
			AssertEqual(t, tt.want, got, "stringify")
		})
	}

	_, err := stringify(make(chan int))
	AssertError(t, err, "stringify channel")
}
