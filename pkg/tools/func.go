package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// FuncTool wraps a typed Go function as a Tool. The parameter schema is
// generated from the Args struct tags.
//
// Supported tags:
//   - json:"name" - parameter name
//   - json:",omitempty" - optional parameter
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"enum=a|b" - allowed values
//
// Example:
//
//	type WeatherArgs struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
//
//	tool, err := tools.NewFunc("get_weather", "Get current weather",
//	    func(ctx context.Context, args WeatherArgs) (interface{}, error) {
//	        return map[string]interface{}{"temp": 22}, nil
//	    })
type FuncTool[Args any] struct {
	name        string
	description string
	schema      map[string]interface{}
	fn          func(context.Context, Args) (interface{}, error)
}

// NewFunc creates a tool from a typed function.
func NewFunc[Args any](name, description string, fn func(context.Context, Args) (interface{}, error)) (*FuncTool[Args], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if description == "" {
		return nil, fmt.Errorf("tool description is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool function is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", name, err)
	}

	return &FuncTool[Args]{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}, nil
}

func (t *FuncTool[Args]) Name() string        { return t.name }
func (t *FuncTool[Args]) Description() string { return t.description }

func (t *FuncTool[Args]) Info() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema,
	}
}

// Execute decodes args into the typed struct and runs the function.
func (t *FuncTool[Args]) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	var typedArgs Args
	if err := mapToStruct(args, &typedArgs); err != nil {
		err = fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.name,
			ExecutionTime: time.Since(start),
		}, err
	}

	output, err := t.fn(ctx, typedArgs)
	if err != nil {
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.name,
			ExecutionTime: time.Since(start),
		}, err
	}

	return ToolResult{
		Success:       true,
		Content:       formatOutput(output),
		Output:        output,
		ToolName:      t.name,
		ExecutionTime: time.Since(start),
	}, nil
}

// generateSchema builds a JSON Schema object from the Args struct tags.
func generateSchema[Args any]() (map[string]interface{}, error) {
	t := reflect.TypeOf(new(Args)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("args type must be a struct, got %s", t.Kind())
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		// ExpandedStruct needs a named definition entry to expand;
		// anonymous structs have none.
		ExpandedStruct: t.Name() != "",
		DoNotReference: true,
	}

	schema := reflector.Reflect(new(Args))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	// $schema and $id are noise for the model.
	delete(result, "$schema")
	delete(result, "$id")

	if result["type"] == nil {
		result["type"] = "object"
	}

	return result, nil
}

// mapToStruct converts loose args to a typed struct via JSON round-trip.
func mapToStruct(m map[string]interface{}, target interface{}) error {
	if m == nil {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}

// formatOutput renders a tool's output for the model.
func formatOutput(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
