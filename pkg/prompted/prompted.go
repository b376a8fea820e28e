// Package prompted turns instructions plus a result type into a typed
// callable. A prompted function runs the agent loop with structured output
// derived from the Go result type, so callers get back a value instead of
// text.
package prompted

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/hsaeed3/ham/pkg/agent"
	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/tools"
)

// Func is a typed callable backed by an agent run with structured output.
type Func[T any] struct {
	agent   *agent.Agent
	schema  map[string]interface{}
	wrapped bool
}

// Option configures a prompted function.
type Option func(*options)

type options struct {
	name     string
	tools    *tools.Registry
	maxSteps int
}

// WithName names the underlying agent.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTools gives the function access to a tool registry. The loop may
// call tools before producing the typed result.
func WithTools(registry *tools.Registry) Option {
	return func(o *options) { o.tools = registry }
}

// WithMaxSteps bounds the underlying loop.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// New builds a typed callable from instructions and a result type. The
// output schema is derived from T's struct tags; primitive result types
// are wrapped in a single-field object on the wire and unwrapped on
// decode.
func New[T any](provider llms.Provider, instructions string, opts ...Option) (*Func[T], error) {
	sp, ok := provider.(llms.StructuredProvider)
	if !ok || !sp.SupportsStructuredOutput() {
		return nil, fmt.Errorf("prompted functions need a provider with structured output")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	schema, wrapped, err := resultSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to derive result schema: %w", err)
	}

	settings := agent.Settings{
		Name:         o.name,
		Instructions: instructions,
	}
	if o.maxSteps > 0 {
		settings.MaxSteps = o.maxSteps
	}

	return &Func[T]{
		agent:   agent.New(provider, o.tools, settings),
		schema:  schema,
		wrapped: wrapped,
	}, nil
}

// Call runs the function on the given input and decodes the typed result.
func (f *Func[T]) Call(ctx context.Context, input interface{}, opts ...agent.RunOption) (T, *agent.AgentResponse, error) {
	var result T

	opts = append(opts, agent.WithStructuredOutput(&llms.StructuredOutputConfig{
		Format: "json",
		Schema: f.schema,
	}))

	resp, err := f.agent.Run(ctx, input, opts...)
	if err != nil {
		return result, nil, err
	}

	if f.wrapped {
		var envelope struct {
			Value T `json:"value"`
		}
		if err := resp.Decode(&envelope); err != nil {
			return result, resp, err
		}
		return envelope.Value, resp, nil
	}

	if err := resp.Decode(&result); err != nil {
		return result, resp, err
	}
	return result, resp, nil
}

// Agent exposes the underlying agent, mainly for hook registration.
func (f *Func[T]) Agent() *agent.Agent {
	return f.agent
}

// resultSchema derives the JSON schema for T. Non-object types get wrapped
// in {"value": T} since providers require a top-level object.
func resultSchema[T any]() (map[string]interface{}, bool, error) {
	t := reflect.TypeOf(new(T)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if inner := scalarSchema(t.Kind()); inner != nil {
		return wrapSchema(inner), true, nil
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		// ExpandedStruct needs a named definition entry to expand;
		// anonymous structs, maps, and slices have none.
		ExpandedStruct: t.Kind() == reflect.Struct && t.Name() != "",
		DoNotReference: true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, false, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, err
	}
	delete(result, "$schema")
	delete(result, "$id")

	if result["type"] == "object" {
		return result, false, nil
	}
	return wrapSchema(result), true, nil
}

// scalarSchema returns the schema for scalar kinds, nil for composites.
func scalarSchema(k reflect.Kind) map[string]interface{} {
	switch k {
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	}
	return nil
}

// wrapSchema puts a value schema inside the {"value": T} envelope.
func wrapSchema(inner map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value": inner,
		},
		"required":             []string{"value"},
		"additionalProperties": false,
	}
}
