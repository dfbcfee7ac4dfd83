// Package tools implements the Tool Registry (schema validation) and the
// Tool Executor (bounded retries, per-attempt timeout, classification)
// from spec.md §4.1/§4.2. The schema shape is grounded on the teacher's
// Capability.InputSummary/SchemaSummary field-hint pattern
// (core/agent.go), narrowed to the declared/required/type-tag model
// spec.md §9 calls for in place of a full JSON-Schema document.
package tools

import (
	"fmt"
	"sync"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

// FieldType tags the expected shape of a tool call parameter — the
// "small tagged variant" spec.md §9 prescribes in place of a dynamic "any".
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
)

// Field declares one parameter a tool accepts.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is a tool's declared parameter contract, matching spec.md §6's
// tool dispatch table (tool name -> required params).
type Schema struct {
	ToolName string
	Fields   []Field
}

func (s Schema) requiredFields() []Field {
	var req []Field
	for _, f := range s.Fields {
		if f.Required {
			req = append(req, f)
		}
	}
	return req
}

// Registry holds declared tool schemas keyed by name (spec.md §4.1).
// Side-effect-free and safe for concurrent use from many Tool Executors.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// Register declares a tool's schema, keyed by Schema.ToolName.
func (r *Registry) Register(schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schema.ToolName] = schema
}

// DefaultRegistry builds a Registry pre-populated with the tool dispatch
// table from spec.md §6.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Schema{ToolName: "navigate", Fields: []Field{{Name: "url", Type: FieldString, Required: true}}})
	r.Register(Schema{ToolName: "click", Fields: []Field{{Name: "selector", Type: FieldString, Required: true}}})
	r.Register(Schema{ToolName: "type", Fields: []Field{
		{Name: "selector", Type: FieldString, Required: true},
		{Name: "text", Type: FieldString, Required: true},
	}})
	r.Register(Schema{ToolName: "select_option", Fields: []Field{
		{Name: "selector", Type: FieldString, Required: true},
		{Name: "value", Type: FieldString, Required: true},
	}})
	r.Register(Schema{ToolName: "wait_for_element", Fields: []Field{
		{Name: "selector", Type: FieldString, Required: true},
		{Name: "timeout_ms", Type: FieldString, Required: true},
	}})
	r.Register(Schema{ToolName: "take_screenshot", Fields: nil})
	r.Register(Schema{ToolName: "get_text", Fields: []Field{{Name: "selector", Type: FieldString, Required: true}}})
	r.Register(Schema{ToolName: "verify_element_exists", Fields: []Field{{Name: "selector", Type: FieldString, Required: true}}})
	return r
}

// Validate checks call against the declared schema: UnknownTool if the
// name isn't registered, InvalidParameters (listing every missing field)
// otherwise.
func (r *Registry) Validate(call model.ToolCall) error {
	r.mu.RLock()
	schema, ok := r.schemas[call.ToolName]
	r.mu.RUnlock()
	if !ok {
		return core.NewFrameworkError("tools.Validate", core.KindInvalidParameters, fmt.Errorf("%q: %w", call.ToolName, core.ErrUnknownTool))
	}

	var missing []string
	for _, f := range schema.requiredFields() {
		if _, present := call.Parameters[f.Name]; !present {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("tool %q missing required fields %v: %w", call.ToolName, missing, core.ErrInvalidParameters)
		return core.NewFrameworkError("tools.Validate", core.KindInvalidParameters, err)
	}
	return nil
}
