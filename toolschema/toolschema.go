// Package toolschema validates tool call arguments against their declared
// JSON Schema and enforces the workflow-tool name reservation.
package toolschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
)

// CheckCollisions rejects any client-supplied tool whose name collides
// with a reserved workflow-tool name, as a configuration error raised
// before the stream begins.
func CheckCollisions(tools []stream.ToolSpec) error {
	reserved := make(map[string]struct{}, len(stream.ReservedToolNames))
	for _, n := range stream.ReservedToolNames {
		reserved[n] = struct{}{}
	}
	var collisions []string
	for _, t := range tools {
		if _, ok := reserved[t.Name]; ok {
			collisions = append(collisions, t.Name)
		}
	}
	if len(collisions) > 0 {
		return fmt.Errorf("%w: workflow tool name collision: %v", massgenerr.ErrConfiguration, collisions)
	}
	return nil
}

// Validator compiles and caches JSON Schemas for tool argument validation.
// Safe for concurrent use.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks the tool call's JSON-encoded Arguments against the
// tool's declared schema, compiling and caching the schema on first use.
// A nil or empty schema is treated as "accept anything".
func (v *Validator) Validate(tool stream.ToolSpec, call stream.ToolCall) error {
	if len(tool.Schema) == 0 {
		return nil
	}

	schema, err := v.compile(tool.Name, tool.Schema)
	if err != nil {
		return fmt.Errorf("toolschema: compiling schema for %q: %w", tool.Name, err)
	}

	var args any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Errorf("toolschema: arguments for %q are not valid JSON: %w", tool.Name, err)
		}
	} else {
		args = map[string]any{}
	}

	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("toolschema: arguments for %q failed validation: %w", tool.Name, err)
	}
	return nil
}

func (v *Validator) compile(name string, raw map[string]any) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.compiled[name]; ok {
		return s, nil
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "mem://" + name
	if err := c.AddResource(url, res); err != nil {
		return nil, err
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	v.compiled[name] = schema
	return schema, nil
}
