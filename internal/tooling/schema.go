package tooling

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles and caches a tool's json-schema document and
// validates parsed arguments against it.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a json-schema document (the tool's `parameters`
// field) into a reusable validator.
func CompileSchema(name string, schemaDoc json.RawMessage) (*SchemaValidator, error) {
	if len(bytes.TrimSpace(schemaDoc)) == 0 {
		return &SchemaValidator{}, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "schema://" + name
	if err := compiler.AddResource(url, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return &SchemaValidator{schema: sch}, nil
}

// Validate checks parsed arguments against the compiled schema. A nil
// or empty schema always validates.
func (v *SchemaValidator) Validate(args json.RawMessage) error {
	if v == nil || v.schema == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return v.schema.Validate(doc)
}

// HasProperty reports whether the schema declares a top-level property
// with the given name, used by the dispatcher to detect shell-like
// tools that accept timeout_ms.
func HasProperty(schemaDoc json.RawMessage, property string) bool {
	if len(bytes.TrimSpace(schemaDoc)) == 0 {
		return false
	}
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schemaDoc, &parsed); err != nil {
		return false
	}
	_, ok := parsed.Properties[property]
	return ok
}
