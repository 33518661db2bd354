// Package schema validates extraction trees against a JSON Schema before they are enriched.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

const resourceName = "extraction.schema.json"

// Schema is a compiled extraction schema plus its source document.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Compile parses and compiles a JSON Schema document.
func Compile(raw []byte) (*Schema, error) {
	if !json.Valid(raw) {
		return nil, common.NewAppError(common.CodeValidation, "schema is not valid JSON", common.ErrInvalidInput)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: append(json.RawMessage(nil), raw...), compiled: compiled}, nil
}

// Load reads and compiles the schema at path.
func Load(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Compile(b)
}

// Raw returns the schema document, e.g. to forward it to a provider.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// Validate checks v against the schema. Numbers are compared with their full precision.
func (s *Schema) Validate(v tree.Value) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode tree: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return common.NewAppError(common.CodeValidation, "extraction does not match schema", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	return nil
}
