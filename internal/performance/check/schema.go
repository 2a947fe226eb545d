package check

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaErrors represents a collection of schema validation errors
type SchemaErrors []error

// Error implements the error interface for SchemaErrors
func (se SchemaErrors) Error() string {
	if len(se) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range se {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema, safe for concurrent validation.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return &Schema{compiled: compiled}, nil
}

// MustCompileSchema is like CompileSchema but panics on error. It is meant
// for package-level schemas.
func MustCompileSchema(schemaStr string) *Schema {
	s, err := CompileSchema(schemaStr)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate validates a JSON document against the schema. A non-nil error is
// either a parse error or a SchemaErrors listing every violation.
func (s *Schema) Validate(body []byte) error {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := s.compiled.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return flattenValidationErrors(validationErr)
		}
		return SchemaErrors{err}
	}
	return nil
}

// flattenValidationErrors extracts all leaf and intermediate messages from a
// jsonschema.ValidationError tree.
func flattenValidationErrors(err *jsonschema.ValidationError) SchemaErrors {
	var errs SchemaErrors

	if err.Message != "" {
		errs = append(errs, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		errs = append(errs, flattenValidationErrors(cause)...)
	}

	return errs
}
