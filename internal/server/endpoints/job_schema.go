package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// startSchema checks the shape of a START body. Ranges are not checked here;
// out-of-range numbers are clamped by jobs.Settings.Normalize.
const startSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "pages":            {"type": "integer"},
    "wait_ms":          {"type": "integer"},
    "split_limit":      {"type": "integer"},
    "capture_format":   {"type": "string"},
    "jpeg_quality":     {"type": "integer"},
    "max_long_edge":    {"type": "integer"},
    "checkpoint_pages": {"type": "integer"},
    "adaptive_delay":   {"type": "boolean"},
    "min_wait_ms":      {"type": "integer"},
    "max_wait_ms":      {"type": "integer"}
  }
}`

var compileStartSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("start.json", strings.NewReader(startSchema)); err != nil {
		return nil, fmt.Errorf("failed to load start schema: %w", err)
	}
	return compiler.Compile("start.json")
})

// validateStart checks raw against the START schema.
func validateStart(raw []byte) error {
	schema, err := compileStartSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid start request: %s", leafMessage(ve))
		}
		return fmt.Errorf("invalid start request: %w", err)
	}
	return nil
}

// leafMessage returns the most specific cause, e.g. "/pages: expected integer, but got string".
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
