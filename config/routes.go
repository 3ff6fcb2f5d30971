package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/tomato-app/tomato-support/orderservice"
)

// RoutesValidator validates an order-service routes document against the schema
type RoutesValidator struct {
	schema *gojsonschema.Schema
}

// NewRoutesValidator creates a new routes validator
func NewRoutesValidator() (*RoutesValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(routesSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &RoutesValidator{schema: schema}, nil
}

// Validate validates a decoded routes document
func (rv *RoutesValidator) Validate(doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal routes: %w", err)
	}

	result, err := rv.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, err := range result.Errors() {
			errors = append(errors, fmt.Sprintf("- %s", err))
		}
		return fmt.Errorf("routes validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

// LoadRoutes reads candidate paths from a YAML file. ${VAR} references are
// expanded before parsing. Operations the file leaves out keep the built-in
// candidates.
func LoadRoutes(path string) (orderservice.Routes, error) {
	if path == "" {
		return orderservice.DefaultRoutes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return orderservice.Routes{}, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes validates and decodes a routes document.
func ParseRoutes(data []byte) (orderservice.Routes, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var doc map[string]interface{}
	if err := yaml.Unmarshal(expanded, &doc); err != nil {
		return orderservice.Routes{}, fmt.Errorf("failed to parse routes file: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	validator, err := NewRoutesValidator()
	if err != nil {
		return orderservice.Routes{}, err
	}
	if err := validator.Validate(doc); err != nil {
		return orderservice.Routes{}, err
	}

	var routes orderservice.Routes
	if err := yaml.Unmarshal(expanded, &routes); err != nil {
		return orderservice.Routes{}, fmt.Errorf("failed to decode routes: %w", err)
	}
	return routes, nil
}

const routesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Order Service Routes",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "paths": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^/[^\\s]*$"}
    }
  },
  "properties": {
    "add":          {"$ref": "#/definitions/paths"},
    "remove":       {"$ref": "#/definitions/paths"},
    "get":          {"$ref": "#/definitions/paths"},
    "get_post":     {"$ref": "#/definitions/paths"},
    "clear":        {"$ref": "#/definitions/paths"},
    "clear_delete": {"$ref": "#/definitions/paths"},
    "checkout":     {"$ref": "#/definitions/paths"},
    "confirm":      {"$ref": "#/definitions/paths"}
  }
}`
