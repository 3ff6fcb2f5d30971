package api

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tomato-app/tomato-support/types"
)

const maxUserIDLen = 120

// chatValidator checks /chat bodies against a schema whose message bound
// follows the configured maximum.
type chatValidator struct {
	schema *gojsonschema.Schema
}

func newChatValidator(maxMsgLen int) (*chatValidator, error) {
	doc := map[string]interface{}{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []string{"message"},
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
				"maxLength": maxMsgLen,
			},
			"userId": map[string]interface{}{
				"type":      []string{"string", "null"},
				"maxLength": maxUserIDLen,
			},
		},
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat schema: %w", err)
	}
	return &chatValidator{schema: schema}, nil
}

// Validate returns the schema violations of raw. A body that is not JSON
// at all is reported as a single root violation.
func (v *chatValidator) Validate(raw []byte) []types.FieldError {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []types.FieldError{{Field: "(root)", Message: "body must be a JSON object"}}
	}
	if result.Valid() {
		return nil
	}
	out := make([]types.FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, types.FieldError{Field: e.Field(), Message: e.Description()})
	}
	return out
}
