package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Question is one extracted item of the results artifact
type Question struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

const resultsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["question"],
    "properties": {
      "question": {"type": "string"},
      "answer": {"type": ["string", "null"]}
    }
  }
}`

var compileResultsSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("results.json", strings.NewReader(resultsSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("results.json")
})

// DecodeResults validates data against the results schema and decodes it
func DecodeResults(data []byte) ([]Question, error) {
	schema, err := compileResultsSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResultsUnparseable, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResultsUnparseable, err)
	}

	var items []Question
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResultsUnparseable, err)
	}
	return items, nil
}
