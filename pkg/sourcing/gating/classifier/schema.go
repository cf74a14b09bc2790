package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchemaDoc is the JSON Schema contract the LLM backend's reply
// must satisfy before it is trusted. A reply missing a field or using an
// out-of-enum label fails validation the same as a parse error — both
// collapse to needs_review.
const responseSchemaDoc = `{
  "type": "object",
  "required": ["label", "confidence", "rationale"],
  "properties": {
    "label": {"enum": ["pivot", "expansion", "rebrand", "minor", "needs_review"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "rationale": {"type": "string"}
  }
}`

var responseSchema = mustCompileSchema(responseSchemaDoc)

func mustCompileSchema(doc string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	const resourceName = "classifier-response.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader([]byte(doc))); err != nil {
		panic(fmt.Sprintf("classifier: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("classifier: schema compile failed: %v", err))
	}
	return schema
}

// validateResponse checks raw backend JSON against responseSchema before
// Unmarshal is trusted to populate a backendResponse.
func validateResponse(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("classifier: invalid json: %w", err)
	}
	if err := responseSchema.Validate(doc); err != nil {
		return fmt.Errorf("classifier: schema validation: %w", err)
	}
	return nil
}
