// Package artifact loads frozen model artifacts from disk. Artifacts are
// JSON documents validated against a schema before use; an unreadable or
// invalid artifact is a startup-time fatal condition, not a per-request one.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/claimlens/claimlens/internal/common"
)

// LoadJSON reads the artifact at path, validates it against schemaMap, and
// unmarshals it into v.
func LoadJSON(path string, schemaMap map[string]any, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.NewAppError("ARTIFACT_READ", fmt.Sprintf("reading %s", path), err)
	}
	if err := ValidateJSONAgainstSchema(schemaMap, data); err != nil {
		return common.NewAppError("ARTIFACT_SCHEMA", fmt.Sprintf("validating %s", path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return common.NewAppError("ARTIFACT_DECODE", fmt.Sprintf("decoding %s", path), err)
	}
	return nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
