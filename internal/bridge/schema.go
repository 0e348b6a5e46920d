package bridge

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// inboundSchemaJSON is the minimum contract for correspondent messages:
// a JSON object carrying a timestamp and either content or response. The
// payload itself may be any JSON value, structured or text-like.
const inboundSchemaJSON = `{
	"type": "object",
	"required": ["timestamp"],
	"properties": {
		"timestamp": {"type": "string"}
	},
	"anyOf": [
		{"required": ["content"]},
		{"required": ["response"]}
	]
}`

var inboundSchema = mustCompileInbound()

func mustCompileInbound() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(inboundSchemaJSON)))
	if err != nil {
		panic(fmt.Sprintf("bridge: unmarshal inbound schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("inbound.json", doc); err != nil {
		panic(fmt.Sprintf("bridge: add inbound schema: %v", err))
	}
	schema, err := c.Compile("inbound.json")
	if err != nil {
		panic(fmt.Sprintf("bridge: compile inbound schema: %v", err))
	}
	return schema
}

// validateInbound checks that raw bytes are JSON matching the inbound
// message contract.
func validateInbound(data []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := inboundSchema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
