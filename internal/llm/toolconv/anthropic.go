package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/getmira/mira-core/pkg/models"
)

// ToAnthropicTools converts tool declarations to Anthropic tool
// definitions, per spec §4.3.
func ToAnthropicTools(tools []models.ToolDeclaration) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param, err := ToAnthropicTool(tool)
		if err != nil {
			return nil, err
		}
		result = append(result, param)
	}
	return result, nil
}

// ToAnthropicTool converts a single tool declaration. The schema is
// routed through its JSON form rather than built field-by-field because
// anthropic.ToolInputSchemaParam is itself JSON-tagged to match the
// wire schema, the same indirection the teacher's toolconv/anthropic.go
// uses when it unmarshals a tool's raw JSON Schema.
func ToAnthropicTool(tool models.ToolDeclaration) (anthropic.ToolUnionParam, error) {
	raw, err := json.Marshal(schemaMap(tool.Parameters))
	if err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("marshal schema for %s: %w", tool.Name, err)
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(raw, &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
	}

	toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if toolParam.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
	}
	toolParam.OfTool.Description = anthropic.String(tool.Description)
	return toolParam, nil
}
