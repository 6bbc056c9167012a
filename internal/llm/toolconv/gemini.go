package toolconv

import (
	"strings"

	"google.golang.org/genai"

	"github.com/getmira/mira-core/pkg/models"
)

// ToGeminiTools converts tool declarations to Gemini's
// {functionDeclarations: [...]} shape, per spec §4.3.
func ToGeminiTools(tools []models.ToolDeclaration) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func toGeminiSchema(s models.ToolParameterSchema) *genai.Schema {
	schema := &genai.Schema{
		Type:     genai.Type(strings.ToUpper(nonEmpty(s.Type, "object"))),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			schema.Properties[name] = toGeminiPropertySchema(p)
		}
	}
	return schema
}

func toGeminiPropertySchema(p models.ToolPropertySchema) *genai.Schema {
	schema := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(nonEmpty(p.Type, "string"))),
		Description: p.Description,
		Enum:        p.Enum,
	}
	if p.Items != nil {
		schema.Items = toGeminiPropertySchema(*p.Items)
	}
	return schema
}
