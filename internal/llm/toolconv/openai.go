package toolconv

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/getmira/mira-core/pkg/models"
)

// ToOpenAITools converts tool declarations to OpenAI-shaped function
// schema ({type: function, function: {...}}), per spec §4.3.
func ToOpenAITools(tools []models.ToolDeclaration) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap(tool.Parameters),
			},
		}
	}
	return result
}
