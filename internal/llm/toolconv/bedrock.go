package toolconv

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/getmira/mira-core/pkg/models"
)

// ToBedrockTools converts tool declarations to a Bedrock Converse API
// tool configuration, per spec §4.3.
func ToBedrockTools(tools []models.ToolDeclaration) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	bedrockTools := make([]types.Tool, len(tools))
	for i, tool := range tools {
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schemaMap(tool.Parameters)),
				},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}
