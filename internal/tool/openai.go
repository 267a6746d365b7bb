package tool

import (
	"github.com/sashabaranov/go-openai"
)

// ToOpenAI converts the catalog to OpenAI's "function" tool schema.
func ToOpenAI(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema.asMap(),
			},
		})
	}
	return out
}
