package tool

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToAnthropic converts the catalog to Anthropic's "tool" schema, where
// parameters live under input_schema.
func ToAnthropic(tools []Tool) []anthropic.ToolParam {
	out := make([]anthropic.ToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolParam{
			Name:        anthropic.F(t.Name),
			Description: anthropic.F(t.Description),
			InputSchema: anthropic.F[interface{}](t.InputSchema.asMap()),
		})
	}
	return out
}
