// Package tool defines the catalog of project-management tools exposed to
// LLM providers, plus converters into each provider's native schema.
//
// The catalog is described once in a provider-neutral form. Converters in
// openai.go, anthropic.go and gemini.go translate it; all three shapes
// describe the same underlying capability set. Tools are never executed by
// the gateway — the model's tool calls are surfaced to the user for
// confirmation.
package tool

// Property describes a single parameter of a tool.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is a JSON-schema object describing a tool's parameters.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Tool is a provider-neutral tool definition.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Catalog returns the registered tool set.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        "list_tasks",
			Description: "List tasks in the current project, optionally filtered by status or assignee.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"status": {
						Type:        "string",
						Description: "Filter by task status.",
						Enum:        []string{"todo", "in_progress", "done"},
					},
					"assignee": {
						Type:        "string",
						Description: "Filter by assignee user ID.",
					},
				},
			},
		},
		{
			Name:        "search_tasks",
			Description: "Search tasks in the current project by free-text query over title and description.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "Free-text search query.",
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "create_task",
			Description: "Create a new task in the current project. Requires user confirmation before execution.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"title": {
						Type:        "string",
						Description: "Task title.",
					},
					"description": {
						Type:        "string",
						Description: "Task description in plain text.",
					},
					"list": {
						Type:        "string",
						Description: "Name of the board list to place the task in.",
					},
					"labels": {
						Type:        "array",
						Description: "Labels to attach to the task.",
						Items:       &Property{Type: "string"},
					},
				},
				Required: []string{"title"},
			},
		},
		{
			Name:        "update_task_status",
			Description: "Move a task to a different status. Requires user confirmation before execution.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"task_id": {
						Type:        "string",
						Description: "ID of the task to update.",
					},
					"status": {
						Type:        "string",
						Description: "New status for the task.",
						Enum:        []string{"todo", "in_progress", "done"},
					},
				},
				Required: []string{"task_id", "status"},
			},
		},
		{
			Name:        "add_comment",
			Description: "Add a comment to a task. Requires user confirmation before execution.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"task_id": {
						Type:        "string",
						Description: "ID of the task to comment on.",
					},
					"body": {
						Type:        "string",
						Description: "Comment body.",
					},
				},
				Required: []string{"task_id", "body"},
			},
		},
	}
}

// asMap renders the schema as the generic map form expected by the OpenAI
// and Anthropic request builders.
func (s Schema) asMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p.asMap()
	}
	m := map[string]any{
		"type":       s.Type,
		"properties": props,
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

func (p Property) asMap() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Items != nil {
		m["items"] = p.Items.asMap()
	}
	return m
}
