package model

// ContextType identifies what a conversation is anchored to.
type ContextType string

const (
	ContextTypeTask    ContextType = "task"
	ContextTypeProject ContextType = "project"
)

// ContextPayload is the snapshot of task/project/user state sent alongside a
// chat request to ground the model's response. It is assembled fresh per
// request and never persisted by the gateway.
type ContextPayload struct {
	Task    *TaskSnapshot    `json:"task,omitempty"`
	Project *ProjectSnapshot `json:"project,omitempty"`
	User    *UserSnapshot    `json:"user,omitempty"`
}

// TaskSnapshot describes the task the user is currently looking at.
type TaskSnapshot struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// ProjectSnapshot describes the active project board.
type ProjectSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Lists       []string `json:"lists,omitempty"`
	TaskCount   int      `json:"task_count,omitempty"`
	MemberCount int      `json:"member_count,omitempty"`
}

// UserSnapshot describes the requesting user.
type UserSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}
