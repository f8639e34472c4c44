package domain

import "fmt"

// Role is the closed set of user roles. Authorization is decided from the
// role plus project team membership; there is no per-user permission list.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleManager   Role = "Manager"
	RoleDeveloper Role = "Developer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "Not Started"
	ProjectInProgress ProjectStatus = "In Progress"
	ProjectCompleted  ProjectStatus = "Completed"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectNotStarted, ProjectInProgress, ProjectCompleted:
		return true
	}
	return false
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	ps := ProjectStatus(s)
	if !ps.Valid() {
		return "", fmt.Errorf("unknown project status %q", s)
	}
	return ps, nil
}

type TaskStatus string

const (
	TaskToDo       TaskStatus = "To Do"
	TaskInProgress TaskStatus = "In Progress"
	TaskDone       TaskStatus = "Done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskToDo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	ts := TaskStatus(s)
	if !ts.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return ts, nil
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Identity is the verified acting user for one operation. It is produced by
// the transport layer (JWT middleware, CLI flag resolution) and passed
// explicitly into every engine call; nothing in the core holds a current user.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Project owns a team: the set of user ids that gives Managers (and
// Developers, for visibility) their scope over the project and its tasks.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Deadline    *string       `json:"deadline,omitempty" format:"date-time"`
	Status      ProjectStatus `json:"status" enum:"Not Started,In Progress,Completed"`
	Team        []string      `json:"team"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

// Task scope is inherited from the parent project's team; the task itself
// carries no membership of its own beyond the optional assignee.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	Priority    Priority   `json:"priority" enum:"Low,Medium,High"`
	Deadline    *string    `json:"deadline,omitempty" format:"date-time"`
	Status      TaskStatus `json:"status" enum:"To Do,In Progress,Done"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ActivityLogEntry is one immutable audit record. Project/task references
// are historical: they are valid at creation time and survive deletion of
// the referenced entity.
type ActivityLogEntry struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	ProjectID string `json:"project_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
