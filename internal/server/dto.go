package server

import "taskline/internal/domain"

type SignupRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	Role     string `json:"role" enum:"Admin,Manager,Developer"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type CreateProjectRequest struct {
	Name        string   `json:"name" minLength:"1"`
	Description string   `json:"description,omitempty"`
	Deadline    *string  `json:"deadline,omitempty" format:"date-time"`
	Status      string   `json:"status,omitempty"`
	Team        []string `json:"team,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Deadline    *string   `json:"deadline,omitempty" format:"date-time"`
	Status      *string   `json:"status,omitempty"`
	Team        *[]string `json:"team,omitempty"`
}

type CreateTaskRequest struct {
	ProjectID   string  `json:"project_id" minLength:"1"`
	Title       string  `json:"title" minLength:"1"`
	Description string  `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
	Status      string  `json:"status,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
	Status      *string `json:"status,omitempty"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" enum:"To Do,In Progress,Done"`
}

type CreateCommentRequest struct {
	Content string `json:"content" minLength:"1"`
}

type AckResponse struct {
	ID     string `json:"id"`
	Status string `json:"status" example:"deleted"`
}
