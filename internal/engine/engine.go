// Package engine coordinates the three halves of every tracked operation:
// the access decision, the state mutation, and the audit append. Nothing
// outside this package is allowed to combine them.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskline/internal/audit"
	"taskline/internal/domain"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

type Engine struct {
	DB    *sql.DB
	Repo  repo.Repo
	Audit audit.Recorder

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func New(db *sql.DB) *Engine {
	return &Engine{
		DB:    db,
		Repo:  repo.Repo{DB: db},
		Audit: audit.Recorder{DB: db},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// record appends one trail entry for a committed mutation. The mutation is
// never rolled back on append failure; the caller surfaces the partial state
// through AuditWriteFailedError alongside the mutated resource.
func (e *Engine) record(ctx context.Context, id domain.Identity, action, projectID, taskID string) error {
	_, err := e.Audit.Append(ctx, domain.ActivityLogEntry{
		UserID:    id.UserID,
		Action:    action,
		ProjectID: projectID,
		TaskID:    taskID,
		CreatedAt: e.stamp(),
	})
	if err != nil {
		return &AuditWriteFailedError{Action: action, Err: err}
	}
	return nil
}

type CreateProjectOptions struct {
	Name        string
	Description string
	Deadline    *string
	Status      string
	Team        []string
}

func (e *Engine) CreateProject(ctx context.Context, id domain.Identity, opts CreateProjectOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, &ValidationError{Msg: "project name is required"}
	}
	status := domain.ProjectNotStarted
	if opts.Status != "" {
		var err error
		if status, err = domain.ParseProjectStatus(opts.Status); err != nil {
			return domain.Project{}, &ValidationError{Msg: err.Error()}
		}
	}
	if !policy.Decide(id, policy.ActionProjectCreate, policy.ProjectSnapshot(opts.Team)).Allowed() {
		return domain.Project{}, &AuthorizationError{Identity: id, Action: policy.ActionProjectCreate}
	}
	ts := e.stamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Description: opts.Description,
		Deadline:    opts.Deadline,
		Status:      status,
		Team:        opts.Team,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := e.inTx(ctx, "create project", func(tx *sql.Tx) error {
		return e.Repo.InsertProject(ctx, tx, p)
	}); err != nil {
		return domain.Project{}, err
	}
	return p, e.record(ctx, id, "Created project: "+p.Name, p.ID, "")
}

type UpdateProjectOptions struct {
	Name        *string
	Description *string
	Deadline    *string
	Status      *string
	Team        *[]string
}

func (e *Engine) UpdateProject(ctx context.Context, id domain.Identity, projectID string, opts UpdateProjectOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, e.storeErr("project", projectID, "get project", err)
	}
	if !policy.Decide(id, policy.ActionProjectUpdate, policy.ProjectSnapshot(p.Team)).Allowed() {
		return domain.Project{}, &AuthorizationError{Identity: id, Action: policy.ActionProjectUpdate}
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return domain.Project{}, &ValidationError{Msg: "project name is required"}
		}
		p.Name = *opts.Name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.Deadline != nil {
		p.Deadline = opts.Deadline
	}
	if opts.Status != nil {
		status, err := domain.ParseProjectStatus(*opts.Status)
		if err != nil {
			return domain.Project{}, &ValidationError{Msg: err.Error()}
		}
		p.Status = status
	}
	if opts.Team != nil {
		p.Team = *opts.Team
	}
	p.UpdatedAt = e.stamp()
	if err := e.inTx(ctx, "update project", func(tx *sql.Tx) error {
		return e.Repo.UpdateProject(ctx, tx, p)
	}); err != nil {
		return domain.Project{}, err
	}
	return p, e.record(ctx, id, "Updated project: "+p.Name, p.ID, "")
}

func (e *Engine) DeleteProject(ctx context.Context, id domain.Identity, projectID string) error {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return e.storeErr("project", projectID, "get project", err)
	}
	if !policy.Decide(id, policy.ActionProjectDelete, policy.ProjectSnapshot(p.Team)).Allowed() {
		return &AuthorizationError{Identity: id, Action: policy.ActionProjectDelete}
	}
	if err := e.inTx(ctx, "delete project", func(tx *sql.Tx) error {
		return e.Repo.DeleteProject(ctx, tx, projectID)
	}); err != nil {
		return err
	}
	return e.record(ctx, id, "Deleted project: "+p.Name, p.ID, "")
}

// ListProjects applies the view rule per row: the caller sees exactly the
// projects they could fetch individually, nothing membership hides.
func (e *Engine) ListProjects(ctx context.Context, id domain.Identity) ([]domain.Project, error) {
	all, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	visible := []domain.Project{}
	for _, p := range all {
		if policy.Decide(id, policy.ActionProjectView, policy.ProjectSnapshot(p.Team)).Allowed() {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (e *Engine) GetProject(ctx context.Context, id domain.Identity, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, e.storeErr("project", projectID, "get project", err)
	}
	if !policy.Decide(id, policy.ActionProjectView, policy.ProjectSnapshot(p.Team)).Allowed() {
		return domain.Project{}, &AuthorizationError{Identity: id, Action: policy.ActionProjectView}
	}
	return p, nil
}

type CreateTaskOptions struct {
	ProjectID   string
	Title       string
	Description string
	AssigneeID  *string
	Priority    string
	Deadline    *string
	Status      string
}

func (e *Engine) CreateTask(ctx context.Context, id domain.Identity, opts CreateTaskOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, &ValidationError{Msg: "task title is required"}
	}
	if opts.ProjectID == "" {
		return domain.Task{}, &ValidationError{Msg: "task project is required"}
	}
	priority := domain.PriorityMedium
	if opts.Priority != "" {
		var err error
		if priority, err = domain.ParsePriority(opts.Priority); err != nil {
			return domain.Task{}, &ValidationError{Msg: err.Error()}
		}
	}
	status := domain.TaskToDo
	if opts.Status != "" {
		var err error
		if status, err = domain.ParseTaskStatus(opts.Status); err != nil {
			return domain.Task{}, &ValidationError{Msg: err.Error()}
		}
	}
	team, err := e.parentTeam(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if !policy.Decide(id, policy.ActionTaskCreate, policy.TaskSnapshot(team, nil)).Allowed() {
		return domain.Task{}, &AuthorizationError{Identity: id, Action: policy.ActionTaskCreate}
	}
	if err := e.checkAssignee(ctx, opts.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	ts := e.stamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		AssigneeID:  opts.AssigneeID,
		Priority:    priority,
		Deadline:    opts.Deadline,
		Status:      status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := e.inTx(ctx, "create task", func(tx *sql.Tx) error {
		return e.Repo.InsertTask(ctx, tx, t)
	}); err != nil {
		return domain.Task{}, err
	}
	return t, e.record(ctx, id, "Created task: "+t.Title, t.ProjectID, t.ID)
}

type UpdateTaskOptions struct {
	Title       *string
	Description *string
	AssigneeID  *string
	Priority    *string
	Deadline    *string
	Status      *string
}

// UpdateTask is the full update and requires the stronger rule; an assigned
// Developer must go through UpdateTaskStatus instead.
func (e *Engine) UpdateTask(ctx context.Context, id domain.Identity, taskID string, opts UpdateTaskOptions) (domain.Task, error) {
	t, team, err := e.resolveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !policy.Decide(id, policy.ActionTaskUpdate, policy.TaskSnapshot(team, t.AssigneeID)).Allowed() {
		return domain.Task{}, &AuthorizationError{Identity: id, Action: policy.ActionTaskUpdate}
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Task{}, &ValidationError{Msg: "task title is required"}
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			t.AssigneeID = nil
		} else {
			if err := e.checkAssignee(ctx, opts.AssigneeID); err != nil {
				return domain.Task{}, err
			}
			t.AssigneeID = opts.AssigneeID
		}
	}
	if opts.Priority != nil {
		priority, err := domain.ParsePriority(*opts.Priority)
		if err != nil {
			return domain.Task{}, &ValidationError{Msg: err.Error()}
		}
		t.Priority = priority
	}
	if opts.Deadline != nil {
		t.Deadline = opts.Deadline
	}
	if opts.Status != nil {
		status, err := domain.ParseTaskStatus(*opts.Status)
		if err != nil {
			return domain.Task{}, &ValidationError{Msg: err.Error()}
		}
		t.Status = status
	}
	t.UpdatedAt = e.stamp()
	if err := e.inTx(ctx, "update task", func(tx *sql.Tx) error {
		return e.Repo.UpdateTask(ctx, tx, t)
	}); err != nil {
		return domain.Task{}, err
	}
	return t, e.record(ctx, id, "Updated task: "+t.Title, t.ProjectID, t.ID)
}

// UpdateTaskStatus moves only the status field. Transitions are unconstrained
// within the enum; there is no workflow ordering.
func (e *Engine) UpdateTaskStatus(ctx context.Context, id domain.Identity, taskID, status string) (domain.Task, error) {
	next, err := domain.ParseTaskStatus(status)
	if err != nil {
		return domain.Task{}, &ValidationError{Msg: err.Error()}
	}
	t, team, err := e.resolveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !policy.Decide(id, policy.ActionTaskUpdateStatus, policy.TaskSnapshot(team, t.AssigneeID)).Allowed() {
		return domain.Task{}, &AuthorizationError{Identity: id, Action: policy.ActionTaskUpdateStatus}
	}
	t.Status = next
	t.UpdatedAt = e.stamp()
	if err := e.inTx(ctx, "update task", func(tx *sql.Tx) error {
		return e.Repo.UpdateTask(ctx, tx, t)
	}); err != nil {
		return domain.Task{}, err
	}
	return t, e.record(ctx, id, "Updated task: "+t.Title, t.ProjectID, t.ID)
}

func (e *Engine) DeleteTask(ctx context.Context, id domain.Identity, taskID string) error {
	t, team, err := e.resolveTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !policy.Decide(id, policy.ActionTaskDelete, policy.TaskSnapshot(team, t.AssigneeID)).Allowed() {
		return &AuthorizationError{Identity: id, Action: policy.ActionTaskDelete}
	}
	if err := e.inTx(ctx, "delete task", func(tx *sql.Tx) error {
		return e.Repo.DeleteTask(ctx, tx, taskID)
	}); err != nil {
		return err
	}
	return e.record(ctx, id, "Deleted task: "+t.Title, t.ProjectID, t.ID)
}

type ListTaskOptions struct {
	ProjectID string
	Status    string
}

func (e *Engine) ListTasks(ctx context.Context, id domain.Identity, opts ListTaskOptions) ([]domain.Task, error) {
	all, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: opts.ProjectID, Status: opts.Status})
	if err != nil {
		return nil, err
	}
	teams, err := e.Repo.TeamsByProject(ctx)
	if err != nil {
		return nil, err
	}
	visible := []domain.Task{}
	for _, t := range all {
		if policy.Decide(id, policy.ActionTaskView, policy.TaskSnapshot(teams[t.ProjectID], t.AssigneeID)).Allowed() {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

func (e *Engine) GetTask(ctx context.Context, id domain.Identity, taskID string) (domain.Task, error) {
	t, team, err := e.resolveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !policy.Decide(id, policy.ActionTaskView, policy.TaskSnapshot(team, t.AssigneeID)).Allowed() {
		return domain.Task{}, &AuthorizationError{Identity: id, Action: policy.ActionTaskView}
	}
	return t, nil
}

func (e *Engine) AddComment(ctx context.Context, id domain.Identity, taskID, content string) (domain.Comment, error) {
	if content == "" {
		return domain.Comment{}, &ValidationError{Msg: "comment content is required"}
	}
	t, team, err := e.resolveTask(ctx, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	if !policy.Decide(id, policy.ActionCommentCreate, policy.TaskSnapshot(team, t.AssigneeID)).Allowed() {
		return domain.Comment{}, &AuthorizationError{Identity: id, Action: policy.ActionCommentCreate}
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    t.ID,
		UserID:    id.UserID,
		Content:   content,
		CreatedAt: e.stamp(),
	}
	if err := e.inTx(ctx, "add comment", func(tx *sql.Tx) error {
		return e.Repo.InsertComment(ctx, tx, c)
	}); err != nil {
		return domain.Comment{}, err
	}
	return c, e.record(ctx, id, "Commented on task", t.ProjectID, t.ID)
}

func (e *Engine) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, e.storeErr("task", taskID, "get task", err)
	}
	return e.Repo.ListComments(ctx, taskID)
}

func (e *Engine) ListActivityByProject(ctx context.Context, id domain.Identity, projectID string) ([]domain.ActivityLogEntry, error) {
	if !policy.Decide(id, policy.ActionActivityView, policy.Snapshot{}).Allowed() {
		return nil, &AuthorizationError{Identity: id, Action: policy.ActionActivityView}
	}
	return e.Audit.ListByProject(ctx, projectID)
}

func (e *Engine) ListActivityByTask(ctx context.Context, id domain.Identity, taskID string) ([]domain.ActivityLogEntry, error) {
	if !policy.Decide(id, policy.ActionActivityView, policy.Snapshot{}).Allowed() {
		return nil, &AuthorizationError{Identity: id, Action: policy.ActionActivityView}
	}
	return e.Audit.ListByTask(ctx, taskID)
}

// resolveTask loads a task and its parent project's team. A task whose parent
// project no longer resolves is a data integrity problem, reported as a
// ValidationError rather than a silent deny.
func (e *Engine) resolveTask(ctx context.Context, taskID string) (domain.Task, []string, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, nil, e.storeErr("task", taskID, "get task", err)
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, nil, &ValidationError{Msg: fmt.Sprintf("task %s references missing project %s", taskID, t.ProjectID)}
		}
		return domain.Task{}, nil, err
	}
	return t, p.Team, nil
}

// parentTeam resolves a project's team for task creation. A missing project
// here is the caller naming a project that does not exist, so it surfaces as
// a ValidationError on the request, not a not-found on the task.
func (e *Engine) parentTeam(ctx context.Context, projectID string) ([]string, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &ValidationError{Msg: fmt.Sprintf("project %s does not exist", projectID)}
		}
		return nil, err
	}
	return p.Team, nil
}

// checkAssignee rejects an assignee id that names no user. The tasks table
// does not enforce this, so the engine has to.
func (e *Engine) checkAssignee(ctx context.Context, assigneeID *string) error {
	if assigneeID == nil || *assigneeID == "" {
		return nil
	}
	ok, err := e.Repo.UserExists(ctx, *assigneeID)
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Msg: fmt.Sprintf("assignee %s does not exist", *assigneeID)}
	}
	return nil
}

// inTx runs one mutation inside its own transaction. The audit append happens
// after commit, never inside; see record.
func (e *Engine) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return &MutationFailedError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return &MutationFailedError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &MutationFailedError{Op: op, Err: err}
	}
	return nil
}

func (e *Engine) storeErr(kind, id, op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return &MutationFailedError{Op: op, Err: err}
}
