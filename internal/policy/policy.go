// Package policy holds the access decision engine: a pure function from
// (identity, action, resource snapshot) to Allow or Deny. It performs no I/O;
// callers resolve every fact the decision needs (the project's team, the
// task's assignee) before asking.
package policy

import (
	"fmt"

	"taskline/internal/domain"
)

// Action is the closed set of operations the engine decides on.
type Action string

const (
	ActionProjectCreate Action = "project.create"
	ActionProjectUpdate Action = "project.update"
	ActionProjectDelete Action = "project.delete"
	ActionProjectView   Action = "project.view"

	ActionTaskCreate Action = "task.create"
	ActionTaskUpdate Action = "task.update"
	ActionTaskDelete Action = "task.delete"
	ActionTaskView   Action = "task.view"

	// ActionTaskUpdateStatus is narrower than ActionTaskUpdate: an assigned
	// Developer may move a task's status but must not be able to smuggle
	// title/assignee/priority/deadline changes through the looser rule.
	ActionTaskUpdateStatus Action = "task.update_status"

	ActionCommentCreate Action = "comment.create"

	ActionActivityView Action = "activity.view"
)

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Snapshot carries the facts a decision depends on. Team is the parent
// project's member set for both project- and task-scoped actions (a task's
// scope is inherited, never its own). AssigneeID is the task's assignee, empty
// when unassigned or irrelevant. A nil/empty Team means nobody has membership:
// incomplete snapshots deny rather than guess.
type Snapshot struct {
	Team       []string
	AssigneeID string
}

// ProjectSnapshot builds a snapshot for project-scoped actions. For creation
// the team is the proposed member set from the request.
func ProjectSnapshot(team []string) Snapshot {
	return Snapshot{Team: team}
}

// TaskSnapshot builds a snapshot for task-scoped actions from the resolved
// parent project team and the task's assignee.
func TaskSnapshot(team []string, assigneeID *string) Snapshot {
	s := Snapshot{Team: team}
	if assigneeID != nil {
		s.AssigneeID = *assigneeID
	}
	return s
}

func (s Snapshot) member(userID string) bool {
	for _, id := range s.Team {
		if id == userID {
			return true
		}
	}
	return false
}

func (s Snapshot) assignee(userID string) bool {
	return s.AssigneeID != "" && s.AssigneeID == userID
}

// Decide evaluates the fixed role/membership rule table. It never fails:
// unknown roles or actions fall through to Deny.
func Decide(id domain.Identity, action Action, snap Snapshot) Decision {
	if id.Role == domain.RoleAdmin {
		return Allow
	}
	switch action {
	case ActionProjectCreate, ActionProjectUpdate, ActionProjectDelete,
		ActionTaskCreate, ActionTaskUpdate, ActionTaskDelete:
		if id.Role == domain.RoleManager && snap.member(id.UserID) {
			return Allow
		}
		return Deny
	case ActionProjectView:
		switch id.Role {
		case domain.RoleManager, domain.RoleDeveloper:
			if snap.member(id.UserID) {
				return Allow
			}
		}
		return Deny
	case ActionTaskUpdateStatus, ActionTaskView, ActionCommentCreate:
		switch id.Role {
		case domain.RoleManager:
			if snap.member(id.UserID) {
				return Allow
			}
		case domain.RoleDeveloper:
			if snap.assignee(id.UserID) {
				return Allow
			}
		}
		return Deny
	case ActionActivityView:
		// Admin only; handled by the short-circuit above.
		return Deny
	}
	return Deny
}

// Describe renders a decision for logs and error messages.
func Describe(id domain.Identity, action Action, d Decision) string {
	return fmt.Sprintf("%s %s for %s (%s)", d, action, id.UserID, id.Role)
}
