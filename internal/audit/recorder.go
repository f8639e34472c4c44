// Package audit appends and reads the activity log. The recorder performs no
// authorization: visibility of the log is the caller's concern, while every
// role's successful mutations are recorded through it.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"taskline/internal/domain"
)

var (
	ErrEmptyAction = errors.New("audit entry action is empty")
	ErrEmptyUser   = errors.New("audit entry user is empty")
)

type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Append persists one immutable entry and returns its id. It validates only
// structure, not references: an entry may point at a project or task that no
// longer exists by the time the log is read. Entries are never updated or
// deleted, and Append with the same fields is safe to retry after a failure.
func (r Recorder) Append(ctx context.Context, e domain.ActivityLogEntry) (int64, error) {
	if strings.TrimSpace(e.Action) == "" {
		return 0, ErrEmptyAction
	}
	if strings.TrimSpace(e.UserID) == "" {
		return 0, ErrEmptyUser
	}
	createdAt := e.CreatedAt
	if createdAt == "" {
		createdAt = r.now().UTC().Format(time.RFC3339)
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO activity_log(user_id,action,project_id,task_id,created_at) VALUES (?,?,?,?,?)`,
		e.UserID, e.Action, nullable(e.ProjectID), nullable(e.TaskID), createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListByProject returns entries referencing the project, oldest first.
// Equal timestamps keep insertion order via the id column.
func (r Recorder) ListByProject(ctx context.Context, projectID string) ([]domain.ActivityLogEntry, error) {
	return r.list(ctx, `SELECT id,user_id,action,project_id,task_id,created_at FROM activity_log WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
}

// ListByTask returns entries referencing the task, oldest first.
func (r Recorder) ListByTask(ctx context.Context, taskID string) ([]domain.ActivityLogEntry, error) {
	return r.list(ctx, `SELECT id,user_id,action,project_id,task_id,created_at FROM activity_log WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
}

func (r Recorder) list(ctx context.Context, query string, arg any) ([]domain.ActivityLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLogEntry
	for rows.Next() {
		var e domain.ActivityLogEntry
		var projectID, taskID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &projectID, &taskID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if taskID.Valid {
			e.TaskID = taskID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
