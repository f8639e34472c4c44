package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/migrate"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var step int
	e.Now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	return e
}

func seedUser(t *testing.T, e *Engine, id string, role domain.Role) domain.Identity {
	t.Helper()
	err := e.Repo.InsertUser(context.Background(), domain.User{
		ID:           id,
		Name:         id,
		Email:        id + "@example.com",
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    e.stamp(),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return domain.Identity{UserID: id, Role: role}
}

func mustCreateProject(t *testing.T, e *Engine, id domain.Identity, name string, team []string) domain.Project {
	t.Helper()
	p, err := e.CreateProject(context.Background(), id, CreateProjectOptions{Name: name, Team: team})
	if err != nil {
		t.Fatalf("create project %s: %v", name, err)
	}
	return p
}

func mustCreateTask(t *testing.T, e *Engine, id domain.Identity, opts CreateTaskOptions) domain.Task {
	t.Helper()
	task, err := e.CreateTask(context.Background(), id, opts)
	if err != nil {
		t.Fatalf("create task %s: %v", opts.Title, err)
	}
	return task
}

func TestProjectVisibilityAndStatusUpdateScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	managerM := seedUser(t, e, "managerM", domain.RoleManager)
	developerD := seedUser(t, e, "developerD", domain.RoleDeveloper)

	p1 := mustCreateProject(t, e, admin, "P1", []string{"managerM"})

	got, err := e.ListProjects(ctx, managerM)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(got) != 1 || got[0].ID != p1.ID {
		t.Fatalf("manager list = %+v, want [P1]", got)
	}
	got, err = e.ListProjects(ctx, developerD)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("developer off-team sees %d projects, want 0", len(got))
	}

	dev := "developerD"
	t1 := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p1.ID, Title: "T1", AssigneeID: &dev})

	updated, err := e.UpdateTaskStatus(ctx, developerD, t1.ID, "Done")
	if err != nil {
		t.Fatalf("assignee status update: %v", err)
	}
	if updated.Status != domain.TaskDone {
		t.Fatalf("status = %s, want Done", updated.Status)
	}

	entries, err := e.ListActivityByTask(ctx, admin, t1.ID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Action != "Updated task: T1" || last.ProjectID != p1.ID || last.TaskID != t1.ID || last.UserID != "developerD" {
		t.Fatalf("unexpected trail entry %+v", last)
	}

	high := "High"
	_, err = e.UpdateTask(ctx, developerD, t1.ID, UpdateTaskOptions{Priority: &high})
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("full update by assignee = %v, want AuthorizationError", err)
	}
}

func TestEveryMutationAppendsExactlyOneEntry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	seedUser(t, e, "m1", domain.RoleManager)

	p := mustCreateProject(t, e, admin, "Rollout", []string{"m1"})
	countAfterCreate := trailLen(t, e, admin, p.ID)
	if countAfterCreate != 1 {
		t.Fatalf("entries after create = %d, want 1", countAfterCreate)
	}

	name := "Rollout v2"
	if _, err := e.UpdateProject(ctx, admin, p.ID, UpdateProjectOptions{Name: &name}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "Ship"})
	if _, err := e.UpdateTaskStatus(ctx, admin, task.ID, "In Progress"); err != nil {
		t.Fatalf("status update: %v", err)
	}
	if _, err := e.AddComment(ctx, admin, task.ID, "on it"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if err := e.DeleteTask(ctx, admin, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := e.DeleteProject(ctx, admin, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	entries, err := e.ListActivityByProject(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	want := []string{
		"Created project: Rollout",
		"Updated project: Rollout v2",
		"Created task: Ship",
		"Updated task: Ship",
		"Commented on task",
		"Deleted task: Ship",
		"Deleted project: Rollout v2",
	}
	if len(entries) != len(want) {
		t.Fatalf("trail has %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d action = %q, want %q", i, e.Action, want[i])
		}
	}
}

func trailLen(t *testing.T, e *Engine, id domain.Identity, projectID string) int {
	t.Helper()
	entries, err := e.ListActivityByProject(context.Background(), id, projectID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	return len(entries)
}

func TestDeniedMutationLeavesNoTrace(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	seedUser(t, e, "inTeam", domain.RoleManager)
	outsider := seedUser(t, e, "outsider", domain.RoleManager)

	p := mustCreateProject(t, e, admin, "Guarded", []string{"inTeam"})

	if err := e.DeleteProject(ctx, outsider, p.ID); err == nil {
		t.Fatal("off-team manager deleted the project")
	}
	name := "renamed"
	if _, err := e.UpdateProject(ctx, outsider, p.ID, UpdateProjectOptions{Name: &name}); err == nil {
		t.Fatal("off-team manager updated the project")
	}

	got, err := e.Repo.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Name != "Guarded" {
		t.Fatalf("project name = %q after denied update", got.Name)
	}
	if n := trailLen(t, e, admin, p.ID); n != 1 {
		t.Fatalf("trail has %d entries after denied mutations, want 1", n)
	}
}

func TestManagerScopeIsTeamMembership(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	member := seedUser(t, e, "member", domain.RoleManager)
	stranger := seedUser(t, e, "stranger", domain.RoleManager)

	p := mustCreateProject(t, e, admin, "Scoped", []string{"member"})
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "Work"})

	if _, err := e.UpdateTaskStatus(ctx, member, task.ID, "Done"); err != nil {
		t.Fatalf("team manager status update: %v", err)
	}
	var authErr *AuthorizationError
	if _, err := e.UpdateTaskStatus(ctx, stranger, task.ID, "To Do"); !errors.As(err, &authErr) {
		t.Fatalf("off-team manager status update = %v, want AuthorizationError", err)
	}
	if err := e.DeleteProject(ctx, member, p.ID); err != nil {
		t.Fatalf("team manager delete: %v", err)
	}
}

func TestAssignedDeveloperCannotFullUpdate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	devOnTeam := seedUser(t, e, "devOnTeam", domain.RoleDeveloper)
	seedUser(t, e, "assignee", domain.RoleDeveloper)

	p := mustCreateProject(t, e, admin, "P", []string{"devOnTeam"})
	who := "assignee"
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "T", AssigneeID: &who})

	// Team membership without assignment does not grant the status rule.
	var authErr *AuthorizationError
	if _, err := e.UpdateTaskStatus(ctx, devOnTeam, task.ID, "Done"); !errors.As(err, &authErr) {
		t.Fatalf("non-assignee developer status update = %v, want AuthorizationError", err)
	}
}

func TestActivityLogIsAdminOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	manager := seedUser(t, e, "manager", domain.RoleManager)
	developer := seedUser(t, e, "developer", domain.RoleDeveloper)

	p := mustCreateProject(t, e, admin, "P", []string{"manager"})
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "T"})

	for _, id := range []domain.Identity{manager, developer} {
		var authErr *AuthorizationError
		if _, err := e.ListActivityByProject(ctx, id, p.ID); !errors.As(err, &authErr) {
			t.Errorf("%s project log = %v, want AuthorizationError", id.Role, err)
		}
		if _, err := e.ListActivityByTask(ctx, id, task.ID); !errors.As(err, &authErr) {
			t.Errorf("%s task log = %v, want AuthorizationError", id.Role, err)
		}
	}
	if _, err := e.ListActivityByProject(ctx, admin, p.ID); err != nil {
		t.Fatalf("admin project log: %v", err)
	}
}

func TestAuditWriteFailureStillReturnsResource(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)

	if _, err := e.DB.ExecContext(ctx, `DROP TABLE activity_log`); err != nil {
		t.Fatalf("drop activity_log: %v", err)
	}

	p, err := e.CreateProject(ctx, admin, CreateProjectOptions{Name: "Orphaned"})
	var auditErr *AuditWriteFailedError
	if !errors.As(err, &auditErr) {
		t.Fatalf("create with broken trail = %v, want AuditWriteFailedError", err)
	}
	if p.ID == "" || p.Name != "Orphaned" {
		t.Fatalf("committed resource not returned: %+v", p)
	}

	// The mutation itself committed.
	got, err := e.Repo.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Name != "Orphaned" {
		t.Fatalf("project = %+v", got)
	}
}

func TestTrailSurvivesEntityDeletion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)

	p := mustCreateProject(t, e, admin, "Ephemeral", nil)
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "Gone soon"})
	if err := e.DeleteTask(ctx, admin, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := e.DeleteProject(ctx, admin, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	entries, err := e.ListActivityByProject(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("trail has %d entries after deletion, want 4", len(entries))
	}
}

func TestListQueriesAreIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	manager := seedUser(t, e, "manager", domain.RoleManager)

	for i := 0; i < 3; i++ {
		p := mustCreateProject(t, e, admin, fmt.Sprintf("P%d", i), []string{"manager"})
		mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: fmt.Sprintf("T%d", i)})
	}

	first, err := e.ListProjects(ctx, manager)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	second, err := e.ListProjects(ctx, manager)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated project list differs with no intervening mutation")
	}

	t1, err := e.ListTasks(ctx, manager, ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	t2, err := e.ListTasks(ctx, manager, ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if !reflect.DeepEqual(t1, t2) {
		t.Fatal("repeated task list differs with no intervening mutation")
	}
}

func TestTaskVisibilityFollowsParentProject(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	manager := seedUser(t, e, "manager", domain.RoleManager)
	developer := seedUser(t, e, "developer", domain.RoleDeveloper)

	inScope := mustCreateProject(t, e, admin, "In", []string{"manager", "developer"})
	outScope := mustCreateProject(t, e, admin, "Out", nil)
	dev := "developer"
	visible := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: inScope.ID, Title: "Visible", AssigneeID: &dev})
	mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: inScope.ID, Title: "Unassigned"})
	mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: outScope.ID, Title: "Hidden"})

	managerSees, err := e.ListTasks(ctx, manager, ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(managerSees) != 2 {
		t.Fatalf("manager sees %d tasks, want 2", len(managerSees))
	}

	// Developers see only their assignments, team membership is not enough.
	devSees, err := e.ListTasks(ctx, developer, ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(devSees) != 1 || devSees[0].ID != visible.ID {
		t.Fatalf("developer sees %+v, want only the assigned task", devSees)
	}

	adminSees, err := e.ListTasks(ctx, admin, ListTaskOptions{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(adminSees) != 3 {
		t.Fatalf("admin sees %d tasks, want 3", len(adminSees))
	}
}

func TestCreateTaskAgainstMissingProject(t *testing.T) {
	e := newTestEngine(t)
	admin := seedUser(t, e, "admin", domain.RoleAdmin)

	_, err := e.CreateTask(context.Background(), admin, CreateTaskOptions{ProjectID: "no-such-project", Title: "T"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("create against missing project = %v, want ValidationError", err)
	}
}

func TestCommentRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	seedUser(t, e, "manager", domain.RoleManager)
	assignee := seedUser(t, e, "assignee", domain.RoleDeveloper)
	bystander := seedUser(t, e, "bystander", domain.RoleDeveloper)

	p := mustCreateProject(t, e, admin, "P", []string{"manager"})
	who := "assignee"
	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "T", AssigneeID: &who})

	c, err := e.AddComment(ctx, assignee, task.ID, "done soon")
	if err != nil {
		t.Fatalf("assignee comment: %v", err)
	}
	if c.UserID != "assignee" {
		t.Fatalf("comment author = %s", c.UserID)
	}
	var authErr *AuthorizationError
	if _, err := e.AddComment(ctx, bystander, task.ID, "me too"); !errors.As(err, &authErr) {
		t.Fatalf("bystander comment = %v, want AuthorizationError", err)
	}
	var valErr *ValidationError
	if _, err := e.AddComment(ctx, admin, task.ID, ""); !errors.As(err, &valErr) {
		t.Fatalf("empty comment = %v, want ValidationError", err)
	}

	comments, err := e.ListComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(comments))
	}
}

func TestNotFoundIsDistinctFromDenied(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)

	var nf *NotFoundError
	if _, err := e.UpdateTaskStatus(ctx, admin, "missing", "Done"); !errors.As(err, &nf) {
		t.Fatalf("missing task = %v, want NotFoundError", err)
	}
	if err := e.DeleteProject(ctx, admin, "missing"); !errors.As(err, &nf) {
		t.Fatalf("missing project = %v, want NotFoundError", err)
	}
}

func TestAssigneeMustBeKnownUser(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := seedUser(t, e, "admin", domain.RoleAdmin)
	seedUser(t, e, "known", domain.RoleDeveloper)
	p := mustCreateProject(t, e, admin, "P", nil)

	ghost := "ghost"
	var valErr *ValidationError
	if _, err := e.CreateTask(ctx, admin, CreateTaskOptions{ProjectID: p.ID, Title: "T", AssigneeID: &ghost}); !errors.As(err, &valErr) {
		t.Fatalf("create with unknown assignee = %v, want ValidationError", err)
	}

	task := mustCreateTask(t, e, admin, CreateTaskOptions{ProjectID: p.ID, Title: "T"})
	if _, err := e.UpdateTask(ctx, admin, task.ID, UpdateTaskOptions{AssigneeID: &ghost}); !errors.As(err, &valErr) {
		t.Fatalf("update to unknown assignee = %v, want ValidationError", err)
	}

	known := "known"
	updated, err := e.UpdateTask(ctx, admin, task.ID, UpdateTaskOptions{AssigneeID: &known})
	if err != nil {
		t.Fatalf("assign known user: %v", err)
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != "known" {
		t.Fatalf("assignee = %v, want known", updated.AssigneeID)
	}

	none := ""
	cleared, err := e.UpdateTask(ctx, admin, task.ID, UpdateTaskOptions{AssigneeID: &none})
	if err != nil {
		t.Fatalf("clear assignee: %v", err)
	}
	if cleared.AssigneeID != nil {
		t.Fatalf("assignee = %v, want nil", cleared.AssigneeID)
	}
}
