package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/migrate"
)

func newTestRecorder(t *testing.T) Recorder {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Recorder{DB: conn, Now: func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}}
}

func TestAppendValidatesStructureOnly(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1"}); !errors.Is(err, ErrEmptyAction) {
		t.Fatalf("empty action = %v, want ErrEmptyAction", err)
	}
	if _, err := r.Append(ctx, domain.ActivityLogEntry{Action: "Created project: X"}); !errors.Is(err, ErrEmptyUser) {
		t.Fatalf("empty user = %v, want ErrEmptyUser", err)
	}

	// References are not checked: the project does not exist and never will.
	id, err := r.Append(ctx, domain.ActivityLogEntry{
		UserID:    "u1",
		Action:    "Deleted project: X",
		ProjectID: "gone-project",
	})
	if err != nil {
		t.Fatalf("append with dangling reference: %v", err)
	}
	if id == 0 {
		t.Fatal("append returned zero id")
	}
}

func TestListOrdersByTimeThenInsertion(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()
	ts := "2024-05-01T12:00:00Z"

	// Three entries with the same timestamp keep insertion order.
	for _, action := range []string{"first", "second", "third"} {
		if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1", Action: action, ProjectID: "p1", CreatedAt: ts}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1", Action: "earlier", ProjectID: "p1", CreatedAt: "2024-05-01T11:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := r.ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"earlier", "first", "second", "third"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Action, want[i])
		}
	}
}

func TestListByTaskFilters(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1", Action: "Updated task: A", ProjectID: "p1", TaskID: "t1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1", Action: "Updated task: B", ProjectID: "p1", TaskID: "t2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.Append(ctx, domain.ActivityLogEntry{UserID: "u1", Action: "Updated project: P", ProjectID: "p1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	byTask, err := r.ListByTask(ctx, "t1")
	if err != nil {
		t.Fatalf("list by task: %v", err)
	}
	if len(byTask) != 1 || byTask[0].Action != "Updated task: A" {
		t.Fatalf("by task = %+v", byTask)
	}
	byProject, err := r.ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("list by project: %v", err)
	}
	if len(byProject) != 3 {
		t.Fatalf("by project = %d entries, want 3", len(byProject))
	}
}

func TestAppendDefaultsCreatedAt(t *testing.T) {
	r := newTestRecorder(t)
	id, err := r.Append(context.Background(), domain.ActivityLogEntry{UserID: "u1", Action: "Commented on task", TaskID: "t1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == 0 {
		t.Fatal("zero id")
	}
	entries, err := r.ListByTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries[0].CreatedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("created_at = %q", entries[0].CreatedAt)
	}
}
