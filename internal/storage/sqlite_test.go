package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sprintdeck/internal/db"
	"sprintdeck/internal/domain"
	"sprintdeck/internal/migrate"
	"sprintdeck/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewSQLite(conn)
	store.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return store
}

func TestProjectCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateProject(ctx, "", storage.CreateProjectData{
		Name:        "Platform",
		Path:        "/srv/repos/platform",
		Description: "core services",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || !created.IsActive {
		t.Fatalf("created = %+v", created)
	}

	got, err := store.GetProject(ctx, "", created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Platform" || got.Path != "/srv/repos/platform" {
		t.Fatalf("got = %+v", got)
	}

	name := "Platform v2"
	inactive := false
	updated, err := store.UpdateProject(ctx, "", created.ID, storage.UpdateProjectData{
		Name:     &name,
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.IsActive {
		t.Fatalf("updated = %+v", updated)
	}

	active, err := store.ListProjects(ctx, "", true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("inactive project in active list")
	}

	if err := store.DeleteProject(ctx, "", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetProject(ctx, "", created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOwnerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mine, err := store.CreateProject(ctx, "alice", storage.CreateProjectData{Name: "Mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateProject(ctx, "bob", storage.CreateProjectData{Name: "Theirs"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	projects, err := store.ListProjects(ctx, "alice", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Mine" {
		t.Fatalf("alice sees %+v", projects)
	}

	if _, err := store.GetProject(ctx, "bob", mine.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner get leaked: %v", err)
	}
	if err := store.DeleteProject(ctx, "bob", mine.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner delete leaked: %v", err)
	}

	// Single-user mode matches only rows without an owner.
	projects, err = store.ListProjects(ctx, "", false)
	if err != nil {
		t.Fatalf("list single-user: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("single-user scope sees owned rows: %+v", projects)
	}
}

func TestTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tag, err := store.CreateTag(ctx, "", "backend", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tag.Color == "" {
		t.Fatalf("default color not applied")
	}
	if _, err := store.CreateTag(ctx, "", "backend", ""); err == nil {
		t.Fatalf("duplicate tag name accepted")
	}

	tags, err := store.ListTags(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("tags = %+v", tags)
	}
	if err := store.DeleteTag(ctx, "", tag.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestTicketLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	project, err := store.CreateProject(ctx, "", storage.CreateProjectData{Name: "Platform"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	backend, err := store.CreateTag(ctx, "", "backend", "#0ea5e9")
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}

	first, err := store.CreateTicket(ctx, "", storage.CreateTicketData{
		Title:     "Wire login endpoint",
		ProjectID: &project.ID,
		Priority:  2,
		TagIDs:    []int64{backend.ID},
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if first.Status != domain.TicketBacklog {
		t.Fatalf("default status = %s", first.Status)
	}
	if len(first.Tags) != 1 || first.Tags[0].Name != "backend" {
		t.Fatalf("tags = %+v", first.Tags)
	}

	second, err := store.CreateTicket(ctx, "", storage.CreateTicketData{
		Title:     "Session refresh",
		ProjectID: &project.ID,
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Position <= first.Position {
		t.Fatalf("positions: first=%d second=%d", first.Position, second.Position)
	}

	status := domain.TicketInProgress
	updated, err := store.UpdateTicket(ctx, "", first.ID, storage.UpdateTicketData{
		Status:  &status,
		TagIDs:  nil,
		TagsSet: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TicketInProgress {
		t.Fatalf("status = %s", updated.Status)
	}
	if len(updated.Tags) != 0 {
		t.Fatalf("tags not cleared: %+v", updated.Tags)
	}

	inProgress, err := store.ListTickets(ctx, "", storage.TicketFilters{Status: domain.TicketInProgress})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].ID != first.ID {
		t.Fatalf("filter by status: %+v", inProgress)
	}

	tagged, err := store.ListTickets(ctx, "", storage.TicketFilters{TagID: backend.ID})
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(tagged) != 0 {
		t.Fatalf("tag filter after clear: %+v", tagged)
	}

	if err := store.DeleteTicket(ctx, "", second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetTicket(ctx, "", second.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.AppendEvent(ctx, "", "orchestrator.started", "sprint", 7, map[string]any{"attempt": i})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.AppendEvent(ctx, "", "sprint.configured", "sprint", 8, nil); err != nil {
		t.Fatalf("append nil payload: %v", err)
	}

	events, err := store.ListEvents(ctx, "", "sprint", 7, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("limit ignored: %d events", len(events))
	}
	// Newest first.
	if events[0].ID < events[1].ID {
		t.Fatalf("order: %d before %d", events[0].ID, events[1].ID)
	}
	for _, e := range events {
		if e.EntityID != 7 || e.Type != "orchestrator.started" {
			t.Fatalf("event = %+v", e)
		}
	}
}

func TestAPIKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	secret := "sd_0123456789abcdef"
	key := domain.APIKey{
		ID:        "k-1",
		OwnerID:   "alice",
		Name:      "laptop",
		KeyHash:   storage.HashAPIKey(secret),
		CreatedAt: "2024-01-01T00:00:00Z",
	}
	if err := store.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetAPIKeyByHash(ctx, storage.HashAPIKey("  "+secret+"\n"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.OwnerID != "alice" {
		t.Fatalf("owner = %q", got.OwnerID)
	}

	if _, err := store.GetAPIKeyByHash(ctx, storage.HashAPIKey("sd_wrong")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("wrong key: %v", err)
	}

	keys, err := store.ListAPIKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != "k-1" {
		t.Fatalf("keys = %+v", keys)
	}

	if err := store.DeleteAPIKey(ctx, "k-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAPIKeyByHash(ctx, storage.HashAPIKey(secret)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("key survived delete: %v", err)
	}
}
