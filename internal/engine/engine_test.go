package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitOrg(ctx, "org-1", "Test Portfolio", "tester"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestCreateProjectFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, gateways, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID:     "org-1",
		Name:      "Relaunch",
		Type:      "Website",
		Scale:     "Medium",
		StartDate: "2026-03-01",
		EndDate:   "2026-04-09",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Status != "Planning" {
		t.Fatalf("expected Planning status, got %s", p.Status)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 template tasks, got %d", len(tasks))
	}
	// 40-day window over 4 tasks: 10 days each, chained back to back.
	if tasks[0].StartDate != "2026-03-01" || tasks[0].EndDate != "2026-03-10" {
		t.Fatalf("first task window %s..%s", tasks[0].StartDate, tasks[0].EndDate)
	}
	if tasks[3].EndDate != "2026-04-09" {
		t.Fatalf("last task should reach launch date, got %s", tasks[3].EndDate)
	}
	if tasks[0].PredecessorID != nil {
		t.Fatalf("first task must have no predecessor")
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].PredecessorID == nil || *tasks[i].PredecessorID != tasks[i-1].ID {
			t.Fatalf("task %d not chained to its predecessor", i)
		}
	}
	if len(gateways) != 3 {
		t.Fatalf("expected 3 gateways for Website/Medium, got %d", len(gateways))
	}
	byName := map[string]string{}
	for _, g := range gateways {
		if g.Market != "Global" {
			t.Fatalf("expected default Global market, got %s", g.Market)
		}
		if g.Status != "Pending" {
			t.Fatalf("new gateway must be Pending, got %s", g.Status)
		}
		byName[g.Name] = g.ExpectedDate
	}
	if byName["Design Sign-off"] != "2026-03-12" {
		t.Fatalf("Design Sign-off expected 4 weeks before launch, got %s", byName["Design Sign-off"])
	}
	if byName["QA Sign-off"] != "2026-04-02" {
		t.Fatalf("QA Sign-off expected 1 week before launch, got %s", byName["QA Sign-off"])
	}
}

func TestCreateProjectPerMarketGateways(t *testing.T) {
	env := newTestEnv(t)
	_, _, gateways, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID:     "org-1",
		Name:      "Multi-market",
		Type:      "Website",
		Scale:     "Small",
		StartDate: "2026-03-02",
		EndDate:   "2026-03-29",
		Markets:   []string{"US", "Germany"},
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	// Website/Small declares 2 gateways; one set per market.
	if len(gateways) != 4 {
		t.Fatalf("expected 4 gateways across 2 markets, got %d", len(gateways))
	}
	markets := map[string]int{}
	for _, g := range gateways {
		markets[g.Market]++
	}
	if markets["US"] != 2 || markets["Germany"] != 2 {
		t.Fatalf("gateways unevenly spread: %v", markets)
	}
}

func TestCreateProjectTemplateNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID:     "org-1",
		Name:      "Mystery",
		Type:      "Mobile App",
		Scale:     "Medium",
		StartDate: "2026-03-01",
		EndDate:   "2026-04-01",
		ActorID:   "tester",
	})
	if !errors.Is(err, engine.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestCreateProjectInvalidDateRange(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID:     "org-1",
		Name:      "Backwards",
		Type:      "Website",
		Scale:     "Small",
		StartDate: "2026-04-01",
		EndDate:   "2026-03-01",
		ActorID:   "tester",
	})
	if !errors.Is(err, engine.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestCreateTaskDefaultsToProjectWindow(t *testing.T) {
	env := newTestEnv(t)
	p, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID:     "org-1",
		Name:      "Window",
		Type:      "Website",
		Scale:     "Small",
		StartDate: "2026-03-02",
		EndDate:   "2026-03-29",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID,
		Title:     "Extra review",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.StartDate != p.StartDate || task.EndDate != p.EndDate {
		t.Fatalf("task should default to project window, got %s..%s", task.StartDate, task.EndDate)
	}
}

func TestCreateTaskRejectsForeignPredecessor(t *testing.T) {
	env := newTestEnv(t)
	_, tasks1, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "One", Type: "Website", Scale: "Small",
		StartDate: "2026-03-02", EndDate: "2026-03-29", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	p2, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "Two", Type: "Website", Scale: "Small",
		StartDate: "2026-03-02", EndDate: "2026-03-29", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:     p2.ID,
		Title:         "Crosses projects",
		PredecessorID: tasks1[0].ID,
		ActorID:       "tester",
	})
	if err == nil {
		t.Fatalf("expected predecessor project mismatch error")
	}
}

func TestUpdateResource(t *testing.T) {
	env := newTestEnv(t)
	addResource(t, env, "res-1", "org-1", "Website", 160, 100)

	capacity := 120
	leave := 8
	res, err := env.Engine.UpdateResource(env.Ctx, "res-1", engine.ResourceUpdateOptions{
		Capacity: &capacity,
		Leave:    &leave,
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("update resource: %v", err)
	}
	if res.Capacity != 120 || res.Leave != 8 {
		t.Fatalf("update not applied: %+v", res)
	}
	if res.Name != "res-1" || res.Team != "Website" {
		t.Fatalf("untouched fields changed: %+v", res)
	}

	zero := 0
	if _, err := env.Engine.UpdateResource(env.Ctx, "res-1", engine.ResourceUpdateOptions{
		Capacity: &zero, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected capacity validation error")
	}
	got, err := env.Engine.Repo.GetResource(env.Ctx, "res-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Capacity != 120 {
		t.Fatalf("rejected update must not persist, capacity %d", got.Capacity)
	}
}

func TestDependencyChain(t *testing.T) {
	env := newTestEnv(t)
	_, tasks, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "Chained", Type: "Website", Scale: "Medium",
		StartDate: "2026-03-01", EndDate: "2026-04-09", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	chain, err := env.Engine.DependencyChain(env.Ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 downstream tasks, got %d", len(chain))
	}
	if chain[0].ID != tasks[1].ID || chain[2].ID != tasks[3].ID {
		t.Fatalf("chain out of order")
	}
}

func TestProjectCreatedEventLogged(t *testing.T) {
	env := newTestEnv(t)
	p, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "Evented", Type: "Website", Scale: "Small",
		StartDate: "2026-03-02", EndDate: "2026-03-29", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	var count int
	row := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE type='project.created' AND entity_id=?`, p.ID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one project.created event, got %d", count)
	}
}
