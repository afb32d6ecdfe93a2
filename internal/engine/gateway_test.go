package engine_test

import (
	"strings"
	"testing"

	"planline/internal/domain"
	"planline/internal/engine"
)

// gatewayFixture is a Website/Small project whose Design Sign-off gateway is
// expected 2 weeks before the 2026-03-29 launch, i.e. 2026-03-15.
func gatewayFixture(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "Gated", Type: "Website", Scale: "Small",
		StartDate: "2026-03-02", EndDate: "2026-03-29", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestGatewayLateCreatesRework(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)

	result, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Late",
		Date: "2026-03-20", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update gateway: %v", err)
	}
	if result.Gateway.Status != "Late" {
		t.Fatalf("gateway status %s", result.Gateway.Status)
	}
	if len(result.Gateway.Versions) != 1 || result.Gateway.Versions[0].Version != 1 {
		t.Fatalf("expected version 1, got %+v", result.Gateway.Versions)
	}
	if result.Gateway.Versions[0].IsOnTime {
		t.Fatalf("a Late delivery can never be on time")
	}
	// Landing Page Design (20h) depends on Design Sign-off.
	if len(result.ReworkTasks) != 1 {
		t.Fatalf("expected 1 rework task, got %d", len(result.ReworkTasks))
	}
	rt := result.ReworkTasks[0]
	if rt.Title != "Rework: Landing Page Design (Global)" {
		t.Fatalf("rework title %q", rt.Title)
	}
	if rt.EstimateHours != 6 {
		t.Fatalf("rework estimate should be ceil(0.3*20)=6, got %d", rt.EstimateHours)
	}
	if rt.StartDate != "2026-03-20" || rt.EndDate != "2026-03-25" {
		t.Fatalf("rework window %s..%s", rt.StartDate, rt.EndDate)
	}
	if !rt.IsRework || rt.GatewaySource == nil || *rt.GatewaySource != "Design Sign-off" {
		t.Fatalf("rework flags wrong: %+v", rt)
	}
	if !rt.IsMarketSpecific || rt.MarketStatus["Global"] != "Planning" {
		t.Fatalf("rework must be scoped to the delivering market: %+v", rt)
	}
}

func TestGatewayReceivedOnTimeNoRework(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)

	result, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Received",
		Date: "2026-03-14", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update gateway: %v", err)
	}
	if !result.Gateway.Versions[0].IsOnTime {
		t.Fatalf("delivery before expected date must be on time")
	}
	if result.Gateway.ReceivedDate == nil || *result.Gateway.ReceivedDate != "2026-03-14" {
		t.Fatalf("received date not recorded")
	}
	if len(result.ReworkTasks) != 0 {
		t.Fatalf("first on-time delivery must not create rework")
	}
}

func TestGatewayRedeliveryCreatesRework(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)

	if _, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Received",
		Date: "2026-03-14", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Received",
		Date: "2026-03-18", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := len(second.Gateway.Versions); got != 2 {
		t.Fatalf("expected 2 versions, got %d", got)
	}
	latest := second.Gateway.Versions[1]
	if latest.Version != 2 || latest.IsOnTime {
		t.Fatalf("second version wrong: %+v", latest)
	}
	if len(second.ReworkTasks) != 1 {
		t.Fatalf("redelivery must create rework, got %d tasks", len(second.ReworkTasks))
	}
}

func TestGatewayUpdateCommitsWithoutDependents(t *testing.T) {
	env := newTestEnv(t)
	// No Website/Medium template task depends on QA Sign-off.
	p, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: "Unblocked", Type: "Website", Scale: "Medium",
		StartDate: "2026-03-01", EndDate: "2026-04-09", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	result, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "QA Sign-off", Status: "Late",
		Date: "2026-04-05", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update gateway: %v", err)
	}
	if len(result.ReworkTasks) != 0 {
		t.Fatalf("expected no rework, got %d", len(result.ReworkTasks))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "no rework generated") {
		t.Fatalf("expected warning, got %v", result.Warnings)
	}
	// The status change itself must have committed.
	g, err := env.Engine.Repo.GetGateway(env.Ctx, p.ID, "Global", "QA Sign-off")
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != "Late" || len(g.Versions) != 1 {
		t.Fatalf("gateway not committed: %s with %d versions", g.Status, len(g.Versions))
	}
}

func TestGatewayReworkCoversCompletedTemplateTasks(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)

	// The rework rule keys on the template, not on live task status.
	if _, err := env.Engine.DB.ExecContext(env.Ctx,
		`UPDATE tasks SET status='Completed' WHERE project_id=? AND title='Landing Page Design'`, p.ID); err != nil {
		t.Fatalf("complete dependent: %v", err)
	}
	result, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Late",
		Date: "2026-03-20", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update gateway: %v", err)
	}
	if len(result.ReworkTasks) != 1 {
		t.Fatalf("expected 1 rework task, got %d", len(result.ReworkTasks))
	}
	if result.ReworkTasks[0].Title != "Rework: Landing Page Design (Global)" {
		t.Fatalf("rework title %q", result.ReworkTasks[0].Title)
	}
}

func TestGatewayRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)
	_, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
		ProjectID: p.ID, Name: "Design Sign-off", Status: "Shipped", ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestGatewayVersionsAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	p := gatewayFixture(t, env)

	for _, status := range []string{"Late", "Received", "Received"} {
		if _, err := env.Engine.UpdateGateway(env.Ctx, engine.GatewayUpdateOptions{
			ProjectID: p.ID, Name: "Design Sign-off", Status: status,
			Date: "2026-03-20", ActorID: "tester",
		}); err != nil {
			t.Fatalf("update %s: %v", status, err)
		}
	}
	g, err := env.Engine.Repo.GetGateway(env.Ctx, p.ID, "Global", "Design Sign-off")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(g.Versions))
	}
	for i, v := range g.Versions {
		if v.Version != i+1 {
			t.Fatalf("version %d out of order: %+v", i, v)
		}
		if v.Date != "2026-03-20" {
			t.Fatalf("version %d lost its delivery date: %+v", i, v)
		}
	}
}
