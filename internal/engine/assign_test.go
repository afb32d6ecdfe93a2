package engine_test

import (
	"errors"
	"testing"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

func taskFilterProject(projectID string) repo.TaskFilters {
	return repo.TaskFilters{ProjectID: projectID}
}

func allocationPercent(allocs []domain.Allocation, orgID string) int {
	for _, a := range allocs {
		if a.OrgID == orgID {
			return a.Percent
		}
	}
	return -1
}

func addOrg(t *testing.T, env testEnv, id string) {
	t.Helper()
	if _, err := env.Engine.InitOrg(env.Ctx, id, "", "tester"); err != nil {
		t.Fatalf("init org %s: %v", id, err)
	}
}

func addResource(t *testing.T, env testEnv, id, orgID, team string, capacity, percent int) {
	t.Helper()
	_, err := env.Engine.AddResource(env.Ctx, engine.ResourceCreateOptions{
		ID: id, Name: id, Team: team, OrgID: orgID,
		Capacity: capacity, Percent: percent, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("add resource %s: %v", id, err)
	}
}

// smallWebsiteProject carries 4 template tasks estimated 20+10+40+10 hours.
func smallWebsiteProject(t *testing.T, env testEnv, name string) string {
	t.Helper()
	p, _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OrgID: "org-1", Name: name, Type: "Website", Scale: "Small",
		StartDate: "2026-03-02", EndDate: "2026-03-29", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p.ID
}

// completeProjectTasks takes the template tasks out of scheduling scope so a
// test can plan over hand-made tasks with predictable ids.
func completeProjectTasks(t *testing.T, env testEnv, projectID string) {
	t.Helper()
	if _, err := env.Engine.DB.ExecContext(env.Ctx,
		`UPDATE tasks SET status='Completed' WHERE project_id=?`, projectID); err != nil {
		t.Fatalf("complete tasks: %v", err)
	}
}

func addTask(t *testing.T, env testEnv, projectID, id string, estimate int) {
	t.Helper()
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ID: id, ProjectID: projectID, Title: id, EstimateHours: estimate, ActorID: "tester",
	}); err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
}

func TestAutoAssignPrimaryTier(t *testing.T) {
	env := newTestEnv(t)
	addResource(t, env, "res-1", "org-1", "Website", 200, 100)
	pid := smallWebsiteProject(t, env, "Primary")

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if result.Summary.Assigned != 4 || result.Summary.Unassigned != 0 {
		t.Fatalf("summary %+v", result.Summary)
	}
	if len(result.Assignments) != 4 {
		t.Fatalf("expected 4 primary assignments, got %d", len(result.Assignments))
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilterProject(pid))
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task.AssigneeID == nil || *task.AssigneeID != "res-1" {
			t.Fatalf("task %s not assigned to res-1", task.Title)
		}
	}

	util, err := env.Engine.Repo.ResourceUtilization(env.Ctx, "org-1")
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	// Website/Small tasks total 80 hours.
	if len(util) != 1 || util[0].OpenTasks != 4 || util[0].AssignedHours != 80 {
		t.Fatalf("utilization rollup wrong: %+v", util)
	}
}

func TestAutoAssignCapacityGap(t *testing.T) {
	env := newTestEnv(t)
	addResource(t, env, "res-1", "org-1", "Website", 25, 100)
	pid := smallWebsiteProject(t, env, "Tight")
	completeProjectTasks(t, env, pid)
	// 25 workable hours: task-1 (20h) fits, nothing else does.
	addTask(t, env, pid, "task-1", 20)
	addTask(t, env, pid, "task-2", 10)
	addTask(t, env, pid, "task-3", 40)
	addTask(t, env, pid, "task-4", 10)

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if result.Summary.Assigned != 1 {
		t.Fatalf("expected 1 assigned, got %d", result.Summary.Assigned)
	}
	if len(result.Assignments) != 1 || result.Assignments[0].TaskID != "task-1" {
		t.Fatalf("assignments %+v", result.Assignments)
	}
	if len(result.Gaps) != 3 {
		t.Fatalf("expected 3 gaps, got %d", len(result.Gaps))
	}
	for _, gap := range result.Gaps {
		if gap.Reason != engine.ReasonAtCapacity {
			t.Fatalf("gap reason %q", gap.Reason)
		}
	}
}

func TestAutoAssignNoTeamMembers(t *testing.T) {
	env := newTestEnv(t)
	addResource(t, env, "res-1", "org-1", "Configurator", 500, 100)
	smallWebsiteProject(t, env, "Wrong Team")

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(result.Gaps) != 4 {
		t.Fatalf("expected 4 gaps, got %d", len(result.Gaps))
	}
	for _, gap := range result.Gaps {
		if gap.Reason != engine.ReasonNoTeamMembers {
			t.Fatalf("gap reason %q", gap.Reason)
		}
	}
}

func TestAutoAssignEmptyPool(t *testing.T) {
	env := newTestEnv(t)
	smallWebsiteProject(t, env, "Nobody")
	_, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if !errors.Is(err, engine.ErrResourcePoolEmpty) {
		t.Fatalf("expected ErrResourcePoolEmpty, got %v", err)
	}
}

func TestAutoAssignSharedTier(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	// org-2's engineer shares 40% into org-1; org-1 has no own Website team.
	addResource(t, env, "res-shared", "org-2", "Website", 200, 60)
	if _, err := env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-shared", TargetOrgID: "org-1", Percent: 40, ActorID: "tester",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	smallWebsiteProject(t, env, "Borrowed")

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	// 40% of 200h covers the full 80h of template work.
	if len(result.SharedAssignments) != 4 {
		t.Fatalf("expected 4 shared assignments, got %d", len(result.SharedAssignments))
	}
	if result.Summary.UsedSharedResources != 4 || result.Summary.Unassigned != 0 {
		t.Fatalf("summary %+v", result.Summary)
	}
	sa := result.SharedAssignments[0]
	if sa.PrimaryPortfolioID != "org-2" || sa.TargetPortfolioID != "org-1" || sa.CurrentAllocation != 40 {
		t.Fatalf("shared assignment %+v", sa)
	}
	if sa.Reason != engine.ReasonSharedResource {
		t.Fatalf("expected shared-resource reason, got %q", sa.Reason)
	}
}

func TestAutoAssignSharedTierUncommitted(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	// 40% of org-2's engineer is uncommitted; no share into org-1 exists,
	// yet tier 2 must still place the work on the spare hours.
	addResource(t, env, "res-free", "org-2", "Website", 200, 60)
	smallWebsiteProject(t, env, "Borrowed Ahead")

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(result.SharedAssignments) != 4 || len(result.Gaps) != 0 || len(result.CrossPortfolioSuggestions) != 0 {
		t.Fatalf("shared=%d gaps=%d suggestions=%d", len(result.SharedAssignments),
			len(result.Gaps), len(result.CrossPortfolioSuggestions))
	}
	sa := result.SharedAssignments[0]
	if sa.ResourceID != "res-free" || sa.CurrentAllocation != 60 || sa.Reason != engine.ReasonSharedResource {
		t.Fatalf("shared assignment %+v", sa)
	}
	// The placement does not commit an allocation into org-1; that stays an
	// explicit confirm step.
	res, err := env.Engine.Repo.GetResource(env.Ctx, "res-free")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Allocations) != 1 {
		t.Fatalf("tier 2 committed an allocation: %+v", res.Allocations)
	}
}

func TestAutoAssignCrossPortfolioSuggestions(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	// res-free has 40 spare hours: the first 40h task exhausts them in this
	// pass, the second surfaces as a suggestion only.
	addResource(t, env, "res-free", "org-2", "Website", 100, 60)
	pid := smallWebsiteProject(t, env, "Wishful")
	completeProjectTasks(t, env, pid)
	addTask(t, env, pid, "task-1", 40)
	addTask(t, env, pid, "task-2", 40)

	result, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(result.SharedAssignments) != 1 || result.SharedAssignments[0].TaskID != "task-1" {
		t.Fatalf("shared assignments %+v", result.SharedAssignments)
	}
	if len(result.Gaps) != 1 || result.Gaps[0].TaskID != "task-2" {
		t.Fatalf("gaps %+v", result.Gaps)
	}
	if !result.Gaps[0].HasCrossPortfolioOption || result.Gaps[0].Reason != engine.ReasonNoTeamMembers {
		t.Fatalf("gap %+v", result.Gaps[0])
	}
	if result.Summary.CanReallocate != 1 || len(result.CrossPortfolioSuggestions) != 1 {
		t.Fatalf("summary %+v", result.Summary)
	}
	sug := result.CrossPortfolioSuggestions[0]
	if len(sug.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(sug.Candidates))
	}
	cand := sug.Candidates[0]
	if cand.ResourceID != "res-free" || cand.CurrentAllocation != 60 || cand.AvailableHours != 40 {
		t.Fatalf("candidate %+v", cand)
	}
	// Suggestions must not have committed anything.
	res, err := env.Engine.Repo.GetResource(env.Ctx, "res-free")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Allocations) != 1 {
		t.Fatalf("suggestion committed an allocation: %+v", res.Allocations)
	}
}

func TestAutoAssignRerunIsStable(t *testing.T) {
	env := newTestEnv(t)
	addResource(t, env, "res-1", "org-1", "Website", 200, 100)
	smallWebsiteProject(t, env, "Stable")

	first, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.AutoAssign(env.Ctx, "org-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if first.Summary != second.Summary {
		t.Fatalf("re-run diverged: %+v vs %+v", first.Summary, second.Summary)
	}
	for i := range first.Assignments {
		if first.Assignments[i] != second.Assignments[i] {
			t.Fatalf("assignment %d diverged", i)
		}
	}
}

func TestConfirmAllocationBound(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	addResource(t, env, "res-full", "org-2", "Website", 200, 100)

	_, err := env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-full", TargetOrgID: "org-1", Percent: 10, ActorID: "tester",
	})
	if !errors.Is(err, engine.ErrAllocationExceeded) {
		t.Fatalf("expected ErrAllocationExceeded, got %v", err)
	}

	addResource(t, env, "res-part", "org-2", "Website", 200, 60)
	res, err := env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-part", TargetOrgID: "org-1", Percent: 40, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if pct := allocationPercent(res.Allocations, "org-1"); pct != 40 {
		t.Fatalf("expected 40%% for org-1, got %d", pct)
	}

	// Re-confirming replaces the slice rather than stacking a second one.
	res, err = env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-part", TargetOrgID: "org-1", Percent: 30, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if pct := allocationPercent(res.Allocations, "org-1"); pct != 30 {
		t.Fatalf("expected replaced 30%% for org-1, got %d", pct)
	}
	if len(res.Allocations) != 2 {
		t.Fatalf("expected primary plus one secondary allocation, got %d", len(res.Allocations))
	}
}

func TestConfirmRejectsHomeOrg(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	addResource(t, env, "res-home", "org-2", "Website", 200, 60)

	_, err := env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-home", TargetOrgID: "org-2", Percent: 40, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("confirming into the home org must fail")
	}
	res, err := env.Engine.Repo.GetResource(env.Ctx, "res-home")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Allocations) != 1 || !res.Allocations[0].IsPrimary || res.Allocations[0].Percent != 60 {
		t.Fatalf("primary allocation must survive: %+v", res.Allocations)
	}
}

func TestConfirmAssignsNamedTask(t *testing.T) {
	env := newTestEnv(t)
	addOrg(t, env, "org-2")
	addResource(t, env, "res-x", "org-2", "Website", 200, 60)
	pid := smallWebsiteProject(t, env, "Confirmed")
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, taskFilterProject(pid))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ConfirmCrossPortfolioAssignment(env.Ctx, engine.ConfirmOptions{
		ResourceID: "res-x", TargetOrgID: "org-1", Percent: 20,
		TaskID: tasks[0].ID, ActorID: "tester",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssigneeID == nil || *got.AssigneeID != "res-x" {
		t.Fatalf("task not assigned on confirm")
	}
}
