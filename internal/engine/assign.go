package engine

import (
	"context"
	"fmt"
	"time"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// Gap reasons reported when tier 1 cannot place a task, and the reason
// recorded on committed tier-2 placements.
const (
	ReasonAtCapacity     = "Primary Resources at Capacity"
	ReasonNoTeamMembers  = "No Primary Team Members"
	ReasonSharedResource = "Assigned to Shared Resource"
)

// AutoAssign re-plans every open task of the org's projects against the
// resource pool. Three tiers run in order: the org's primary resources, then
// foreign resources with spare capacity (committed as shared assignments),
// then non-committing reallocation suggestions. Tasks and resources are
// walked in id order, so the same inputs always produce the same plan.
func (e Engine) AutoAssign(ctx context.Context, orgID, actorID string) (domain.AssignmentResult, error) {
	var result domain.AssignmentResult
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		return result, err
	}
	pool, err := e.Repo.ListResources(ctx, "")
	if err != nil {
		return result, err
	}
	if len(pool) == 0 {
		return result, ErrResourcePoolEmpty
	}
	projects, err := e.Repo.ListProjects(ctx, orgID)
	if err != nil {
		return result, err
	}
	projectByID := map[string]domain.Project{}
	for _, p := range projects {
		projectByID[p.ID] = p
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OrgID: orgID})
	if err != nil {
		return result, err
	}

	// Hours each resource can still take in this pass: one counter per
	// committed org slice, plus the uncommitted slice shared placements
	// draw on when no allocation into the org exists yet.
	remaining := map[string]int{}
	free := map[string]int{}
	primaryOrg := map[string]string{}
	for _, r := range pool {
		for _, a := range r.Allocations {
			if a.IsPrimary {
				primaryOrg[r.ID] = a.OrgID
			}
			remaining[r.ID+"|"+a.OrgID] = workableHours(r, a.Percent)
		}
		if total := totalAllocation(r); total < 100 {
			free[r.ID] = workableHours(r, 100-total)
		}
	}

	type plannedAssign struct {
		taskID     string
		resourceID string
	}
	var planned []plannedAssign

	for _, t := range tasks {
		if t.Status == "Completed" {
			continue
		}
		p := projectByID[t.ProjectID]
		team := p.Type

		// Tier 1: the org's own team.
		var teamSize int
		var placed bool
		for _, r := range pool {
			if primaryOrg[r.ID] != orgID || r.Team != team {
				continue
			}
			teamSize++
			key := r.ID + "|" + orgID
			if remaining[key] < t.EstimateHours {
				continue
			}
			remaining[key] -= t.EstimateHours
			planned = append(planned, plannedAssign{t.ID, r.ID})
			result.Assignments = append(result.Assignments, domain.TaskAssignment{
				TaskID:       t.ID,
				TaskTitle:    t.Title,
				ResourceID:   r.ID,
				ResourceName: r.Name,
				Estimate:     t.EstimateHours,
			})
			placed = true
			break
		}
		if placed {
			continue
		}
		reason := ReasonAtCapacity
		if teamSize == 0 {
			reason = ReasonNoTeamMembers
		}

		// Tier 2: any foreign resource with spare capacity, whether it
		// already shares into this org or still has uncommitted hours.
		for _, r := range pool {
			if primaryOrg[r.ID] == orgID || r.Team != team {
				continue
			}
			key := r.ID + "|" + orgID
			current := totalAllocation(r)
			if share := allocationFor(r, orgID); share != nil {
				current = share.Percent
			}
			switch {
			case remaining[key] >= t.EstimateHours:
				remaining[key] -= t.EstimateHours
			case free[r.ID] >= t.EstimateHours:
				free[r.ID] -= t.EstimateHours
			default:
				continue
			}
			planned = append(planned, plannedAssign{t.ID, r.ID})
			result.SharedAssignments = append(result.SharedAssignments, domain.SharedAssignment{
				TaskID:             t.ID,
				TaskTitle:          t.Title,
				ProjectName:        p.Name,
				RequiredTeam:       team,
				Estimate:           t.EstimateHours,
				ResourceID:         r.ID,
				ResourceName:       r.Name,
				PrimaryPortfolioID: primaryOrg[r.ID],
				TargetPortfolioID:  orgID,
				CurrentAllocation:  current,
				Reason:             ReasonSharedResource,
			})
			placed = true
			break
		}
		if placed {
			continue
		}

		// Tier 3: suggest, without committing, resources other portfolios
		// could partially reallocate.
		var candidates []domain.ReallocationCandidate
		for _, r := range pool {
			if primaryOrg[r.ID] == orgID || r.Team != team {
				continue
			}
			total := totalAllocation(r)
			if total >= 100 {
				continue
			}
			free := workableHours(r, 100-total)
			if free < t.EstimateHours {
				continue
			}
			candidates = append(candidates, domain.ReallocationCandidate{
				ResourceID:        r.ID,
				Name:              r.Name,
				CurrentAllocation: total,
				AvailableHours:    free,
				PortfolioID:       primaryOrg[r.ID],
			})
		}
		if len(candidates) > 0 {
			result.CrossPortfolioSuggestions = append(result.CrossPortfolioSuggestions, domain.CrossPortfolioSuggestion{
				TaskID:       t.ID,
				TaskTitle:    t.Title,
				ProjectName:  p.Name,
				RequiredTeam: team,
				Estimate:     t.EstimateHours,
				Candidates:   candidates,
			})
		}
		result.Gaps = append(result.Gaps, domain.AssignmentGap{
			TaskID:                  t.ID,
			TaskTitle:               t.Title,
			ProjectName:             p.Name,
			RequiredTeam:            team,
			Estimate:                t.EstimateHours,
			Reason:                  reason,
			HasCrossPortfolioOption: len(candidates) > 0,
		})
	}

	result.Summary = domain.AssignmentSummary{
		Assigned:            len(result.Assignments) + len(result.SharedAssignments),
		Unassigned:          len(result.Gaps),
		UsedSharedResources: len(result.SharedAssignments),
		CanReallocate:       len(result.CrossPortfolioSuggestions),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.ResetAssignees(ctx, tx, orgID, nowStr); err != nil {
		return result, err
	}
	for _, pa := range planned {
		rid := pa.resourceID
		if err := e.Repo.SetTaskAssignee(ctx, tx, pa.taskID, &rid, nowStr); err != nil {
			return result, err
		}
	}
	if err := e.Events.Append(ctx, tx, "assign.completed", orgID, "", "org", orgID, actorID, events.EventPayload{
		"assigned":              result.Summary.Assigned,
		"unassigned":            result.Summary.Unassigned,
		"used_shared_resources": result.Summary.UsedSharedResources,
		"can_reallocate":        result.Summary.CanReallocate,
	}); err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// ConfirmOptions commit a suggested cross-portfolio reallocation.
type ConfirmOptions struct {
	ResourceID  string
	TargetOrgID string
	Percent     int
	TaskID      string
	ActorID     string
}

// ConfirmCrossPortfolioAssignment carves a secondary allocation out of a
// resource for the target org and, when a task is named, assigns it. The
// allocation bound is checked inside the write transaction so concurrent
// confirms cannot oversubscribe the resource.
func (e Engine) ConfirmCrossPortfolioAssignment(ctx context.Context, opts ConfirmOptions) (domain.Resource, error) {
	if opts.Percent <= 0 {
		return domain.Resource{}, fmt.Errorf("percent must be positive")
	}
	res, err := e.Repo.GetResource(ctx, opts.ResourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	if opts.TargetOrgID == res.OrgID {
		return domain.Resource{}, fmt.Errorf("resource %s is already primary in %s", res.ID, res.OrgID)
	}
	if _, err := e.Repo.GetOrg(ctx, opts.TargetOrgID); err != nil {
		return domain.Resource{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()

	others, err := e.Repo.AllocationTotalExcluding(ctx, tx, opts.ResourceID, opts.TargetOrgID)
	if err != nil {
		return domain.Resource{}, err
	}
	if others+opts.Percent > 100 {
		return domain.Resource{}, fmt.Errorf("%w: %d%% committed elsewhere, %d%% requested", ErrAllocationExceeded, others, opts.Percent)
	}
	if err := e.Repo.UpsertAllocation(ctx, tx, opts.ResourceID, domain.Allocation{
		OrgID:   opts.TargetOrgID,
		Percent: opts.Percent,
	}); err != nil {
		return domain.Resource{}, err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	if opts.TaskID != "" {
		if _, err := e.Repo.GetTask(ctx, opts.TaskID); err != nil {
			return domain.Resource{}, err
		}
		rid := opts.ResourceID
		if err := e.Repo.SetTaskAssignee(ctx, tx, opts.TaskID, &rid, nowStr); err != nil {
			return domain.Resource{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "allocation.confirmed", opts.TargetOrgID, "", "resource", opts.ResourceID, opts.ActorID, events.EventPayload{
		"percent":           opts.Percent,
		"primary_portfolio": res.OrgID,
		"task_id":           opts.TaskID,
	}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return e.Repo.GetResource(ctx, opts.ResourceID)
}

// workableHours is the slice of a resource's year a percentage buys, leave
// already deducted.
func workableHours(r domain.Resource, percent int) int {
	capacity := r.Capacity - r.Leave
	if capacity < 0 {
		capacity = 0
	}
	return capacity * percent / 100
}

func allocationFor(r domain.Resource, orgID string) *domain.Allocation {
	for i, a := range r.Allocations {
		if a.OrgID == orgID {
			return &r.Allocations[i]
		}
	}
	return nil
}

func totalAllocation(r domain.Resource) int {
	total := 0
	for _, a := range r.Allocations {
		total += a.Percent
	}
	return total
}
