package engine

import (
	"context"
	"fmt"
	"time"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// RescheduleOptions move one task to a new window and let the shift cascade.
type RescheduleOptions struct {
	TaskID    string
	StartDate string
	EndDate   string
	ActorID   string
}

// shift is a staged date change; nothing is written until the whole cascade
// has been computed.
type shift struct {
	task  domain.Task
	start time.Time
	end   time.Time
}

// Reschedule moves a task and pushes every successor whose start the new end
// overlaps. Each pushed task starts the day after its predecessor ends and
// keeps its duration. The cascade runs on an in-memory snapshot first; a
// revisit means the predecessor graph has a cycle and nothing is committed.
func (e Engine) Reschedule(ctx context.Context, opts RescheduleOptions) ([]domain.Task, error) {
	root, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return nil, err
	}
	newStart, err := parseDate(opts.StartDate)
	if err != nil {
		return nil, err
	}
	newEnd, err := parseDate(opts.EndDate)
	if err != nil {
		return nil, err
	}
	if newEnd.Before(newStart) {
		return nil, ErrInvalidDateRange
	}

	project, err := e.Repo.GetProject(ctx, root.ProjectID)
	if err != nil {
		return nil, err
	}

	// Successor index over a snapshot of the project's tasks.
	all, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: root.ProjectID})
	if err != nil {
		return nil, err
	}
	successors := map[string][]domain.Task{}
	for _, t := range all {
		if t.PredecessorID != nil {
			successors[*t.PredecessorID] = append(successors[*t.PredecessorID], t)
		}
	}

	staged := []shift{{task: root, start: newStart, end: newEnd}}
	visited := map[string]bool{root.ID: true}
	queue := []shift{staged[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, succ := range successors[cur.task.ID] {
			succStart, err := parseDate(succ.StartDate)
			if err != nil {
				return nil, err
			}
			if cur.end.Before(succStart) {
				continue
			}
			if visited[succ.ID] {
				return nil, fmt.Errorf("%w: task %s revisited", ErrCyclicDependency, succ.ID)
			}
			visited[succ.ID] = true
			succEnd, err := parseDate(succ.EndDate)
			if err != nil {
				return nil, err
			}
			duration := succEnd.Sub(succStart)
			pushedStart := cur.end.AddDate(0, 0, 1)
			pushed := shift{task: succ, start: pushedStart, end: pushedStart.Add(duration)}
			staged = append(staged, pushed)
			queue = append(queue, pushed)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nowStr := e.now().UTC().Format(time.RFC3339)
	var moved []domain.Task
	for i, s := range staged {
		startStr, endStr := formatDate(s.start), formatDate(s.end)
		if err := e.Repo.UpdateTaskDates(ctx, tx, s.task.ID, startStr, endStr, nowStr); err != nil {
			return nil, err
		}
		evtType := "task.rescheduled"
		if i > 0 {
			evtType = "task.cascaded"
		}
		if err := e.Events.Append(ctx, tx, evtType, project.OrgID, project.ID, "task", s.task.ID, opts.ActorID, events.EventPayload{
			"from_start": s.task.StartDate,
			"from_end":   s.task.EndDate,
			"to_start":   startStr,
			"to_end":     endStr,
		}); err != nil {
			return nil, err
		}
		t := s.task
		t.StartDate = startStr
		t.EndDate = endStr
		t.UpdatedAt = nowStr
		moved = append(moved, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return moved, nil
}
