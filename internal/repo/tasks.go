package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"planline/internal/domain"
)

const taskCols = `id,project_id,title,status,assignee_id,estimate_hours,actual_hours,start_date,end_date,predecessor_id,gateway_dependency,is_market_specific,market_status_json,is_rework,gateway_source,linked_initiative_id,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignee, predecessor, gatewayDep, marketStatus, gatewaySource, initiative sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &assignee, &t.EstimateHours, &t.ActualHours,
		&t.StartDate, &t.EndDate, &predecessor, &gatewayDep, &t.IsMarketSpecific, &marketStatus,
		&t.IsRework, &gatewaySource, &initiative, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if predecessor.Valid {
		t.PredecessorID = &predecessor.String
	}
	if gatewayDep.Valid {
		t.GatewayDependency = &gatewayDep.String
	}
	if gatewaySource.Valid {
		t.GatewaySource = &gatewaySource.String
	}
	if initiative.Valid {
		t.LinkedInitiative = &initiative.String
	}
	if marketStatus.Valid && marketStatus.String != "" {
		if err := json.Unmarshal([]byte(marketStatus.String), &t.MarketStatus); err != nil {
			return t, fmt.Errorf("task %s market status: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	marketStatus, err := marshalMarketStatus(t.MarketStatus)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, t.Status, nullableStringPtr(t.AssigneeID), t.EstimateHours, t.ActualHours,
		t.StartDate, t.EndDate, nullableStringPtr(t.PredecessorID), nullableStringPtr(t.GatewayDependency),
		t.IsMarketSpecific, marketStatus, t.IsRework, nullableStringPtr(t.GatewaySource),
		nullableStringPtr(t.LinkedInitiative), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	marketStatus, err := marshalMarketStatus(t.MarketStatus)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, status=?, assignee_id=?, estimate_hours=?, actual_hours=?, start_date=?, end_date=?, predecessor_id=?, gateway_dependency=?, is_market_specific=?, market_status_json=?, is_rework=?, gateway_source=?, linked_initiative_id=?, updated_at=? WHERE id=?`,
		t.Title, t.Status, nullableStringPtr(t.AssigneeID), t.EstimateHours, t.ActualHours,
		t.StartDate, t.EndDate, nullableStringPtr(t.PredecessorID), nullableStringPtr(t.GatewayDependency),
		t.IsMarketSpecific, marketStatus, t.IsRework, nullableStringPtr(t.GatewaySource),
		nullableStringPtr(t.LinkedInitiative), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrTaskNotFound
	}
	return t, err
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type TaskFilters struct {
	ProjectID  string
	OrgID      string
	Status     string
	AssigneeID string
	Unassigned bool
	Rework     *bool
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.OrgID != "" {
		clauses = append(clauses, "project_id IN (SELECT id FROM projects WHERE org_id=?)")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned {
		clauses = append(clauses, "assignee_id IS NULL")
	}
	if f.Rework != nil {
		clauses = append(clauses, "is_rework=?")
		args = append(args, *f.Rework)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	// Stable traversal order: the scheduler depends on it for determinism.
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListSuccessors returns tasks whose predecessor is the given task, in id order.
func (r Repo) ListSuccessors(ctx context.Context, taskID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE predecessor_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskDates writes only the shifted window of a cascaded task.
func (r Repo) UpdateTaskDates(ctx context.Context, tx *sql.Tx, id, startDate, endDate, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET start_date=?, end_date=?, updated_at=? WHERE id=?`, startDate, endDate, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r Repo) SetTaskAssignee(ctx context.Context, tx *sql.Tx, id string, assigneeID *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET assignee_id=?, updated_at=? WHERE id=?`, nullableStringPtr(assigneeID), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ResetAssignees clears every assignee on tasks belonging to the org's
// projects; auto-assign is a full re-plan, not an incremental one.
func (r Repo) ResetAssignees(ctx context.Context, tx *sql.Tx, orgID, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET assignee_id=NULL, updated_at=? WHERE project_id IN (SELECT id FROM projects WHERE org_id=?)`, updatedAt, orgID)
	return err
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func marshalMarketStatus(in map[string]string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
