package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

func (r Repo) InsertResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resources(id,name,role,team,org_id,capacity,leave,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		res.ID, res.Name, nullable(res.Role), res.Team, res.OrgID, res.Capacity, res.Leave, res.CreatedAt)
	if err != nil {
		return err
	}
	for _, a := range res.Allocations {
		if err := r.UpsertAllocation(ctx, tx, res.ID, a); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	result, err := tx.ExecContext(ctx, `UPDATE resources SET name=?, role=?, team=?, capacity=?, leave=? WHERE id=?`,
		res.Name, nullable(res.Role), res.Team, res.Capacity, res.Leave, res.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (r Repo) DeleteResource(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var res domain.Resource
	var role sql.NullString
	err := scan(&res.ID, &res.Name, &role, &res.Team, &res.OrgID, &res.Capacity, &res.Leave, &res.CreatedAt)
	if err != nil {
		return res, err
	}
	if role.Valid {
		res.Role = role.String
	}
	return res, nil
}

const resourceCols = `id,name,role,team,org_id,capacity,leave,created_at`

func (r Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resourceCols+` FROM resources WHERE id=?`, id)
	res, err := scanResource(row.Scan)
	if err == sql.ErrNoRows {
		return res, ErrResourceNotFound
	}
	if err != nil {
		return res, err
	}
	res.Allocations, err = r.ListAllocations(ctx, res.ID)
	return res, err
}

// ListResources returns the whole pool in id order, allocations included.
// The scheduler snapshots this across all orgs to build its usage table.
func (r Repo) ListResources(ctx context.Context, orgID string) ([]domain.Resource, error) {
	query := `SELECT ` + resourceCols + ` FROM resources ORDER BY id`
	var args []any
	if orgID != "" {
		query = `SELECT ` + resourceCols + ` FROM resources WHERE org_id=? ORDER BY id`
		args = append(args, orgID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Resource
	for rows.Next() {
		item, err := scanResource(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		allocations, err := r.ListAllocations(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Allocations = allocations
	}
	return res, nil
}

// UtilizationRow sums the open work currently assigned to one resource.
type UtilizationRow struct {
	ResourceID    string `json:"resource_id"`
	Name          string `json:"name"`
	Team          string `json:"team"`
	OpenTasks     int    `json:"open_tasks"`
	AssignedHours int    `json:"assigned_hours"`
}

func (r Repo) ResourceUtilization(ctx context.Context, orgID string) ([]UtilizationRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT r.id, r.name, r.team,
		COALESCE(SUM(CASE WHEN t.status != 'Completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status != 'Completed' THEN t.estimate_hours ELSE 0 END), 0)
		FROM resources r
		LEFT JOIN tasks t ON t.assignee_id = r.id
		WHERE r.org_id=?
		GROUP BY r.id ORDER BY r.id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []UtilizationRow
	for rows.Next() {
		var row UtilizationRow
		if err := rows.Scan(&row.ResourceID, &row.Name, &row.Team, &row.OpenTasks, &row.AssignedHours); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r Repo) ListAllocations(ctx context.Context, resourceID string) ([]domain.Allocation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,percent,is_primary FROM resource_allocations WHERE resource_id=? ORDER BY is_primary DESC, org_id`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.OrgID, &a.Percent, &a.IsPrimary); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// AllocationTotalExcluding sums the resource's allocation percentages across
// all orgs except the given one. Used for the 100% bound check inside the
// confirm transaction.
func (r Repo) AllocationTotalExcluding(ctx context.Context, tx *sql.Tx, resourceID, orgID string) (int, error) {
	var total sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT SUM(percent) FROM resource_allocations WHERE resource_id=? AND org_id != ?`, resourceID, orgID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

func (r Repo) UpsertAllocation(ctx context.Context, tx *sql.Tx, resourceID string, a domain.Allocation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resource_allocations(resource_id,org_id,percent,is_primary) VALUES (?,?,?,?)
ON CONFLICT(resource_id,org_id) DO UPDATE SET percent=excluded.percent, is_primary=excluded.is_primary`,
		resourceID, a.OrgID, a.Percent, a.IsPrimary)
	return err
}
