package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

func (r Repo) InsertGateway(ctx context.Context, tx *sql.Tx, g domain.Gateway) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO gateways(id,project_id,market,name,status,expected_date,received_date) VALUES (?,?,?,?,?,?,?)`,
		g.ID, g.ProjectID, g.Market, g.Name, g.Status, g.ExpectedDate, nullableStringPtr(g.ReceivedDate))
	return err
}

func scanGateway(scan func(dest ...any) error) (domain.Gateway, error) {
	var g domain.Gateway
	var received sql.NullString
	err := scan(&g.ID, &g.ProjectID, &g.Market, &g.Name, &g.Status, &g.ExpectedDate, &received)
	if err != nil {
		return g, err
	}
	if received.Valid {
		g.ReceivedDate = &received.String
	}
	return g, nil
}

const gatewayCols = `id,project_id,market,name,status,expected_date,received_date`

// GetGateway looks a gateway up by its natural key (project, market, name).
func (r Repo) GetGateway(ctx context.Context, projectID, market, name string) (domain.Gateway, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+gatewayCols+` FROM gateways WHERE project_id=? AND market=? AND name=?`, projectID, market, name)
	g, err := scanGateway(row.Scan)
	if err == sql.ErrNoRows {
		return g, ErrGatewayNotFound
	}
	if err != nil {
		return g, err
	}
	g.Versions, err = r.ListGatewayVersions(ctx, g.ID)
	return g, err
}

func (r Repo) ListGateways(ctx context.Context, projectID string) ([]domain.Gateway, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+gatewayCols+` FROM gateways WHERE project_id=? ORDER BY market, name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Gateway
	for rows.Next() {
		g, err := scanGateway(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		versions, err := r.ListGatewayVersions(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Versions = versions
	}
	return res, nil
}

func (r Repo) ListGatewayVersions(ctx context.Context, gatewayID string) ([]domain.GatewayVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT version,status,date,notes,is_on_time FROM gateway_versions WHERE gateway_id=? ORDER BY version`, gatewayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GatewayVersion
	for rows.Next() {
		var v domain.GatewayVersion
		var notes sql.NullString
		if err := rows.Scan(&v.Version, &v.Status, &v.Date, &notes, &v.IsOnTime); err != nil {
			return nil, err
		}
		if notes.Valid {
			v.Notes = notes.String
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) UpdateGatewayStatus(ctx context.Context, tx *sql.Tx, id, status string, receivedDate *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE gateways SET status=?, received_date=? WHERE id=?`, status, nullableStringPtr(receivedDate), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGatewayNotFound
	}
	return nil
}

func (r Repo) AppendGatewayVersion(ctx context.Context, tx *sql.Tx, gatewayID string, v domain.GatewayVersion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO gateway_versions(gateway_id,version,status,date,notes,is_on_time) VALUES (?,?,?,?,?,?)`,
		gatewayID, v.Version, v.Status, v.Date, nullable(v.Notes), v.IsOnTime)
	return err
}

// CountGatewayVersions is read inside the update transaction to decide the
// next version number and whether an update is a re-delivery.
func (r Repo) CountGatewayVersions(ctx context.Context, tx *sql.Tx, gatewayID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM gateway_versions WHERE gateway_id=?`, gatewayID).Scan(&n)
	return n, err
}
