package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
)

// GatewayUpdateOptions record one delivery (or slip) of an input gateway.
type GatewayUpdateOptions struct {
	ProjectID string
	Market    string
	Name      string
	Status    string
	Date      string
	Notes     string
	ActorID   string
}

// GatewayUpdateResult reports the new gateway state plus any corrective work
// the update generated.
type GatewayUpdateResult struct {
	Gateway     domain.Gateway `json:"gateway"`
	ReworkTasks []domain.Task  `json:"rework_tasks,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// UpdateGateway appends a version to the gateway's history and moves its
// status. A Late delivery, or a re-delivery after an earlier version,
// generates one rework task per template entry of the owning project that
// depends on the gateway. The gateway update itself commits even when the
// template has no dependent entries.
func (e Engine) UpdateGateway(ctx context.Context, opts GatewayUpdateOptions) (GatewayUpdateResult, error) {
	var result GatewayUpdateResult
	if e.Config == nil {
		return result, fmt.Errorf("config not loaded")
	}
	switch opts.Status {
	case "Pending", "Received", "Late":
	default:
		return result, fmt.Errorf("invalid gateway status %q", opts.Status)
	}
	if opts.Market == "" {
		opts.Market = "Global"
	}
	g, err := e.Repo.GetGateway(ctx, opts.ProjectID, opts.Market, opts.Name)
	if err != nil {
		return result, err
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return result, err
	}
	date := opts.Date
	if date == "" {
		date = formatDate(e.now().UTC())
	}
	deliveredAt, err := parseDate(date)
	if err != nil {
		return result, err
	}
	expected, err := parseDate(g.ExpectedDate)
	if err != nil {
		return result, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	priorVersions, err := e.Repo.CountGatewayVersions(ctx, tx, g.ID)
	if err != nil {
		return result, err
	}
	onTime := opts.Status == "Received" && !deliveredAt.After(expected)
	version := domain.GatewayVersion{
		Version:  priorVersions + 1,
		Status:   opts.Status,
		Date:     date,
		Notes:    opts.Notes,
		IsOnTime: onTime,
	}
	if err := e.Repo.AppendGatewayVersion(ctx, tx, g.ID, version); err != nil {
		return result, err
	}
	var received *string
	if opts.Status == "Received" {
		received = &date
	}
	if err := e.Repo.UpdateGatewayStatus(ctx, tx, g.ID, opts.Status, received); err != nil {
		return result, err
	}
	if err := e.Events.Append(ctx, tx, "gateway.updated", p.OrgID, p.ID, "gateway", g.ID, opts.ActorID, events.EventPayload{
		"market":     g.Market,
		"name":       g.Name,
		"status":     opts.Status,
		"version":    version.Version,
		"is_on_time": onTime,
	}); err != nil {
		return result, err
	}

	needsRework := opts.Status == "Late" || (opts.Status == "Received" && priorVersions > 0)
	if needsRework {
		rework, warnings, err := e.generateRework(ctx, tx, p, g, version.Version, deliveredAt, opts.ActorID)
		if err != nil {
			return result, err
		}
		result.ReworkTasks = rework
		result.Warnings = warnings
	}

	if err := tx.Commit(); err != nil {
		return result, err
	}

	g.Status = opts.Status
	g.ReceivedDate = received
	g.Versions = append(g.Versions, version)
	result.Gateway = g
	return result, nil
}

// generateRework creates a corrective task for every template entry of the
// owning project that declares a dependency on the gateway. Rework is sized
// as a fraction of the template estimate and scheduled in a short window
// after the delivery date, market-scoped to the delivering market.
func (e Engine) generateRework(ctx context.Context, tx *sql.Tx, p domain.Project, g domain.Gateway, version int, deliveredAt time.Time, actorID string) ([]domain.Task, []string, error) {
	entries, ok := e.Config.TaskTemplateFor(p.Type, p.Scale)
	if !ok {
		return nil, []string{fmt.Sprintf("no task template for %s/%s; rework for gateway %s skipped", p.Type, p.Scale, g.Name)}, nil
	}
	policy := e.Config.Rework
	fraction := policy.EstimateFraction
	if fraction == 0 {
		fraction = 0.3
	}
	window := policy.WindowDays
	if window == 0 {
		window = 5
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	var rework []domain.Task
	for _, entry := range entries {
		if entry.GatewayDependency != g.Name {
			continue
		}
		source := g.Name
		rt := domain.Task{
			ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|rework|%s|%s|%d", p.ID, entry.Title, g.Market, version))).String(),
			ProjectID:        p.ID,
			Title:            fmt.Sprintf("Rework: %s (%s)", entry.Title, g.Market),
			Status:           "Planning",
			EstimateHours:    int(math.Ceil(fraction * float64(entry.Estimate))),
			StartDate:        formatDate(deliveredAt),
			EndDate:          formatDate(deliveredAt.AddDate(0, 0, window)),
			IsMarketSpecific: true,
			MarketStatus:     map[string]string{g.Market: "Planning"},
			IsRework:         true,
			GatewaySource:    &source,
			CreatedAt:        nowStr,
			UpdatedAt:        nowStr,
		}
		if err := e.Repo.InsertTask(ctx, tx, rt); err != nil {
			return nil, nil, err
		}
		if err := e.Events.Append(ctx, tx, "task.rework.created", p.OrgID, p.ID, "task", rt.ID, actorID, events.EventPayload{
			"template_task": entry.Title,
			"gateway":       g.Name,
			"market":        g.Market,
		}); err != nil {
			return nil, nil, err
		}
		rework = append(rework, rt)
	}
	var warnings []string
	if len(rework) == 0 {
		warnings = append(warnings, fmt.Sprintf("no template tasks depend on gateway %s; no rework generated", g.Name))
	}
	return rework, warnings, nil
}
