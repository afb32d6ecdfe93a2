package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// InitOrg registers a portfolio org with the default template catalog.
func (e Engine) InitOrg(ctx context.Context, orgID, name, actorID string) (domain.Org, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Org{}, err
	}
	defer tx.Rollback()

	o := domain.Org{
		ID:        orgID,
		Name:      name,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if o.Name == "" {
		o.Name = orgID
	}
	if err := e.Repo.InsertOrg(ctx, tx, o); err != nil {
		return domain.Org{}, fmt.Errorf("insert org: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(orgID)
	}
	if err := e.Repo.UpsertOrgConfigTx(ctx, tx, orgID, cfg); err != nil {
		return domain.Org{}, fmt.Errorf("insert org config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "org.init", o.ID, "", "org", o.ID, actorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Org{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Org{}, err
	}
	return o, nil
}

// ProjectCreateOptions are parameters for creating a project from the
// template catalog.
type ProjectCreateOptions struct {
	ID        string
	OrgID     string
	Name      string
	Type      string
	Scale     string
	PM        string
	StartDate string
	EndDate   string
	Markets   []string
	ActorID   string
}

// CreateProject instantiates a project from the catalog: tasks for its team
// and scale spread evenly across the window and chained by predecessor, plus
// one gateway per market at its template offset before launch.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, []domain.Task, []domain.Gateway, error) {
	if e.Config == nil {
		return domain.Project{}, nil, nil, errors.New("config not loaded")
	}
	if opts.Name == "" {
		return domain.Project{}, nil, nil, errors.New("name is required")
	}
	if opts.OrgID == "" {
		return domain.Project{}, nil, nil, errors.New("org is required")
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgID); err != nil {
		return domain.Project{}, nil, nil, err
	}
	if opts.Scale == "" {
		opts.Scale = "Medium"
	}
	start, err := parseDate(opts.StartDate)
	if err != nil {
		return domain.Project{}, nil, nil, err
	}
	end, err := parseDate(opts.EndDate)
	if err != nil {
		return domain.Project{}, nil, nil, err
	}
	if end.Before(start) {
		return domain.Project{}, nil, nil, ErrInvalidDateRange
	}
	taskTemplates, ok := e.Config.TaskTemplateFor(opts.Type, opts.Scale)
	if !ok {
		return domain.Project{}, nil, nil, fmt.Errorf("%w for %s/%s", ErrTemplateNotFound, opts.Type, opts.Scale)
	}
	markets := opts.Markets
	if len(markets) == 0 {
		markets = []string{"Global"}
	}

	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.OrgID+"|"+opts.Name+"|"+now)).String()
	}
	p := domain.Project{
		ID:              id,
		OrgID:           opts.OrgID,
		Name:            opts.Name,
		Type:            opts.Type,
		Scale:           opts.Scale,
		Status:          "Planning",
		PM:              opts.PM,
		StartDate:       opts.StartDate,
		EndDate:         opts.EndDate,
		OriginalEndDate: opts.EndDate,
		Markets:         markets,
		CreatedAt:       now,
	}

	// Divide the window evenly; every task gets at least one day.
	totalDays := int(end.Sub(start).Hours()/24) + 1
	daysPerTask := totalDays / len(taskTemplates)
	if daysPerTask < 1 {
		daysPerTask = 1
	}
	var tasks []domain.Task
	var prevID *string
	cursor := start
	for i, tpl := range taskTemplates {
		taskStart := cursor
		taskEnd := taskStart.AddDate(0, 0, daysPerTask-1)
		if i == len(taskTemplates)-1 && taskEnd.Before(end) {
			taskEnd = end
		}
		t := domain.Task{
			ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(id+"|task|"+tpl.Title)).String(),
			ProjectID:     id,
			Title:         tpl.Title,
			Status:        "Planning",
			EstimateHours: tpl.Estimate,
			StartDate:     formatDate(taskStart),
			EndDate:       formatDate(taskEnd),
			PredecessorID: prevID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if tpl.GatewayDependency != "" {
			dep := tpl.GatewayDependency
			t.GatewayDependency = &dep
		}
		tasks = append(tasks, t)
		prevID = &tasks[i].ID
		cursor = taskEnd.AddDate(0, 0, 1)
	}

	var gateways []domain.Gateway
	for _, market := range markets {
		for _, tpl := range e.Config.GatewayTemplateFor(opts.Type, opts.Scale) {
			gateways = append(gateways, domain.Gateway{
				ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(id+"|gw|"+market+"|"+tpl.Name)).String(),
				ProjectID:    id,
				Market:       market,
				Name:         tpl.Name,
				Status:       "Pending",
				ExpectedDate: formatDate(end.AddDate(0, 0, -7*tpl.OffsetWeeks)),
			})
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, nil, nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, nil, nil, fmt.Errorf("insert project: %w", err)
	}
	for _, t := range tasks {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return domain.Project{}, nil, nil, fmt.Errorf("insert task %s: %w", t.Title, err)
		}
	}
	for _, g := range gateways {
		if err := e.Repo.InsertGateway(ctx, tx, g); err != nil {
			return domain.Project{}, nil, nil, fmt.Errorf("insert gateway %s/%s: %w", g.Market, g.Name, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.OrgID, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"name":     p.Name,
		"type":     p.Type,
		"scale":    p.Scale,
		"tasks":    len(tasks),
		"gateways": len(gateways),
	}); err != nil {
		return domain.Project{}, nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, nil, nil, err
	}
	return p, tasks, gateways, nil
}

// TaskCreateOptions are parameters for creating a task by hand, outside the
// template catalog.
type TaskCreateOptions struct {
	ID                string
	ProjectID         string
	Title             string
	EstimateHours     int
	StartDate         string
	EndDate           string
	PredecessorID     string
	GatewayDependency string
	AssigneeID        string
	LinkedInitiative  string
	ActorID           string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.StartDate == "" {
		opts.StartDate = p.StartDate
	}
	if opts.EndDate == "" {
		opts.EndDate = p.EndDate
	}
	start, err := parseDate(opts.StartDate)
	if err != nil {
		return domain.Task{}, err
	}
	end, err := parseDate(opts.EndDate)
	if err != nil {
		return domain.Task{}, err
	}
	if end.Before(start) {
		return domain.Task{}, ErrInvalidDateRange
	}
	if opts.PredecessorID != "" {
		pred, err := e.Repo.GetTask(ctx, opts.PredecessorID)
		if err != nil {
			return domain.Task{}, err
		}
		if pred.ProjectID != opts.ProjectID {
			return domain.Task{}, fmt.Errorf("predecessor %s not in project %s", opts.PredecessorID, opts.ProjectID)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ProjectID+"|"+opts.Title+"|"+now)).String()
	}
	t := domain.Task{
		ID:                id,
		ProjectID:         opts.ProjectID,
		Title:             opts.Title,
		Status:            "Planning",
		AssigneeID:        optionalString(opts.AssigneeID),
		EstimateHours:     opts.EstimateHours,
		StartDate:         opts.StartDate,
		EndDate:           opts.EndDate,
		PredecessorID:     optionalString(opts.PredecessorID),
		GatewayDependency: optionalString(opts.GatewayDependency),
		LinkedInitiative:  optionalString(opts.LinkedInitiative),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", p.OrgID, p.ID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ResourceCreateOptions are parameters for adding a resource to the pool.
type ResourceCreateOptions struct {
	ID       string
	Name     string
	Role     string
	Team     string
	OrgID    string
	Capacity int
	Leave    int
	Percent  int
	ActorID  string
}

// AddResource registers a resource with a primary allocation to its home org.
func (e Engine) AddResource(ctx context.Context, opts ResourceCreateOptions) (domain.Resource, error) {
	if opts.Name == "" {
		return domain.Resource{}, errors.New("name is required")
	}
	if opts.Team == "" {
		return domain.Resource{}, errors.New("team is required")
	}
	if opts.OrgID == "" {
		return domain.Resource{}, errors.New("org is required")
	}
	if opts.Capacity <= 0 {
		return domain.Resource{}, errors.New("capacity must be positive")
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgID); err != nil {
		return domain.Resource{}, err
	}
	if opts.Percent <= 0 || opts.Percent > 100 {
		opts.Percent = 100
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.OrgID+"|"+opts.Name+"|"+now)).String()
	}
	res := domain.Resource{
		ID:       id,
		Name:     opts.Name,
		Role:     opts.Role,
		Team:     opts.Team,
		OrgID:    opts.OrgID,
		Capacity: opts.Capacity,
		Leave:    opts.Leave,
		Allocations: []domain.Allocation{
			{OrgID: opts.OrgID, Percent: opts.Percent, IsPrimary: true},
		},
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertResource(ctx, tx, res); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.added", opts.OrgID, "", "resource", res.ID, opts.ActorID, events.EventPayload{"name": res.Name, "team": res.Team}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

// ResourceUpdateOptions carry the roster fields to change; nil keeps the
// current value. Allocations are managed through the assignment confirm flow.
type ResourceUpdateOptions struct {
	Name     *string
	Role     *string
	Team     *string
	Capacity *int
	Leave    *int
	ActorID  string
}

func (e Engine) UpdateResource(ctx context.Context, id string, opts ResourceUpdateOptions) (domain.Resource, error) {
	res, err := e.Repo.GetResource(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}
	if opts.Name != nil {
		res.Name = *opts.Name
	}
	if opts.Role != nil {
		res.Role = *opts.Role
	}
	if opts.Team != nil {
		res.Team = *opts.Team
	}
	if opts.Capacity != nil {
		res.Capacity = *opts.Capacity
	}
	if opts.Leave != nil {
		res.Leave = *opts.Leave
	}
	if res.Name == "" {
		return domain.Resource{}, errors.New("name is required")
	}
	if res.Team == "" {
		return domain.Resource{}, errors.New("team is required")
	}
	if res.Capacity <= 0 {
		return domain.Resource{}, errors.New("capacity must be positive")
	}
	if res.Leave < 0 {
		return domain.Resource{}, errors.New("leave cannot be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateResource(ctx, tx, res); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.updated", res.OrgID, "", "resource", res.ID, opts.ActorID, events.EventPayload{"name": res.Name, "team": res.Team}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

func (e Engine) RemoveResource(ctx context.Context, id, actorID string) error {
	res, err := e.Repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteResource(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "resource.removed", res.OrgID, "", "resource", id, actorID, events.EventPayload{"name": res.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", p.OrgID, p.ID, "project", p.ID, actorID, events.EventPayload{"name": p.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// DependencyChain lists every task downstream of the given one, breadth
// first in id order.
func (e Engine) DependencyChain(ctx context.Context, taskID string) ([]domain.Task, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	var chain []domain.Task
	seen := map[string]bool{taskID: true}
	queue := []string{taskID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		succs, err := e.Repo.ListSuccessors(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, s := range succs {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			chain = append(chain, s)
			queue = append(queue, s.ID)
		}
	}
	return chain, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
