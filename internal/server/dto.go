package server

import (
	"planline/internal/domain"
)

type CreateProjectRequest struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Scale     string   `json:"scale,omitempty" enum:"Small,Medium,Large"`
	PM        string   `json:"pm,omitempty"`
	StartDate string   `json:"start_date" format:"date"`
	EndDate   string   `json:"end_date" format:"date"`
	Markets   []string `json:"markets,omitempty"`
}

type ProjectResponse struct {
	ID              string   `json:"id"`
	OrgID           string   `json:"org_id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Scale           string   `json:"scale"`
	Status          string   `json:"status"`
	PM              string   `json:"pm,omitempty"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	OriginalEndDate string   `json:"original_end_date,omitempty"`
	Markets         []string `json:"markets,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:              p.ID,
		OrgID:           p.OrgID,
		Name:            p.Name,
		Type:            p.Type,
		Scale:           p.Scale,
		Status:          p.Status,
		PM:              p.PM,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		OriginalEndDate: p.OriginalEndDate,
		Markets:         p.Markets,
		CreatedAt:       p.CreatedAt,
	}
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(in))
	for _, p := range in {
		out = append(out, projectResponse(p))
	}
	return out
}

type CreateTaskRequest struct {
	ID                string `json:"id,omitempty"`
	Title             string `json:"title"`
	EstimateHours     int    `json:"estimate_hours,omitempty"`
	StartDate         string `json:"start_date,omitempty" format:"date"`
	EndDate           string `json:"end_date,omitempty" format:"date"`
	PredecessorID     string `json:"predecessor_id,omitempty"`
	GatewayDependency string `json:"gateway_dependency,omitempty"`
	AssigneeID        string `json:"assignee_id,omitempty"`
	LinkedInitiative  string `json:"linked_initiative_id,omitempty"`
}

type TaskResponse struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	Title             string            `json:"title"`
	Status            string            `json:"status"`
	AssigneeID        *string           `json:"assignee_id,omitempty"`
	EstimateHours     int               `json:"estimate_hours"`
	ActualHours       int               `json:"actual_hours"`
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date"`
	PredecessorID     *string           `json:"predecessor_id,omitempty"`
	GatewayDependency *string           `json:"gateway_dependency,omitempty"`
	IsMarketSpecific  bool              `json:"is_market_specific"`
	MarketStatus      map[string]string `json:"market_status,omitempty"`
	IsRework          bool              `json:"is_rework"`
	GatewaySource     *string           `json:"gateway_source,omitempty"`
	LinkedInitiative  *string           `json:"linked_initiative_id,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		ProjectID:         t.ProjectID,
		Title:             t.Title,
		Status:            t.Status,
		AssigneeID:        t.AssigneeID,
		EstimateHours:     t.EstimateHours,
		ActualHours:       t.ActualHours,
		StartDate:         t.StartDate,
		EndDate:           t.EndDate,
		PredecessorID:     t.PredecessorID,
		GatewayDependency: t.GatewayDependency,
		IsMarketSpecific:  t.IsMarketSpecific,
		MarketStatus:      t.MarketStatus,
		IsRework:          t.IsRework,
		GatewaySource:     t.GatewaySource,
		LinkedInitiative:  t.LinkedInitiative,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

type RescheduleRequest struct {
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
}

type RescheduleResponse struct {
	Moved []TaskResponse `json:"moved"`
}

type CreateResourceRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Team     string `json:"team"`
	Capacity int    `json:"capacity"`
	Leave    int    `json:"leave,omitempty"`
	Percent  int    `json:"percent,omitempty"`
}

type UpdateResourceRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Team     *string `json:"team,omitempty"`
	Capacity *int    `json:"capacity,omitempty"`
	Leave    *int    `json:"leave,omitempty"`
}

type ResourceResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Role        string              `json:"role,omitempty"`
	Team        string              `json:"team"`
	OrgID       string              `json:"org_id"`
	Capacity    int                 `json:"capacity"`
	Leave       int                 `json:"leave"`
	Allocations []domain.Allocation `json:"allocations,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

func resourceResponse(r domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		Role:        r.Role,
		Team:        r.Team,
		OrgID:       r.OrgID,
		Capacity:    r.Capacity,
		Leave:       r.Leave,
		Allocations: r.Allocations,
		CreatedAt:   r.CreatedAt,
	}
}

func mapResources(in []domain.Resource) []ResourceResponse {
	out := make([]ResourceResponse, 0, len(in))
	for _, r := range in {
		out = append(out, resourceResponse(r))
	}
	return out
}

type ConfirmAssignmentRequest struct {
	ResourceID string `json:"resource_id"`
	Percent    int    `json:"percent"`
	TaskID     string `json:"task_id,omitempty"`
}

type UpdateGatewayRequest struct {
	Status string `json:"status" enum:"Pending,Received,Late"`
	Date   string `json:"date,omitempty" format:"date"`
	Notes  string `json:"notes,omitempty"`
}

type GatewayResponse struct {
	ID           string                  `json:"id"`
	ProjectID    string                  `json:"project_id"`
	Market       string                  `json:"market"`
	Name         string                  `json:"name"`
	Status       string                  `json:"status"`
	ExpectedDate string                  `json:"expected_date"`
	ReceivedDate *string                 `json:"received_date,omitempty"`
	Versions     []domain.GatewayVersion `json:"versions,omitempty"`
}

func gatewayResponse(g domain.Gateway) GatewayResponse {
	return GatewayResponse{
		ID:           g.ID,
		ProjectID:    g.ProjectID,
		Market:       g.Market,
		Name:         g.Name,
		Status:       g.Status,
		ExpectedDate: g.ExpectedDate,
		ReceivedDate: g.ReceivedDate,
		Versions:     g.Versions,
	}
}

func mapGateways(in []domain.Gateway) []GatewayResponse {
	out := make([]GatewayResponse, 0, len(in))
	for _, g := range in {
		out = append(out, gatewayResponse(g))
	}
	return out
}

type GatewayUpdateResponse struct {
	Gateway     GatewayResponse `json:"gateway"`
	ReworkTasks []TaskResponse  `json:"rework_tasks"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OrgID:      e.OrgID,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}
