package planlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Planline HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	EstimateHours int     `json:"estimate_hours"`
	IsRework      bool    `json:"is_rework"`
}

// Project represents the API project model (partial).
type Project struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"org_id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Scale     string   `json:"scale"`
	Status    string   `json:"status"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Markets   []string `json:"markets"`
}

// Gateway represents an input gateway with its delivery history.
type Gateway struct {
	ProjectID    string           `json:"project_id"`
	Market       string           `json:"market"`
	Name         string           `json:"name"`
	Status       string           `json:"status"`
	ExpectedDate string           `json:"expected_date"`
	ReceivedDate *string          `json:"received_date,omitempty"`
	Versions     []GatewayVersion `json:"versions,omitempty"`
}

// GatewayVersion is one recorded delivery of a gateway.
type GatewayVersion struct {
	Version  int    `json:"version"`
	Status   string `json:"status"`
	Date     string `json:"date"`
	Notes    string `json:"notes,omitempty"`
	IsOnTime bool   `json:"is_on_time"`
}

// GatewayUpdate is the result of recording a gateway delivery.
type GatewayUpdate struct {
	Gateway     Gateway  `json:"gateway"`
	ReworkTasks []Task   `json:"rework_tasks,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// AssignmentResult is the output of an auto-assignment run.
type AssignmentResult struct {
	Assignments []map[string]any `json:"assignments"`
	Gaps        []map[string]any `json:"gaps"`
	Shared      []map[string]any `json:"shared_assignments"`
	Suggestions []map[string]any `json:"cross_portfolio_suggestions"`
	Summary     struct {
		Assigned            int `json:"assigned"`
		Unassigned          int `json:"unassigned"`
		UsedSharedResources int `json:"used_shared_resources"`
		CanReallocate       int `json:"can_reallocate"`
	} `json:"summary"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project from the org template catalog.
func (c *Client) CreateProject(ctx context.Context, name, projectType, scale, startDate, endDate string, markets []string) (Project, []Task, []Gateway, error) {
	body := map[string]any{
		"name":       name,
		"type":       projectType,
		"scale":      scale,
		"start_date": startDate,
		"end_date":   endDate,
		"markets":    markets,
	}
	var resp struct {
		Project  Project   `json:"project"`
		Tasks    []Task    `json:"tasks"`
		Gateways []Gateway `json:"gateways"`
	}
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp.Project, resp.Tasks, resp.Gateways, err
}

// Projects lists projects in the active org.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// Tasks lists tasks of a project.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	endpoint := fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Reschedule moves a task and returns every task the cascade touched.
func (c *Client) Reschedule(ctx context.Context, taskID, startDate, endDate string) ([]Task, error) {
	body := map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
	}
	var resp struct {
		Moved []Task `json:"moved"`
	}
	endpoint := fmt.Sprintf("tasks/%s/reschedule", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Moved, err
}

// AutoAssign runs the tiered scheduler for the active org.
func (c *Client) AutoAssign(ctx context.Context) (AssignmentResult, error) {
	var resp AssignmentResult
	err := c.do(ctx, http.MethodPost, "assignments/auto", map[string]any{}, &resp)
	return resp, err
}

// ConfirmAssignment commits a cross-portfolio allocation.
func (c *Client) ConfirmAssignment(ctx context.Context, resourceID string, percent int, taskID string) error {
	body := map[string]any{
		"resource_id": resourceID,
		"percent":     percent,
	}
	if taskID != "" {
		body["task_id"] = taskID
	}
	return c.do(ctx, http.MethodPost, "assignments/confirm", body, nil)
}

// UpdateGateway records a delivery or slip for a project gateway.
func (c *Client) UpdateGateway(ctx context.Context, projectID, market, name, status, date, notes string) (GatewayUpdate, error) {
	body := map[string]any{
		"status": status,
	}
	if date != "" {
		body["date"] = date
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp GatewayUpdate
	endpoint := fmt.Sprintf("projects/%s/gateways/%s/%s",
		url.PathEscape(projectID), url.PathEscape(market), url.PathEscape(name))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
		if c.OrgID != "" {
			req.Header.Set("X-Org-Id", c.OrgID)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
