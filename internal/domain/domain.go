package domain

type Org struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID              string   `json:"id"`
	OrgID           string   `json:"org_id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Scale           string   `json:"scale" enum:"Small,Medium,Large"`
	Status          string   `json:"status" enum:"Planning,Active,Completed"`
	PM              string   `json:"pm,omitempty"`
	StartDate       string   `json:"start_date" format:"date"`
	EndDate         string   `json:"end_date" format:"date"`
	OriginalEndDate string   `json:"original_end_date,omitempty" format:"date"`
	Markets         []string `json:"markets,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type Task struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	Title             string            `json:"title"`
	Status            string            `json:"status" enum:"Planning,InProgress,Completed,Delayed"`
	AssigneeID        *string           `json:"assignee_id,omitempty"`
	EstimateHours     int               `json:"estimate_hours"`
	ActualHours       int               `json:"actual_hours"`
	StartDate         string            `json:"start_date" format:"date"`
	EndDate           string            `json:"end_date" format:"date"`
	PredecessorID     *string           `json:"predecessor_id,omitempty"`
	GatewayDependency *string           `json:"gateway_dependency,omitempty"`
	IsMarketSpecific  bool              `json:"is_market_specific"`
	MarketStatus      map[string]string `json:"market_status,omitempty"`
	IsRework          bool              `json:"is_rework"`
	GatewaySource     *string           `json:"gateway_source,omitempty"`
	LinkedInitiative  *string           `json:"linked_initiative_id,omitempty"`
	CreatedAt         string            `json:"created_at" format:"date-time"`
	UpdatedAt         string            `json:"updated_at" format:"date-time"`
}

type Resource struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        string       `json:"role,omitempty"`
	Team        string       `json:"team"`
	OrgID       string       `json:"org_id"`
	Capacity    int          `json:"capacity"`
	Leave       int          `json:"leave"`
	Allocations []Allocation `json:"allocations,omitempty"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
}

// Allocation is the percentage of a resource's capacity committed to one org.
// A resource has one primary allocation and zero or more secondary ones; the
// percentages across orgs must never sum past 100.
type Allocation struct {
	OrgID     string `json:"org_id"`
	Percent   int    `json:"percent"`
	IsPrimary bool   `json:"is_primary"`
}

type Gateway struct {
	ID           string           `json:"id"`
	ProjectID    string           `json:"project_id"`
	Market       string           `json:"market"`
	Name         string           `json:"name"`
	Status       string           `json:"status" enum:"Pending,Received,Late"`
	ExpectedDate string           `json:"expected_date" format:"date"`
	ReceivedDate *string          `json:"received_date,omitempty" format:"date"`
	Versions     []GatewayVersion `json:"versions,omitempty"`
}

type GatewayVersion struct {
	Version  int    `json:"version"`
	Status   string `json:"status" enum:"Pending,Received,Late"`
	Date     string `json:"date" format:"date"`
	Notes    string `json:"notes,omitempty"`
	IsOnTime bool   `json:"is_on_time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// AssignmentResult is the report produced by one auto-assign pass.
type AssignmentResult struct {
	Assignments               []TaskAssignment           `json:"assignments"`
	Gaps                      []AssignmentGap            `json:"gaps"`
	SharedAssignments         []SharedAssignment         `json:"shared_assignments"`
	CrossPortfolioSuggestions []CrossPortfolioSuggestion `json:"cross_portfolio_suggestions"`
	Summary                   AssignmentSummary          `json:"summary"`
}

type TaskAssignment struct {
	TaskID       string `json:"task_id"`
	TaskTitle    string `json:"task_title"`
	ResourceID   string `json:"resource_id"`
	ResourceName string `json:"resource_name"`
	Estimate     int    `json:"estimate"`
}

// SharedAssignment is a committed assignment to a resource whose primary
// portfolio is another org.
type SharedAssignment struct {
	TaskID             string `json:"task_id"`
	TaskTitle          string `json:"task_title"`
	ProjectName        string `json:"project_name"`
	RequiredTeam       string `json:"required_team"`
	Estimate           int    `json:"estimate"`
	ResourceID         string `json:"resource_id"`
	ResourceName       string `json:"resource_name"`
	PrimaryPortfolioID string `json:"primary_portfolio_id"`
	TargetPortfolioID  string `json:"target_portfolio_id"`
	CurrentAllocation  int    `json:"current_allocation"`
	Reason             string `json:"reason"`
}

// CrossPortfolioSuggestion proposes, without committing anything, resources
// from other portfolios that could be partially reallocated to cover a gap.
type CrossPortfolioSuggestion struct {
	TaskID       string                  `json:"task_id"`
	TaskTitle    string                  `json:"task_title"`
	ProjectName  string                  `json:"project_name"`
	RequiredTeam string                  `json:"required_team"`
	Estimate     int                     `json:"estimate"`
	Candidates   []ReallocationCandidate `json:"candidates"`
}

type ReallocationCandidate struct {
	ResourceID        string `json:"resource_id"`
	Name              string `json:"name"`
	CurrentAllocation int    `json:"current_allocation"`
	AvailableHours    int    `json:"available_hours"`
	PortfolioID       string `json:"portfolio_id"`
}

type AssignmentGap struct {
	TaskID                  string `json:"task_id"`
	TaskTitle               string `json:"task_title"`
	ProjectName             string `json:"project_name"`
	RequiredTeam            string `json:"required_team"`
	Estimate                int    `json:"estimate"`
	Reason                  string `json:"reason"`
	HasCrossPortfolioOption bool   `json:"has_cross_portfolio_option"`
}

type AssignmentSummary struct {
	Assigned            int `json:"assigned"`
	Unassigned          int `json:"unassigned"`
	UsedSharedResources int `json:"used_shared_resources"`
	CanReallocate       int `json:"can_reallocate"`
}
