// Package seed loads a small demo portfolio so the CLI and API have data to
// play with. Randomness comes from the caller, so fixtures are reproducible
// under a fixed source.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"planline/internal/engine"
)

type person struct {
	name string
	team string
	role string
}

var demoPeople = []person{
	{"Anna Keller", "Website", "Frontend Engineer"},
	{"Marc Dubois", "Website", "Fullstack Engineer"},
	{"Sofia Rossi", "Configurator", "3D Artist"},
	{"Jonas Weber", "Configurator", "Pricing Analyst"},
	{"Emily Clarke", "Asset Production", "Producer"},
	{"Kenji Sato", "Asset Production", "CGI Lead"},
}

type demoProject struct {
	name    string
	typ     string
	scale   string
	markets []string
}

var demoProjects = []demoProject{
	{"Model Y Launch Site", "Website", "Large", []string{"Global", "US", "Germany"}},
	{"Spring Configurator Refresh", "Configurator", "Medium", []string{"Global", "UK"}},
	{"Q4 Campaign Assets", "Asset Production", "Small", []string{"Global"}},
}

// Load creates one org, a resource pool, and a few template projects. The
// org id doubles as the portfolio name prefix.
func Load(ctx context.Context, e engine.Engine, orgID, actorID string, rng *rand.Rand) error {
	start := e.Now().UTC()
	for i, p := range demoPeople {
		capacity := 1400 + rng.Intn(5)*100
		leave := rng.Intn(3) * 40
		_, err := e.AddResource(ctx, engine.ResourceCreateOptions{
			ID:       fmt.Sprintf("%s-res-%d", orgID, i+1),
			Name:     p.name,
			Role:     p.role,
			Team:     p.team,
			OrgID:    orgID,
			Capacity: capacity,
			Leave:    leave,
			Percent:  100,
			ActorID:  actorID,
		})
		if err != nil {
			return fmt.Errorf("seed resource %s: %w", p.name, err)
		}
	}
	for i, dp := range demoProjects {
		projStart := start.AddDate(0, 0, rng.Intn(14))
		projEnd := projStart.AddDate(0, 2+rng.Intn(3), 0)
		_, _, _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:        fmt.Sprintf("%s-proj-%d", orgID, i+1),
			OrgID:     orgID,
			Name:      dp.name,
			Type:      dp.typ,
			Scale:     dp.scale,
			StartDate: projStart.Format("2006-01-02"),
			EndDate:   projEnd.Format("2006-01-02"),
			Markets:   dp.markets,
			ActorID:   actorID,
		})
		if err != nil {
			return fmt.Errorf("seed project %s: %w", dp.name, err)
		}
	}
	return nil
}

// Clock returns a deterministic now() for seeded demos.
func Clock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
