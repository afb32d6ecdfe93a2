package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models planline.yml: the template catalog (task and gateway
// templates per team and scale), market list, rework policy, and webhook
// targets for event fan-out.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Markets   []string                             `yaml:"markets"`
	Templates struct {
		Tasks    map[string]map[string][]TaskTemplate    `yaml:"tasks"`
		Gateways map[string]map[string][]GatewayTemplate `yaml:"gateways"`
	} `yaml:"templates"`
	Rework   ReworkPolicy    `yaml:"rework"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// TaskTemplate is one entry in a team x scale task template.
type TaskTemplate struct {
	Title             string `yaml:"title"`
	Estimate          int    `yaml:"estimate"`
	GatewayDependency string `yaml:"gateway_dependency,omitempty"`
}

// GatewayTemplate declares an input gateway expected offset_weeks before the
// project's launch date.
type GatewayTemplate struct {
	Name        string `yaml:"name"`
	OffsetWeeks int    `yaml:"offset_weeks"`
}

// ReworkPolicy controls the corrective tasks generated when a gateway slips
// or is redelivered.
type ReworkPolicy struct {
	EstimateFraction float64 `yaml:"estimate_fraction"`
	WindowDays       int     `yaml:"window_days"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pl org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if len(c.Templates.Tasks) == 0 {
		return fmt.Errorf("config.templates.tasks is required")
	}
	for team, scales := range c.Templates.Tasks {
		if team == "" {
			return fmt.Errorf("config.templates.tasks contains empty team name")
		}
		for scale, entries := range scales {
			if scale == "" {
				return fmt.Errorf("team %s has empty scale name", team)
			}
			for i, t := range entries {
				if t.Title == "" {
					return fmt.Errorf("task template %s/%s entry %d has empty title", team, scale, i)
				}
				if t.Estimate < 0 {
					return fmt.Errorf("task template %s (%s/%s) has negative estimate", t.Title, team, scale)
				}
				if t.GatewayDependency != "" {
					if !gatewayDeclared(c.Templates.Gateways[team][scale], t.GatewayDependency) {
						return fmt.Errorf("task template %s (%s/%s) depends on undeclared gateway %s", t.Title, team, scale, t.GatewayDependency)
					}
				}
			}
		}
	}
	for team, scales := range c.Templates.Gateways {
		for scale, entries := range scales {
			for i, g := range entries {
				if g.Name == "" {
					return fmt.Errorf("gateway template %s/%s entry %d has empty name", team, scale, i)
				}
				if g.OffsetWeeks < 0 {
					return fmt.Errorf("gateway template %s (%s/%s) has negative offset", g.Name, team, scale)
				}
			}
		}
	}
	if c.Rework.EstimateFraction < 0 || c.Rework.EstimateFraction > 1 {
		return fmt.Errorf("config.rework.estimate_fraction must be within [0,1]")
	}
	if c.Rework.WindowDays < 0 {
		return fmt.Errorf("config.rework.window_days must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

func gatewayDeclared(entries []GatewayTemplate, name string) bool {
	for _, g := range entries {
		if g.Name == name {
			return true
		}
	}
	return false
}

// TaskTemplateFor returns the task template for a team and scale.
func (c *Config) TaskTemplateFor(team, scale string) ([]TaskTemplate, bool) {
	scales, ok := c.Templates.Tasks[team]
	if !ok {
		return nil, false
	}
	entries, ok := scales[scale]
	return entries, ok && len(entries) > 0
}

// GatewayTemplateFor returns the gateway template for a team and scale.
func (c *Config) GatewayTemplateFor(team, scale string) []GatewayTemplate {
	if scales, ok := c.Templates.Gateways[team]; ok {
		if entries, ok := scales[scale]; ok && len(entries) > 0 {
			return entries
		}
	}
	// Fallback mirrors the launch-plan generator: every project gets at
	// least one regulatory gateway two weeks before launch.
	return []GatewayTemplate{{Name: "Regulatory Approval", OffsetWeeks: 2}}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: Default Portfolio

markets: [Global, US, UK, Germany, France, Japan]

templates:
  tasks:
    Website:
      Small:
        - { title: Landing Page Design, estimate: 20, gateway_dependency: Design Sign-off }
        - { title: Copywriting, estimate: 10, gateway_dependency: Content Approval }
        - { title: Frontend Build, estimate: 40 }
        - { title: Launch QA, estimate: 10 }
      Medium:
        - { title: UI Design, estimate: 60, gateway_dependency: Design Sign-off }
        - { title: Frontend Build, estimate: 120 }
        - { title: CMS Integration, estimate: 80, gateway_dependency: Content Approval }
        - { title: QA and Hardening, estimate: 40 }
      Large:
        - { title: Global Design System, estimate: 120, gateway_dependency: Design Sign-off }
        - { title: Frontend Build, estimate: 240 }
        - { title: Localization, estimate: 80 }
        - { title: Security Hardening, estimate: 60, gateway_dependency: Security Review }
    Configurator:
      Small:
        - { title: 3D Model Optimization, estimate: 30, gateway_dependency: 3D Asset Freeze }
        - { title: Option Logic, estimate: 40 }
      Medium:
        - { title: 3D Asset Prep, estimate: 80, gateway_dependency: 3D Asset Freeze }
        - { title: Pricing Rules, estimate: 60, gateway_dependency: Pricing Logic Approval }
        - { title: UAT Fixes, estimate: 40 }
      Large:
        - { title: High-Poly Asset Pipeline, estimate: 160, gateway_dependency: 3D Asset Freeze }
        - { title: Pricing Rules, estimate: 80, gateway_dependency: Pricing Logic Approval }
        - { title: Performance Tuning, estimate: 60 }
    Asset Production:
      Small:
        - { title: Teaser Images, estimate: 20, gateway_dependency: Creative Brief }
      Medium:
        - { title: CGI Stills, estimate: 80, gateway_dependency: Creative Brief }
        - { title: Retouching, estimate: 40 }
      Large:
        - { title: TVC Production, estimate: 200, gateway_dependency: Creative Brief }
        - { title: Legal Clearance Pack, estimate: 40 }

  gateways:
    Website:
      Small:
        - { name: Design Sign-off, offset_weeks: 2 }
        - { name: Content Approval, offset_weeks: 1 }
      Medium:
        - { name: Design Sign-off, offset_weeks: 4 }
        - { name: Content Approval, offset_weeks: 2 }
        - { name: QA Sign-off, offset_weeks: 1 }
      Large:
        - { name: Design Sign-off, offset_weeks: 4 }
        - { name: Security Review, offset_weeks: 2 }
    Configurator:
      Small:
        - { name: 3D Asset Freeze, offset_weeks: 2 }
      Medium:
        - { name: 3D Asset Freeze, offset_weeks: 3 }
        - { name: Pricing Logic Approval, offset_weeks: 2 }
        - { name: UAT Sign-off, offset_weeks: 1 }
      Large:
        - { name: 3D Asset Freeze, offset_weeks: 4 }
        - { name: Pricing Logic Approval, offset_weeks: 3 }
        - { name: Performance Test, offset_weeks: 2 }
    Asset Production:
      Small:
        - { name: Creative Brief, offset_weeks: 1 }
      Medium:
        - { name: Creative Brief, offset_weeks: 2 }
        - { name: Low-Res Review, offset_weeks: 1 }
      Large:
        - { name: Creative Brief, offset_weeks: 3 }
        - { name: Low-Res Review, offset_weeks: 2 }
        - { name: Legal Approval, offset_weeks: 1 }

rework:
  estimate_fraction: 0.3
  window_days: 5
`
