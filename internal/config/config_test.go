package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("org-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Org.ID != "org-1" {
		t.Fatalf("org id not applied: %s", cfg.Org.ID)
	}
	entries, ok := cfg.TaskTemplateFor("Website", "Medium")
	if !ok || len(entries) != 4 {
		t.Fatalf("Website/Medium template missing: ok=%v len=%d", ok, len(entries))
	}
	if _, ok := cfg.TaskTemplateFor("Website", "Gigantic"); ok {
		t.Fatalf("unknown scale should not resolve")
	}
	if _, ok := cfg.TaskTemplateFor("Mobile App", "Small"); ok {
		t.Fatalf("unknown team should not resolve")
	}
}

func TestGatewayTemplateFallback(t *testing.T) {
	cfg := Default("org-1")
	entries := cfg.GatewayTemplateFor("Mobile App", "Small")
	if len(entries) != 1 || entries[0].Name != "Regulatory Approval" || entries[0].OffsetWeeks != 2 {
		t.Fatalf("expected regulatory fallback, got %+v", entries)
	}
}

func TestFromYAMLRejectsMissingOrgID(t *testing.T) {
	_, err := FromYAML([]byte(`
org:
  name: Nameless
templates:
  tasks:
    Website:
      Small:
        - { title: Build, estimate: 10 }
`))
	if err == nil || !strings.Contains(err.Error(), "org.id") {
		t.Fatalf("expected org.id error, got %v", err)
	}
}

func TestFromYAMLRejectsUndeclaredGatewayDependency(t *testing.T) {
	_, err := FromYAML([]byte(`
org:
  id: org-1
templates:
  tasks:
    Website:
      Small:
        - { title: Build, estimate: 10, gateway_dependency: Phantom Gate }
  gateways:
    Website:
      Small:
        - { name: Design Sign-off, offset_weeks: 1 }
`))
	if err == nil || !strings.Contains(err.Error(), "undeclared gateway") {
		t.Fatalf("expected undeclared gateway error, got %v", err)
	}
}

func TestFromYAMLRejectsReworkFractionOutOfRange(t *testing.T) {
	_, err := FromYAML([]byte(`
org:
  id: org-1
templates:
  tasks:
    Website:
      Small:
        - { title: Build, estimate: 10 }
rework:
  estimate_fraction: 1.5
`))
	if err == nil || !strings.Contains(err.Error(), "estimate_fraction") {
		t.Fatalf("expected rework fraction error, got %v", err)
	}
}

func TestValidateRejectsEmptyWebhookURL(t *testing.T) {
	cfg := Default("org-1")
	cfg.Webhooks = append(cfg.Webhooks, WebhookConfig{})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "webhook") {
		t.Fatalf("expected webhook url error, got %v", err)
	}
}
