package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds the system-deployed global rules. It is immutable after
// load; tenants change behavior through overrides and custom rules, never by
// editing the catalog.
type Catalog struct {
	rules []RuleDefinition
	byID  map[string]RuleDefinition
}

// catalogDocument groups rules by category, which keeps the YAML reviewable.
// The category field on each rule is authoritative; the section key is
// organizational only.
type catalogDocument struct {
	DataQualityRules  []catalogRule `yaml:"data_quality_rules"`
	SalesHygieneRules []catalogRule `yaml:"sales_hygiene_rules"`
	ForecastingRules  []catalogRule `yaml:"forecasting_rules"`
	ProgressionRules  []catalogRule `yaml:"progression_rules"`
	EngagementRules   []catalogRule `yaml:"engagement_rules"`
	ComplianceRules   []catalogRule `yaml:"compliance_rules"`
}

type catalogRule struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	Category         Category         `yaml:"category"`
	Severity         Severity         `yaml:"severity"`
	Description      string           `yaml:"description"`
	Condition        *Condition       `yaml:"condition"`
	Message          string           `yaml:"message"`
	Remediation      string           `yaml:"remediation"`
	RemediationOwner RemediationOwner `yaml:"remediation_owner"`
	Automatable      bool             `yaml:"automatable"`
	ApplicableStages []string         `yaml:"applicable_stages"`
	Enabled          *bool            `yaml:"enabled"`
}

// DefaultCatalog loads the embedded rule set.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalogFile loads a catalog from disk, for deployments that ship their
// own rule set instead of the embedded default.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var defs []RuleDefinition
	for _, section := range [][]catalogRule{
		doc.DataQualityRules,
		doc.SalesHygieneRules,
		doc.ForecastingRules,
		doc.ProgressionRules,
		doc.EngagementRules,
		doc.ComplianceRules,
	} {
		for _, entry := range section {
			defs = append(defs, entry.toDefinition())
		}
	}
	return NewCatalog(defs)
}

// NewCatalog validates and indexes a rule list. Rule ids must be unique and
// every condition must be well formed; a broken catalog is a deployment bug
// and fails loudly here rather than silently at evaluation time.
func NewCatalog(defs []RuleDefinition) (*Catalog, error) {
	byID := make(map[string]RuleDefinition, len(defs))
	for _, def := range defs {
		if def.RuleID == "" {
			return nil, fmt.Errorf("catalog rule %q has no id", def.Name)
		}
		if _, dup := byID[def.RuleID]; dup {
			return nil, fmt.Errorf("catalog rule id %q is duplicated", def.RuleID)
		}
		if !def.Category.Valid() {
			return nil, fmt.Errorf("catalog rule %q has unknown category %q", def.RuleID, def.Category)
		}
		if !def.Severity.Valid() {
			return nil, fmt.Errorf("catalog rule %q has unknown severity %q", def.RuleID, def.Severity)
		}
		if err := def.Condition.Validate(); err != nil {
			return nil, fmt.Errorf("catalog rule %q: %w", def.RuleID, err)
		}
		byID[def.RuleID] = def
	}

	sorted := make([]RuleDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RuleID < sorted[j].RuleID })

	return &Catalog{rules: sorted, byID: byID}, nil
}

// Rules returns a copy of the rule list, ordered by rule id.
func (c *Catalog) Rules() []RuleDefinition {
	out := make([]RuleDefinition, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Catalog) Get(ruleID string) (RuleDefinition, bool) {
	def, ok := c.byID[ruleID]
	return def, ok
}

func (c *Catalog) Len() int {
	return len(c.rules)
}

func (r catalogRule) toDefinition() RuleDefinition {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return RuleDefinition{
		RuleID:           r.ID,
		Name:             r.Name,
		Category:         r.Category,
		Severity:         r.Severity,
		Description:      r.Description,
		Condition:        r.Condition,
		Message:          r.Message,
		Remediation:      r.Remediation,
		RemediationOwner: r.RemediationOwner,
		Automatable:      r.Automatable,
		ApplicableStages: r.ApplicableStages,
		Enabled:          enabled,
	}
}
