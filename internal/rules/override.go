package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// RuleOverride changes the enabled state or flag of a named rule at runtime
type RuleOverride struct {
	ID          string          `json:"id"`
	RuleName    string          `json:"rule_name"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Flag        *model.Severity `json:"flag,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Description string          `json:"description,omitempty"`
}

// RuleSummary describes one loaded rule for API and CLI listings
type RuleSummary struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Category    model.Category     `json:"category"`
	ChangeKinds []model.ChangeKind `json:"change_kinds,omitempty"`
	Platforms   []model.Platform   `json:"platforms,omitempty"`
	Flag        model.Severity     `json:"flag"`
	Clauses     int                `json:"clauses"`
}

// RuleSummaryResponse represents the response for GET /rules
type RuleSummaryResponse struct {
	Source    string         `json:"source"`
	Version   int64          `json:"version"`
	Rules     []RuleSummary  `json:"rules"`
	Overrides []RuleOverride `json:"overrides"`
}

// Summarize lists the rules of a set
func Summarize(set *RuleSet) []RuleSummary {
	if set == nil {
		return []RuleSummary{}
	}
	summaries := make([]RuleSummary, 0, len(set.Rules))
	for _, rule := range set.Rules {
		summaries = append(summaries, RuleSummary{
			Name:        rule.Name,
			Description: rule.Description,
			Category:    rule.Category,
			ChangeKinds: rule.ChangeKinds,
			Platforms:   rule.Platforms,
			Flag:        rule.Flag,
			Clauses:     len(rule.Clauses),
		})
	}
	return summaries
}

// OverrideManager manages rule overrides in memory
type OverrideManager struct {
	mu        sync.RWMutex
	overrides map[string]*RuleOverride
	sequence  int64
	logger    *slog.Logger
	metrics   MetricsUpdater
}

// MetricsUpdater interface for updating metrics
type MetricsUpdater interface {
	SetRuleOverrides(count float64)
}

// NewOverrideManager creates a new override manager
func NewOverrideManager(logger *slog.Logger) *OverrideManager {
	return &OverrideManager{
		overrides: make(map[string]*RuleOverride),
		logger:    logger,
	}
}

// NewOverrideManagerWithMetrics creates a new override manager with metrics
func NewOverrideManagerWithMetrics(logger *slog.Logger, metrics MetricsUpdater) *OverrideManager {
	om := NewOverrideManager(logger)
	om.metrics = metrics
	return om
}

// AddOverride adds a new rule override
func (om *OverrideManager) AddOverride(ruleName string, enabled *bool, flag *model.Severity, description string) (*RuleOverride, error) {
	if ruleName == "" {
		return nil, fmt.Errorf("rule_name is required")
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	om.sequence++
	now := time.Now()
	override := &RuleOverride{
		ID:          fmt.Sprintf("override-%d-%06d", now.UnixNano(), om.sequence),
		RuleName:    ruleName,
		Enabled:     enabled,
		Flag:        flag,
		CreatedAt:   now,
		UpdatedAt:   now,
		Description: description,
	}
	om.overrides[override.ID] = override

	om.logger.Info("Rule override added",
		"override_id", override.ID,
		"rule_name", ruleName,
		"enabled", enabled,
		"flag", flag)

	om.updateMetrics()
	return override, nil
}

// RemoveOverride removes a rule override by ID
func (om *OverrideManager) RemoveOverride(id string) error {
	om.mu.Lock()
	defer om.mu.Unlock()

	if _, exists := om.overrides[id]; !exists {
		return fmt.Errorf("override not found: %s", id)
	}
	delete(om.overrides, id)

	om.logger.Info("Rule override removed", "override_id", id)
	om.updateMetrics()
	return nil
}

// GetOverride retrieves a rule override by ID
func (om *OverrideManager) GetOverride(id string) (*RuleOverride, error) {
	om.mu.RLock()
	defer om.mu.RUnlock()

	override, exists := om.overrides[id]
	if !exists {
		return nil, fmt.Errorf("override not found: %s", id)
	}
	copied := *override
	return &copied, nil
}

// ListOverrides returns all overrides ordered by creation
func (om *OverrideManager) ListOverrides() []RuleOverride {
	om.mu.RLock()
	defer om.mu.RUnlock()

	list := make([]RuleOverride, 0, len(om.overrides))
	for _, override := range om.overrides {
		list = append(list, *override)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// ApplyOverrides returns the rule with overrides applied and whether it is enabled.
// The input rule is never modified; overrides are applied oldest first.
func (om *OverrideManager) ApplyOverrides(rule *Rule) (*Rule, bool) {
	if om == nil || rule == nil || rule.Name == "" {
		return rule, true
	}

	overrides := om.overridesFor(rule.Name)
	if len(overrides) == 0 {
		return rule, true
	}

	modified := *rule
	enabled := true
	for _, override := range overrides {
		if override.Enabled != nil {
			enabled = *override.Enabled
		}
		if override.Flag != nil {
			modified.Flag = *override.Flag
		}
	}
	return &modified, enabled
}

func (om *OverrideManager) overridesFor(ruleName string) []RuleOverride {
	om.mu.RLock()
	empty := len(om.overrides) == 0
	om.mu.RUnlock()
	if empty {
		return nil
	}

	var matched []RuleOverride
	for _, override := range om.ListOverrides() {
		if override.RuleName == ruleName {
			matched = append(matched, override)
		}
	}
	return matched
}

// ClearOverrides removes all overrides
func (om *OverrideManager) ClearOverrides() {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.overrides = make(map[string]*RuleOverride)
	om.logger.Info("All rule overrides cleared")
	om.updateMetrics()
}

// AddOverrideFromJSON creates an override from JSON data
func (om *OverrideManager) AddOverrideFromJSON(data []byte) (*RuleOverride, error) {
	var request struct {
		RuleName    string          `json:"rule_name"`
		Enabled     *bool           `json:"enabled,omitempty"`
		Flag        *model.Severity `json:"flag,omitempty"`
		Description string          `json:"description,omitempty"`
	}

	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse override request: %w", err)
	}

	return om.AddOverride(request.RuleName, request.Enabled, request.Flag, request.Description)
}

// updateMetrics must be called with om.mu held
func (om *OverrideManager) updateMetrics() {
	if om.metrics != nil {
		om.metrics.SetRuleOverrides(float64(len(om.overrides)))
	}
}
