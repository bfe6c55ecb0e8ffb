package rules

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

type gaugeRecorder struct {
	last float64
}

func (g *gaugeRecorder) SetRuleOverrides(count float64) { g.last = count }

func boolPtr(b bool) *bool { return &b }

func severityPtr(s model.Severity) *model.Severity { return &s }

func TestOverrideManager_AddOverride(t *testing.T) {
	om := NewOverrideManager(slog.Default())

	tests := []struct {
		name        string
		ruleName    string
		enabled     *bool
		flag        *model.Severity
		description string
		expectError bool
	}{
		{
			name:        "valid override with all fields",
			ruleName:    "SetUID Binary",
			enabled:     boolPtr(false),
			flag:        severityPtr(model.SeverityFatal),
			description: "Test override",
		},
		{
			name:        "valid override with minimal fields",
			ruleName:    "Run Key Modified",
			description: "Minimal override",
		},
		{
			name:        "missing rule name",
			ruleName:    "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override, err := om.AddOverride(tt.ruleName, tt.enabled, tt.flag, tt.description)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, override)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, override.ID)
			assert.Equal(t, tt.ruleName, override.RuleName)
			assert.Equal(t, tt.enabled, override.Enabled)
			assert.Equal(t, tt.flag, override.Flag)
			assert.False(t, override.CreatedAt.IsZero())
		})
	}

	assert.Len(t, om.ListOverrides(), 2)
}

func TestOverrideManager_RemoveAndGet(t *testing.T) {
	metrics := &gaugeRecorder{}
	om := NewOverrideManagerWithMetrics(slog.Default(), metrics)

	override, err := om.AddOverride("rule", boolPtr(false), nil, "")
	require.NoError(t, err)
	assert.Equal(t, float64(1), metrics.last)

	got, err := om.GetOverride(override.ID)
	require.NoError(t, err)
	assert.Equal(t, override.ID, got.ID)

	got.RuleName = "mutated"
	again, err := om.GetOverride(override.ID)
	require.NoError(t, err)
	assert.Equal(t, "rule", again.RuleName, "GetOverride returns a copy")

	require.NoError(t, om.RemoveOverride(override.ID))
	assert.Equal(t, float64(0), metrics.last)

	assert.Error(t, om.RemoveOverride(override.ID))
	_, err = om.GetOverride(override.ID)
	assert.Error(t, err)
}

func TestOverrideManager_ApplyOverrides(t *testing.T) {
	rule := &Rule{Name: "target", Category: model.CategoryFile, Flag: model.SeverityWarning}
	other := &Rule{Name: "other", Category: model.CategoryFile, Flag: model.SeverityWarning}

	om := NewOverrideManager(slog.Default())

	applied, enabled := om.ApplyOverrides(rule)
	assert.True(t, enabled)
	assert.Same(t, rule, applied, "no overrides returns the rule unchanged")

	_, err := om.AddOverride("target", nil, severityPtr(model.SeverityFatal), "escalate")
	require.NoError(t, err)

	applied, enabled = om.ApplyOverrides(rule)
	assert.True(t, enabled)
	assert.Equal(t, model.SeverityFatal, applied.Flag)
	assert.Equal(t, model.SeverityWarning, rule.Flag, "input rule is not modified")

	applied, enabled = om.ApplyOverrides(other)
	assert.True(t, enabled)
	assert.Equal(t, model.SeverityWarning, applied.Flag)

	_, err = om.AddOverride("target", boolPtr(false), nil, "silence")
	require.NoError(t, err)
	_, enabled = om.ApplyOverrides(rule)
	assert.False(t, enabled)

	_, err = om.AddOverride("target", boolPtr(true), nil, "re-enable")
	require.NoError(t, err)
	applied, enabled = om.ApplyOverrides(rule)
	assert.True(t, enabled, "later overrides win")
	assert.Equal(t, model.SeverityFatal, applied.Flag)

	unnamed := &Rule{Category: model.CategoryFile}
	_, enabled = om.ApplyOverrides(unnamed)
	assert.True(t, enabled)

	var nilManager *OverrideManager
	applied, enabled = nilManager.ApplyOverrides(rule)
	assert.True(t, enabled)
	assert.Same(t, rule, applied)

	om.ClearOverrides()
	assert.Empty(t, om.ListOverrides())
}

func TestOverrideManager_AddOverrideFromJSON(t *testing.T) {
	om := NewOverrideManager(slog.Default())

	override, err := om.AddOverrideFromJSON([]byte(`{"rule_name": "target", "enabled": false, "flag": "ERROR"}`))
	require.NoError(t, err)
	require.NotNil(t, override.Flag)
	assert.Equal(t, model.SeverityError, *override.Flag)
	require.NotNil(t, override.Enabled)
	assert.False(t, *override.Enabled)

	override, err = om.AddOverrideFromJSON([]byte(`{"rule_name": "target", "flag": 2}`))
	require.NoError(t, err)
	assert.Equal(t, model.SeverityDebug, *override.Flag)

	_, err = om.AddOverrideFromJSON([]byte(`{"enabled": true}`))
	assert.Error(t, err)

	_, err = om.AddOverrideFromJSON([]byte(`not json`))
	assert.Error(t, err)
}
