package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.ObserveAnalysis("FILE", "ERROR", time.Millisecond)
	m.ObserveAnalysis("FILE", "ERROR", time.Millisecond)
	m.IncrementRuleMatch("SetUID Binary")
	m.SetRulesLoaded(15)
	m.IncrementRuleLoadFailures()
	m.SetRuleOverrides(2)
	m.SetNatsConnected(true)
	m.IncrementNatsPublishErrors()
	m.IncrementRecordsInvalid()
	m.TrackEvent("ApplyOverallException", map[string]string{"Rule": "x"})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsAnalyzed.WithLabelValues("FILE", "ERROR")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RuleMatches.WithLabelValues("SetUID Binary")))
	assert.Equal(t, float64(15), testutil.ToFloat64(m.RulesLoaded))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RuleLoadFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RuleOverrides))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NatsConnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NatsPublishErrs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsInvalid))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationErrors.WithLabelValues("ApplyOverallException")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AnalyzeDuration))

	m.SetNatsConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.NatsConnected))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAnalysis("FILE", "ERROR", time.Millisecond)
		m.IncrementRuleMatch("x")
		m.SetRulesLoaded(1)
		m.IncrementRuleLoadFailures()
		m.SetRuleOverrides(1)
		m.SetNatsConnected(true)
		m.IncrementNatsPublishErrors()
		m.IncrementRecordsInvalid()
		m.TrackEvent("x", nil)
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetRulesLoaded(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analyzer_rules_loaded 3")

	other := NewMetrics()
	assert.NotSame(t, m.Registry(), other.Registry(), "each instance has its own registry")
}
