// Package analyzer classifies change records by evaluating them against the
// active rule set and pooling the outcomes into a single severity.
package analyzer

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sgerhart/aegisflux/analyzer/internal/metrics"
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/rules"
	"github.com/sgerhart/aegisflux/analyzer/internal/telemetry"
)

// DefaultSeverities maps every category to the outcome used when no candidate
// rule matches
func DefaultSeverities() map[model.Category]model.Severity {
	defaults := make(map[model.Category]model.Severity, len(model.Categories)+1)
	for _, c := range model.Categories {
		defaults[c] = model.SeverityInformation
	}
	defaults[model.CategoryUnknown] = model.SeverityInformation
	return defaults
}

// Analyzer is the classification engine. It is safe for concurrent use; the
// rule set is swapped atomically on reload.
type Analyzer struct {
	ruleSet   atomic.Pointer[rules.RuleSet]
	matcher   *rules.Matcher
	evaluator *rules.Evaluator
	overrides *rules.OverrideManager
	defaults  map[model.Category]model.Severity
	metrics   *metrics.Metrics
	sink      telemetry.Sink
	logger    *slog.Logger
}

// Option configures an Analyzer
type Option func(*options)

type options struct {
	defaults       map[model.Category]model.Severity
	overrides      *rules.OverrideManager
	metrics        *metrics.Metrics
	sink           telemetry.Sink
	regexCacheSize int
}

// WithDefaults replaces the per-category default outcomes. Categories missing
// from defaults keep INFORMATION.
func WithDefaults(defaults map[model.Category]model.Severity) Option {
	return func(o *options) {
		for c, s := range defaults {
			o.defaults[c] = s
		}
	}
}

// WithOverrides applies runtime rule overrides during candidate selection
func WithOverrides(om *rules.OverrideManager) Option {
	return func(o *options) { o.overrides = om }
}

// WithMetrics records analysis metrics. The metrics also receive telemetry events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSink routes diagnostic events to sink
func WithSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithRegexCacheSize bounds the evaluator's compiled pattern cache
func WithRegexCacheSize(size int) Option {
	return func(o *options) { o.regexCacheSize = size }
}

// New creates an analyzer for platform with an empty rule set. Call Reload or
// Install to supply rules.
func New(platform model.Platform, logger *slog.Logger, opts ...Option) (*Analyzer, error) {
	o := options{
		defaults:       DefaultSeverities(),
		regexCacheSize: rules.DefaultRegexCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	sinks := telemetry.Multi{telemetry.NewLogSink(logger)}
	if o.metrics != nil {
		sinks = append(sinks, o.metrics)
	}
	if o.sink != nil {
		sinks = append(sinks, o.sink)
	}

	evaluator, err := rules.NewEvaluator(logger,
		rules.WithRegexCacheSize(o.regexCacheSize),
		rules.WithSink(sinks))
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		matcher:   rules.NewMatcher(platform),
		evaluator: evaluator,
		overrides: o.overrides,
		defaults:  o.defaults,
		metrics:   o.metrics,
		sink:      sinks,
		logger:    logger,
	}
	a.ruleSet.Store(rules.EmptyRuleSet(""))
	return a, nil
}

// Platform returns the platform used to filter rules
func (a *Analyzer) Platform() model.Platform {
	return a.matcher.Platform()
}

// RuleSet returns the active rule set. It must not be modified.
func (a *Analyzer) RuleSet() *rules.RuleSet {
	return a.ruleSet.Load()
}

// Overrides returns the override manager, which may be nil
func (a *Analyzer) Overrides() *rules.OverrideManager {
	return a.overrides
}

// Install makes set the active rule set. A nil set installs an empty one.
func (a *Analyzer) Install(set *rules.RuleSet) {
	if set == nil {
		set = rules.EmptyRuleSet("")
	}
	a.ruleSet.Store(set)
	a.metrics.SetRulesLoaded(float64(set.Len()))
}

// Reload loads rules from repo and installs them. When the load fails an
// empty rule set is installed, so every record gets its category default,
// and the error is returned for reporting only.
func (a *Analyzer) Reload(repo rules.Repository) error {
	set, err := repo.Load()
	if err != nil {
		a.LoadFailed(repo.Source(), err)
		return err
	}

	a.Install(set)
	return nil
}

// LoadFailed reports a failed load of source and installs an empty rule set.
// It is also the failure hook for hot reloads.
func (a *Analyzer) LoadFailed(source string, err error) {
	event := telemetry.EventRulesLoad
	if source == rules.EmbeddedSource {
		event = telemetry.EventEmbeddedRulesLoad
	}
	a.logger.Warn("Could not load analyses, continuing with no rules",
		"source", source,
		"error", err)
	a.sink.TrackEvent(event, map[string]string{
		"Exception Type": telemetry.ExceptionType(err),
	})
	a.metrics.IncrementRuleLoadFailures()
	a.Install(rules.EmptyRuleSet(source))
}

// DefaultFor returns the default outcome for category
func (a *Analyzer) DefaultFor(category model.Category) model.Severity {
	if s, ok := a.defaults[category]; ok {
		return s
	}
	return a.defaults[model.CategoryUnknown]
}

// Analyze returns the severity of record: the maximum over its candidate
// rules of the rule's flag when matched, or the category default otherwise.
// With no candidates the category default is returned. Matched rules are
// appended to record.MatchedRules.
func (a *Analyzer) Analyze(record *model.ChangeRecord) model.Severity {
	if record == nil {
		return a.DefaultFor(model.CategoryUnknown)
	}

	start := time.Now()
	severity := a.analyze(record)
	a.metrics.ObserveAnalysis(string(record.Category), severity.String(), time.Since(start))
	return severity
}

func (a *Analyzer) analyze(record *model.ChangeRecord) model.Severity {
	set := a.ruleSet.Load()
	fallback := a.DefaultFor(record.Category)

	candidates := a.matcher.CandidatesFor(record, set.Rules)
	if len(candidates) == 0 {
		return fallback
	}

	outcomes := make([]model.Severity, 0, len(candidates))
	for _, candidate := range candidates {
		rule, enabled := a.overrides.ApplyOverrides(candidate)
		if !enabled {
			continue
		}

		matched, err := a.evaluator.Apply(rule, record)
		if err != nil {
			a.logger.Error("Rule evaluation failed", "rule", rule.Name, "error", err)
			outcomes = append(outcomes, fallback)
			continue
		}
		if matched {
			a.metrics.IncrementRuleMatch(rule.Name)
			outcomes = append(outcomes, rule.Flag)
		} else {
			outcomes = append(outcomes, fallback)
		}
	}

	// every candidate disabled by an override
	if len(outcomes) == 0 {
		return fallback
	}
	return model.MaxSeverity(outcomes...)
}

// AnalyzeAll classifies a batch of records in order
func (a *Analyzer) AnalyzeAll(records []*model.ChangeRecord) []model.Severity {
	results := make([]model.Severity, len(records))
	for i, record := range records {
		results[i] = a.Analyze(record)
	}
	return results
}

// Classify analyzes record and packages the outcome for publication
func (a *Analyzer) Classify(record *model.ChangeRecord) model.Classification {
	severity := a.Analyze(record)

	result := model.Classification{
		ID:           uuid.New().String(),
		Category:     model.CategoryUnknown,
		ChangeKind:   model.ChangeUnknown,
		Severity:     severity,
		MatchedRules: []model.MatchedRule{},
		Platform:     a.Platform(),
		Timestamp:    time.Now().UTC(),
	}
	if record != nil {
		result.Identity = record.Identity
		result.Category = record.Category
		result.ChangeKind = record.ChangeKind
		if len(record.MatchedRules) > 0 {
			result.MatchedRules = append(result.MatchedRules, record.MatchedRules...)
		}
	}
	return result
}

// ClassifyAll classifies a batch of records in order
func (a *Analyzer) ClassifyAll(records []*model.ChangeRecord) []model.Classification {
	results := make([]model.Classification, 0, len(records))
	for _, record := range records {
		results = append(results, a.Classify(record))
	}
	return results
}
