package rules

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/telemetry"
)

var (
	// ErrNilRule is returned when Apply is called without a rule
	ErrNilRule = errors.New("rule is nil")
	// ErrNilRecord is returned when Apply is called without a change record
	ErrNilRecord = errors.New("change record is nil")
	// ErrUnknownField is reported when a clause names a field missing from the category schema
	ErrUnknownField = errors.New("unknown field")
)

// DefaultRegexCacheSize is the number of compiled patterns kept by an evaluator
const DefaultRegexCacheSize = 256

// Evaluator applies a single rule's clauses to a change record
type Evaluator struct {
	operators map[Operation]Operator
	logger    *slog.Logger
	sink      telemetry.Sink
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	regexCacheSize int
	sink           telemetry.Sink
}

// WithRegexCacheSize bounds the compiled pattern cache; zero disables caching
func WithRegexCacheSize(size int) EvaluatorOption {
	return func(c *evaluatorConfig) {
		c.regexCacheSize = size
	}
}

// WithSink routes diagnostic events to sink
func WithSink(sink telemetry.Sink) EvaluatorOption {
	return func(c *evaluatorConfig) {
		c.sink = sink
	}
}

// NewEvaluator creates a new clause evaluator
func NewEvaluator(logger *slog.Logger, opts ...EvaluatorOption) (*Evaluator, error) {
	cfg := evaluatorConfig{
		regexCacheSize: DefaultRegexCacheSize,
		sink:           telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	operators, err := newOperators(cfg.regexCacheSize)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		operators: operators,
		logger:    logger,
		sink:      cfg.sink,
	}, nil
}

// Apply evaluates every clause of rule against record. When all clauses pass the
// rule is appended to record.MatchedRules and true is returned. Evaluation
// failures are reported to the sink and yield false; only a nil rule or record
// produces an error.
func (e *Evaluator) Apply(rule *Rule, record *model.ChangeRecord) (bool, error) {
	if rule == nil {
		return false, ErrNilRule
	}
	if record == nil {
		return false, ErrNilRecord
	}

	for i := range rule.Clauses {
		clause := &rule.Clauses[i]

		passed, err := e.applyClause(clause, record)
		if err != nil {
			if errors.Is(err, ErrUnknownField) || errors.Is(err, ErrUnknownOperation) {
				e.logger.Debug("Clause skipped",
					"rule", rule.Name,
					"field", clause.Field,
					"operation", clause.Operation,
					"error", err)
				return false, nil
			}

			e.logger.Debug("Error applying rule",
				"rule", rule.Name,
				"category", record.Category,
				"identity", record.Identity,
				"error", err)
			e.sink.TrackEvent(telemetry.EventApplyOverall, map[string]string{
				"Exception Type": telemetry.ExceptionType(err),
				"Rule":           rule.Name,
			})
			return false, nil
		}

		if !passed {
			return false, nil
		}
	}

	record.MatchedRules = append(record.MatchedRules, rule.Matched())
	return true, nil
}

// applyClause captures the clause's field values and runs its operator.
// Panics raised while evaluating are returned as errors.
func (e *Evaluator) applyClause(clause *Clause, record *model.ChangeRecord) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("clause %s %s: %w", clause.Field, clause.Operation, &panicError{value: r})
		}
	}()

	field, ok := LookupField(record.Category, clause.Field)
	if !ok {
		return false, fmt.Errorf("%w %q for category %s", ErrUnknownField, clause.Field, record.Category)
	}

	op, ok := e.operators[clause.Operation]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownOperation, clause.Operation)
	}

	c := e.capture(field, record)
	return op.Evaluate(c, clause)
}

// capture pulls values from the current snapshot for CREATED and MODIFIED
// records, then from the previous snapshot for DELETED and MODIFIED records
func (e *Evaluator) capture(field Field, record *model.ChangeRecord) captured {
	var c captured

	if record.ChangeKind == model.ChangeCreated || record.ChangeKind == model.ChangeModified {
		e.captureSide(&c, field, record.Current, record, telemetry.EventApplyCreatedModified)
	}
	if record.ChangeKind == model.ChangeDeleted || record.ChangeKind == model.ChangeModified {
		e.captureSide(&c, field, record.Previous, record, telemetry.EventApplyDeletedModified)
	}

	return c
}

func (e *Evaluator) captureSide(c *captured, field Field, entity model.Entity, record *model.ChangeRecord, event string) {
	defer func() {
		if r := recover(); r != nil {
			e.reportCaptureFailure(field, record, event, &panicError{value: r})
		}
	}()

	value, err := field.Get(entity)
	if err != nil {
		e.reportCaptureFailure(field, record, event, err)
		return
	}

	switch value.Shape {
	case ShapeStringList:
		c.values = append(c.values, value.List...)
	case ShapeStringMap:
		// a later snapshot's map replaces the earlier one
		if value.Pairs != nil {
			c.pairs = value.Pairs
		}
	default:
		if value.Scalar != "" {
			c.values = append(c.values, value.Scalar)
		}
	}
}

func (e *Evaluator) reportCaptureFailure(field Field, record *model.ChangeRecord, event string, err error) {
	e.logger.Debug("Error fetching field",
		"field", field.Name,
		"category", record.Category,
		"identity", record.Identity,
		"error", err)
	e.sink.TrackEvent(event, map[string]string{
		"Exception Type": telemetry.ExceptionType(err),
	})
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
