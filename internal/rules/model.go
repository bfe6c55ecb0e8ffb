package rules

import (
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// Operation is the comparison a clause applies to the captured field values
type Operation string

const (
	OpEQ             Operation = "EQ"
	OpNEQ            Operation = "NEQ"
	OpContains       Operation = "CONTAINS"
	OpDoesNotContain Operation = "DOES_NOT_CONTAIN"
	OpGT             Operation = "GT"
	OpLT             Operation = "LT"
	OpRegex          Operation = "REGEX"
	OpWasModified    Operation = "WAS_MODIFIED"
	OpEndsWith       Operation = "ENDS_WITH"
	OpStartsWith     Operation = "STARTS_WITH"
)

// KeyValue is one entry of a map-shaped field or of a clause's dict data
type KeyValue struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Clause is a single field test inside a rule
type Clause struct {
	Field     string     `yaml:"field" json:"field"`
	Operation Operation  `yaml:"operation" json:"operation"`
	Data      []string   `yaml:"data,omitempty" json:"data,omitempty"`
	DictData  []KeyValue `yaml:"dict_data,omitempty" json:"dict_data,omitempty"`
}

// Rule flags a change record with Flag when every clause passes.
// A nil ChangeKinds or Platforms admits any value; an empty non-nil list admits none.
type Rule struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Category    model.Category     `yaml:"category" json:"category"`
	ChangeKinds []model.ChangeKind `yaml:"change_kinds,omitempty" json:"change_kinds,omitempty"`
	Platforms   []model.Platform   `yaml:"platforms,omitempty" json:"platforms,omitempty"`
	Flag        model.Severity     `yaml:"flag" json:"flag"`
	Clauses     []Clause           `yaml:"clauses,omitempty" json:"clauses,omitempty"`
}

// RuleFile is the on-disk document shape
type RuleFile struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// RuleSet is an ordered, immutable collection of rules
type RuleSet struct {
	Rules   []Rule
	Source  string
	Version int64 // Timestamp when the set was loaded
}

// EmptyRuleSet returns a rule set with no rules
func EmptyRuleSet(source string) *RuleSet {
	return &RuleSet{Rules: []Rule{}, Source: source}
}

// Len returns the number of rules, treating a nil set as empty
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Validate checks that the rule's enumerated fields hold known values. Clause
// field names are not checked here; an unknown field fails the rule at evaluation.
func (r *Rule) Validate() error {
	if r.Category == "" {
		return &ValidationError{Field: "category", Message: "category is required"}
	}
	if !r.Category.Valid() {
		return &ValidationError{Field: "category", Message: "unknown category " + string(r.Category)}
	}

	for _, kind := range r.ChangeKinds {
		if !kind.Valid() {
			return &ValidationError{Field: "change_kinds", Message: "unknown change kind " + string(kind)}
		}
	}

	for _, platform := range r.Platforms {
		if !platform.Valid() {
			return &ValidationError{Field: "platforms", Message: "unknown platform " + string(platform)}
		}
	}

	return nil
}

// Matched returns the audit entry recorded on a change record when the rule fires
func (r *Rule) Matched() model.MatchedRule {
	return model.MatchedRule{
		Name:        r.Name,
		Description: r.Description,
		Flag:        r.Flag,
	}
}

// ValidationError represents a rule validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
