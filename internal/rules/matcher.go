package rules

import (
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// Matcher selects the candidate rules for a change record
type Matcher struct {
	platform model.Platform
}

// NewMatcher creates a new rule matcher for the given platform
func NewMatcher(platform model.Platform) *Matcher {
	return &Matcher{platform: platform}
}

// Platform returns the platform the matcher filters on
func (m *Matcher) Platform() model.Platform {
	return m.platform
}

// CandidatesFor returns the rules whose category, change kinds and platforms
// admit the record, in rule set order. The returned pointers alias rules.
func (m *Matcher) CandidatesFor(record *model.ChangeRecord, rules []Rule) []*Rule {
	if record == nil {
		return nil
	}

	var candidates []*Rule
	for i := range rules {
		if m.ruleMatches(record, &rules[i]) {
			candidates = append(candidates, &rules[i])
		}
	}
	return candidates
}

// ruleMatches checks the category, change kind and platform filters
func (m *Matcher) ruleMatches(record *model.ChangeRecord, rule *Rule) bool {
	if rule.Category != record.Category {
		return false
	}

	if rule.ChangeKinds != nil && !containsChangeKind(rule.ChangeKinds, record.ChangeKind) {
		return false
	}

	if rule.Platforms != nil && !containsPlatform(rule.Platforms, m.platform) {
		return false
	}

	return true
}

func containsChangeKind(kinds []model.ChangeKind, kind model.ChangeKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func containsPlatform(platforms []model.Platform, platform model.Platform) bool {
	for _, p := range platforms {
		if p == platform {
			return true
		}
	}
	return false
}
