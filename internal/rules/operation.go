package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrUnknownOperation is reported when a clause names an operation with no operator
var ErrUnknownOperation = errors.New("unknown operation")

// captured holds the values pulled from a change record for one clause
type captured struct {
	values []string
	pairs  []KeyValue
}

// Operator decides whether one clause passes for the captured values.
// Returning an error marks the whole rule as not matched.
type Operator interface {
	Evaluate(c captured, clause *Clause) (bool, error)
}

// equalsOperator compares each datum against the first captured value only
type equalsOperator struct{}

func (equalsOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	count := 0
	for _, datum := range clause.Data {
		if len(c.values) > 0 && c.values[0] == datum {
			count++
		}
	}
	return count == len(clause.Data), nil
}

type notEqualsOperator struct{}

func (notEqualsOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	for _, datum := range clause.Data {
		for _, val := range c.values {
			if datum == val {
				return false, nil
			}
		}
	}
	return true, nil
}

// containsOperator checks dict data against captured pairs when any were captured.
// Otherwise it passes when the first captured value contains none of the data.
type containsOperator struct{}

func (containsOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	if len(c.pairs) > 0 {
		count := 0
		for _, kv := range clause.DictData {
			if containsPair(c.pairs, kv) {
				count++
			}
		}
		return count == len(clause.DictData), nil
	}

	if len(c.values) > 0 {
		count := 0
		for _, datum := range clause.Data {
			if !strings.Contains(c.values[0], datum) {
				count++
			}
		}
		return count == len(clause.Data), nil
	}

	return false, nil
}

type doesNotContainOperator struct{}

func (doesNotContainOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	if len(c.pairs) > 0 {
		for _, kv := range clause.DictData {
			if containsPair(c.pairs, kv) {
				return false, nil
			}
		}
		return true, nil
	}

	if len(c.values) > 0 {
		for _, datum := range clause.Data {
			for _, val := range c.values {
				if val == datum {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

// compareOperator passes when every captured value compares true against Data[0].
// The threshold is only parsed when there is at least one captured value.
type compareOperator struct {
	name string
	cmp  func(value, threshold int64) bool
}

func (o compareOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	count := 0
	for _, val := range c.values {
		if len(clause.Data) == 0 {
			return false, fmt.Errorf("%s requires a threshold datum", o.name)
		}
		threshold, err := parseInt32(clause.Data[0])
		if err != nil {
			return false, fmt.Errorf("%s threshold: %w", o.name, err)
		}
		value, err := parseInt32(val)
		if err != nil {
			return false, fmt.Errorf("%s value: %w", o.name, err)
		}
		if o.cmp(value, threshold) {
			count++
		}
	}
	return count == len(c.values), nil
}

func parseInt32(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 32)
}

// regexOperator counts matches over every (value, pattern) pair and passes when
// the total equals the number of captured values
type regexOperator struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func newRegexOperator(cacheSize int) (*regexOperator, error) {
	if cacheSize <= 0 {
		return &regexOperator{}, nil
	}
	cache, err := lru.New[string, *regexp.Regexp](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &regexOperator{cache: cache}, nil
}

func (o *regexOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	count := 0
	for _, val := range c.values {
		for _, datum := range clause.Data {
			re, err := o.compile(datum)
			if err != nil {
				return false, err
			}
			if re.MatchString(val) {
				count++
			}
		}
	}
	return count == len(c.values), nil
}

func (o *regexOperator) compile(pattern string) (*regexp.Regexp, error) {
	if o.cache != nil {
		if re, ok := o.cache.Get(pattern); ok {
			return re, nil
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if o.cache != nil {
		o.cache.Add(pattern, re)
	}
	return re, nil
}

// wasModifiedOperator passes when exactly two values were captured and they are equal
type wasModifiedOperator struct{}

func (wasModifiedOperator) Evaluate(c captured, _ *Clause) (bool, error) {
	return len(c.values) == 2 && c.values[0] == c.values[1], nil
}

// affixOperator passes when every datum is a prefix (or suffix) of some captured value
type affixOperator struct {
	match func(s, affix string) bool
}

func (o affixOperator) Evaluate(c captured, clause *Clause) (bool, error) {
	count := 0
	for _, datum := range clause.Data {
		for _, val := range c.values {
			if o.match(val, datum) {
				count++
				break
			}
		}
	}
	return count == len(clause.Data), nil
}

func containsPair(pairs []KeyValue, kv KeyValue) bool {
	for _, p := range pairs {
		if p.Key == kv.Key && p.Value == kv.Value {
			return true
		}
	}
	return false
}

// newOperators builds the operator table for one evaluator
func newOperators(regexCacheSize int) (map[Operation]Operator, error) {
	regex, err := newRegexOperator(regexCacheSize)
	if err != nil {
		return nil, err
	}

	return map[Operation]Operator{
		OpEQ:             equalsOperator{},
		OpNEQ:            notEqualsOperator{},
		OpContains:       containsOperator{},
		OpDoesNotContain: doesNotContainOperator{},
		OpGT: compareOperator{name: "GT", cmp: func(v, t int64) bool {
			return v > t
		}},
		OpLT: compareOperator{name: "LT", cmp: func(v, t int64) bool {
			return v < t
		}},
		OpRegex:       regex,
		OpWasModified: wasModifiedOperator{},
		OpEndsWith:    affixOperator{match: strings.HasSuffix},
		OpStartsWith:  affixOperator{match: strings.HasPrefix},
	}, nil
}
