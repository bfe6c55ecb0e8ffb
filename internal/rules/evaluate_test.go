package rules

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/telemetry"
)

type recordedEvent struct {
	name       string
	properties map[string]string
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) TrackEvent(name string, properties map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{name: name, properties: properties})
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.name)
	}
	return names
}

type panicOperator struct{}

func (panicOperator) Evaluate(captured, *Clause) (bool, error) {
	panic("operator exploded")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEvaluator(t *testing.T) (*Evaluator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e, err := NewEvaluator(testLogger(), WithSink(sink))
	require.NoError(t, err)
	return e, sink
}

func fileRecord(kind model.ChangeKind, previous, current *model.FileSystemObject) *model.ChangeRecord {
	r := &model.ChangeRecord{Category: model.CategoryFile, ChangeKind: kind}
	if previous != nil {
		r.Previous = previous
	}
	if current != nil {
		r.Current = current
	}
	return r
}

func TestEvaluator_NilArguments(t *testing.T) {
	e, _ := newTestEvaluator(t)

	_, err := e.Apply(nil, &model.ChangeRecord{})
	assert.ErrorIs(t, err, ErrNilRule)

	_, err = e.Apply(&Rule{}, nil)
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestEvaluator_NoClausesMatches(t *testing.T) {
	e, _ := newTestEvaluator(t)
	rule := &Rule{Name: "any file", Category: model.CategoryFile, Flag: model.SeverityWarning}
	record := fileRecord(model.ChangeCreated, nil, &model.FileSystemObject{Path: "/a"})

	matched, err := e.Apply(rule, record)
	require.NoError(t, err)
	assert.True(t, matched)
	require.Len(t, record.MatchedRules, 1)
	assert.Equal(t, model.MatchedRule{Name: "any file", Flag: model.SeverityWarning}, record.MatchedRules[0])
}

func TestEvaluator_ClausesAreConjunctive(t *testing.T) {
	e, _ := newTestEvaluator(t)
	record := fileRecord(model.ChangeCreated, nil, &model.FileSystemObject{Path: "/usr/bin/x", IsExecutable: true})

	rule := &Rule{
		Name:     "exec in bin",
		Category: model.CategoryFile,
		Clauses: []Clause{
			{Field: "IsExecutable", Operation: OpEQ, Data: []string{"true"}},
			{Field: "Path", Operation: OpStartsWith, Data: []string{"/opt/"}},
		},
	}

	matched, err := e.Apply(rule, record)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Empty(t, record.MatchedRules, "partially matched rules are not recorded")
}

func TestEvaluator_CaptureSides(t *testing.T) {
	previous := &model.FileSystemObject{Path: "/old"}
	current := &model.FileSystemObject{Path: "/new"}

	tests := []struct {
		name     string
		record   *model.ChangeRecord
		clause   Clause
		expected bool
	}{
		{
			name:     "created reads current",
			record:   fileRecord(model.ChangeCreated, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEQ, Data: []string{"/new"}},
			expected: true,
		},
		{
			name:     "deleted reads previous",
			record:   fileRecord(model.ChangeDeleted, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEQ, Data: []string{"/old"}},
			expected: true,
		},
		{
			name:     "modified puts current first",
			record:   fileRecord(model.ChangeModified, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEQ, Data: []string{"/new"}},
			expected: true,
		},
		{
			name:     "modified captures previous second",
			record:   fileRecord(model.ChangeModified, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEQ, Data: []string{"/old"}},
			expected: false,
		},
		{
			name:     "modified captures both sides",
			record:   fileRecord(model.ChangeModified, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEndsWith, Data: []string{"old", "new"}},
			expected: true,
		},
		{
			name:     "unchanged field on modified record",
			record:   fileRecord(model.ChangeModified, &model.FileSystemObject{Owner: "root"}, &model.FileSystemObject{Owner: "root"}),
			clause:   Clause{Field: "Owner", Operation: OpWasModified},
			expected: true,
		},
		{
			name:     "empty scalars are not captured",
			record:   fileRecord(model.ChangeModified, &model.FileSystemObject{}, &model.FileSystemObject{Owner: "root"}),
			clause:   Clause{Field: "Owner", Operation: OpWasModified},
			expected: false,
		},
		{
			name:     "unknown change kind captures nothing",
			record:   fileRecord(model.ChangeUnknown, previous, current),
			clause:   Clause{Field: "Path", Operation: OpEQ, Data: []string{"/new"}},
			expected: false,
		},
		{
			name:     "missing snapshot captures nothing",
			record:   fileRecord(model.ChangeCreated, nil, nil),
			clause:   Clause{Field: "Path", Operation: OpNEQ, Data: []string{"/new"}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sink := newTestEvaluator(t)
			rule := &Rule{Name: tt.name, Category: model.CategoryFile, Clauses: []Clause{tt.clause}}

			matched, err := e.Apply(rule, tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
			assert.Empty(t, sink.names())
		})
	}
}

func TestEvaluator_LaterMapReplacesEarlier(t *testing.T) {
	e, _ := newTestEvaluator(t)
	record := &model.ChangeRecord{
		Category:   model.CategoryRegistry,
		ChangeKind: model.ChangeModified,
		Previous:   &model.RegistryObject{Values: map[string]string{"old": "1"}},
		Current:    &model.RegistryObject{Values: map[string]string{"new": "1"}},
	}

	contains := func(key string) bool {
		rule := &Rule{Category: model.CategoryRegistry, Clauses: []Clause{{
			Field:     "Values",
			Operation: OpContains,
			DictData:  []KeyValue{{Key: key, Value: "1"}},
		}}}
		matched, err := e.Apply(rule, record)
		require.NoError(t, err)
		return matched
	}

	assert.True(t, contains("old"), "the previous snapshot is captured last")
	assert.False(t, contains("new"))

	record.Previous = &model.RegistryObject{}
	assert.True(t, contains("new"), "a nil map does not replace captured pairs")
}

func TestEvaluator_UnknownFieldAndOperation(t *testing.T) {
	e, sink := newTestEvaluator(t)
	record := fileRecord(model.ChangeCreated, nil, &model.FileSystemObject{Path: "/a"})

	matched, err := e.Apply(&Rule{Category: model.CategoryFile, Clauses: []Clause{
		{Field: "Colour", Operation: OpNEQ, Data: []string{"x"}},
	}}, record)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = e.Apply(&Rule{Category: model.CategoryFile, Clauses: []Clause{
		{Field: "Path", Operation: "MATCHES_GLOB", Data: []string{"*"}},
	}}, record)
	require.NoError(t, err)
	assert.False(t, matched)

	assert.Empty(t, sink.names())
	assert.Empty(t, record.MatchedRules)
}

func TestEvaluator_OperatorErrorMeansNoMatch(t *testing.T) {
	e, sink := newTestEvaluator(t)
	record := &model.ChangeRecord{
		Category:   model.CategoryPort,
		ChangeKind: model.ChangeCreated,
		Current:    &model.OpenPortObject{Port: 22},
	}
	rule := &Rule{Name: "bad threshold", Category: model.CategoryPort, Clauses: []Clause{
		{Field: "Port", Operation: OpGT, Data: []string{"lots"}},
	}}

	matched, err := e.Apply(rule, record)
	require.NoError(t, err)
	assert.False(t, matched)

	require.Len(t, sink.events, 1)
	assert.Equal(t, telemetry.EventApplyOverall, sink.events[0].name)
	assert.Equal(t, "bad threshold", sink.events[0].properties["Rule"])
	assert.NotEmpty(t, sink.events[0].properties["Exception Type"])
}

func TestEvaluator_OperatorPanicIsRecovered(t *testing.T) {
	e, sink := newTestEvaluator(t)
	e.operators[OpEQ] = panicOperator{}
	record := fileRecord(model.ChangeCreated, nil, &model.FileSystemObject{Path: "/a"})

	var matched bool
	var err error
	require.NotPanics(t, func() {
		matched, err = e.Apply(&Rule{Name: "boom", Category: model.CategoryFile, Clauses: []Clause{
			{Field: "Path", Operation: OpEQ, Data: []string{"/a"}},
		}}, record)
	})
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, []string{telemetry.EventApplyOverall}, sink.names())
}

func TestEvaluator_CaptureFailuresAreReportedPerSide(t *testing.T) {
	e, sink := newTestEvaluator(t)

	record := &model.ChangeRecord{
		Category:   model.CategoryFile,
		ChangeKind: model.ChangeModified,
		Current:    &model.OpenPortObject{Port: 22},
		Previous:   &model.FileSystemObject{Path: "/old"},
	}

	matched, err := e.Apply(&Rule{Category: model.CategoryFile, Clauses: []Clause{
		{Field: "Path", Operation: OpEQ, Data: []string{"/old"}},
	}}, record)
	require.NoError(t, err)
	assert.True(t, matched, "the previous side is still captured")
	assert.Equal(t, []string{telemetry.EventApplyCreatedModified}, sink.names())

	mismatched := &model.ChangeRecord{
		Category:   model.CategoryFile,
		ChangeKind: model.ChangeDeleted,
		Previous:   &model.ServiceObject{ServiceName: "sshd"},
	}
	matched, err = e.Apply(&Rule{Category: model.CategoryFile, Clauses: []Clause{
		{Field: "Path", Operation: OpEQ, Data: []string{"sshd"}},
	}}, mismatched)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, []string{telemetry.EventApplyCreatedModified, telemetry.EventApplyDeletedModified}, sink.names())
}

func TestEvaluator_TypedNilSnapshotCapturesNothing(t *testing.T) {
	e, sink := newTestEvaluator(t)
	record := &model.ChangeRecord{
		Category:   model.CategoryFile,
		ChangeKind: model.ChangeModified,
		Current:    (*model.FileSystemObject)(nil),
		Previous:   &model.FileSystemObject{Path: "/old"},
	}

	matched, err := e.Apply(&Rule{Category: model.CategoryFile, Clauses: []Clause{
		{Field: "Path", Operation: OpEQ, Data: []string{"/old"}},
	}}, record)
	require.NoError(t, err)
	assert.True(t, matched, "only the previous side is captured")
	assert.Empty(t, sink.names(), "a nil snapshot is not a capture failure")
}

func TestEvaluator_ConcurrentApply(t *testing.T) {
	e, _ := newTestEvaluator(t)
	rule := &Rule{Name: "regex", Category: model.CategoryFile, Flag: model.SeverityError, Clauses: []Clause{
		{Field: "Path", Operation: OpRegex, Data: []string{`^/tmp/.*\.sh$`}},
	}}

	var wg sync.WaitGroup
	results := make([]bool, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/tmp/run.sh"
			if i%2 == 1 {
				path = "/etc/hosts"
			}
			record := fileRecord(model.ChangeCreated, nil, &model.FileSystemObject{Path: path})
			matched, err := e.Apply(rule, record)
			assert.NoError(t, err)
			results[i] = matched
		}(i)
	}
	wg.Wait()

	for i, matched := range results {
		assert.Equal(t, i%2 == 0, matched, "record %d", i)
	}
}
