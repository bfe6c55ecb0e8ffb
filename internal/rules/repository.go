package rules

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// EmbeddedSource names the built-in rule set in logs and summaries
const EmbeddedSource = "Embedded"

//go:embed default_rules.yaml
var defaultRules []byte

//go:embed rules.schema.json
var ruleFileSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// Repository supplies a rule set. Callers that get an error must fall back to
// an empty rule set rather than failing.
type Repository interface {
	Load() (*RuleSet, error)
	Source() string
}

// NewRepository picks the embedded rules for an empty path, a Loader for a
// directory and a FileRepository otherwise
func NewRepository(path string, logger *slog.Logger) Repository {
	if path == "" {
		return NewEmbeddedRepository(logger)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return NewLoader(path, false, 0, logger)
	}
	return NewFileRepository(path, logger)
}

// EmbeddedRepository loads the rule set compiled into the binary
type EmbeddedRepository struct {
	logger *slog.Logger
}

// NewEmbeddedRepository creates a repository for the built-in rules
func NewEmbeddedRepository(logger *slog.Logger) *EmbeddedRepository {
	return &EmbeddedRepository{logger: logger}
}

func (r *EmbeddedRepository) Source() string { return EmbeddedSource }

// Load parses the built-in rules
func (r *EmbeddedRepository) Load() (*RuleSet, error) {
	set, err := ParseRuleFile(defaultRules, EmbeddedSource, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	r.logger.Info("Loaded analyses", "source", EmbeddedSource, "rules", set.Len())
	DumpRules(r.logger, set)
	return set, nil
}

// FileRepository loads a single YAML or JSON rule file, optionally zstd compressed
type FileRepository struct {
	path   string
	logger *slog.Logger
}

// NewFileRepository creates a repository for one rule file
func NewFileRepository(path string, logger *slog.Logger) *FileRepository {
	return &FileRepository{path: path, logger: logger}
}

func (r *FileRepository) Source() string { return r.path }

// Load reads and parses the rule file
func (r *FileRepository) Load() (*RuleSet, error) {
	data, err := readRuleFile(r.path)
	if err != nil {
		return nil, err
	}
	set, err := ParseRuleFile(data, r.path, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.path, err)
	}
	r.logger.Info("Loaded analyses", "source", r.path, "rules", set.Len())
	DumpRules(r.logger, set)
	return set, nil
}

// readRuleFile reads a rule file, decompressing .zst files
func readRuleFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) != ".zst" {
		return data, nil
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer decoder.Close()

	decoded, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return decoded, nil
}

// isRuleFile reports whether path has a rule file extension, looking through .zst
func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zst" {
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
	}
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}

// ParseRuleFile validates a YAML or JSON rule document against the rule file
// schema and decodes it. Rules that fail Validate are skipped with a warning.
func ParseRuleFile(data []byte, source string, logger *slog.Logger) (*RuleSet, error) {
	var document interface{}
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse rule document: %w", err)
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	valid := make([]Rule, 0, len(file.Rules))
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			logger.Warn("Invalid rule skipped",
				"source", source,
				"index", i,
				"rule", rule.Name,
				"error", err)
			continue
		}
		valid = append(valid, rule)
	}

	return &RuleSet{
		Rules:   valid,
		Source:  source,
		Version: time.Now().UnixNano(),
	}, nil
}

// validateDocument checks the decoded document against the embedded JSON schema
func validateDocument(document interface{}) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(ruleFileSchema))
	})
	if schemaErr != nil {
		return fmt.Errorf("failed to load rule file schema: %w", schemaErr)
	}

	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("rule document failed validation: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DumpRules writes the full rule set at debug level
func DumpRules(logger *slog.Logger, set *RuleSet) {
	if set == nil || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	out, err := yaml.Marshal(RuleFile{Rules: set.Rules})
	if err != nil {
		logger.Debug("Failed to dump rules", "error", err)
		return
	}
	logger.Debug("Rule dump", "source", set.Source, "rules", string(out))
}
