package rules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Loader handles loading and watching a directory of rule files
type Loader struct {
	rulesDir   string
	hotReload  bool
	logger     *slog.Logger
	mu         sync.RWMutex
	snapshot   *RuleSet
	watchers   []chan struct{}
	debounceMs int
	onFailure  func(source string, err error)
}

// NewLoader creates a new rule loader
func NewLoader(rulesDir string, hotReload bool, debounceMs int, logger *slog.Logger) *Loader {
	return &Loader{
		rulesDir:   rulesDir,
		hotReload:  hotReload,
		logger:     logger,
		debounceMs: debounceMs,
	}
}

func (l *Loader) Source() string { return l.rulesDir }

// Load implements Repository
func (l *Loader) Load() (*RuleSet, error) {
	return l.LoadSnapshot()
}

// LoadSnapshot loads all rule files in filename order. A rule whose name was
// already loaded from an earlier file is replaced in place. Any unreadable or
// malformed file fails the whole load.
func (l *Loader) LoadSnapshot() (*RuleSet, error) {
	l.logger.Info("Loading rules snapshot", "rules_dir", l.rulesDir)

	ruleFiles, err := l.readRuleFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to read rule files: %w", err)
	}

	var allRules []Rule
	byName := make(map[string]int)
	sources := make(map[string]string)

	for _, file := range ruleFiles {
		set, err := l.loadRulesFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules from %s: %w", file, err)
		}

		for _, rule := range set.Rules {
			if rule.Name == "" {
				allRules = append(allRules, rule)
				continue
			}
			if idx, exists := byName[rule.Name]; exists {
				l.logger.Info("Rule name conflict resolved by filename override",
					"rule", rule.Name,
					"new_file", file,
					"old_file", sources[rule.Name])
				allRules[idx] = rule
			} else {
				byName[rule.Name] = len(allRules)
				allRules = append(allRules, rule)
			}
			sources[rule.Name] = file
		}
	}

	if allRules == nil {
		allRules = []Rule{}
	}

	snapshot := &RuleSet{
		Rules:   allRules,
		Source:  l.rulesDir,
		Version: time.Now().UnixNano(),
	}

	l.logger.Info("Rules snapshot loaded",
		"files", len(ruleFiles),
		"total_rules", len(allRules),
		"version", snapshot.Version)
	DumpRules(l.logger, snapshot)

	l.setSnapshot(snapshot)
	return snapshot, nil
}

// GetSnapshot returns the current rules snapshot
func (l *Loader) GetSnapshot() *RuleSet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshot == nil {
		return EmptyRuleSet(l.rulesDir)
	}

	rules := make([]Rule, len(l.snapshot.Rules))
	copy(rules, l.snapshot.Rules)

	return &RuleSet{
		Rules:   rules,
		Source:  l.snapshot.Source,
		Version: l.snapshot.Version,
	}
}

// WatchForChanges starts watching for rule file changes if hot reload is
// enabled. Watching stops when ctx is cancelled.
func (l *Loader) WatchForChanges(ctx context.Context) error {
	if !l.hotReload {
		l.logger.Info("Hot reload disabled")
		return nil
	}

	l.logger.Info("Starting rule file watcher", "rules_dir", l.rulesDir)

	reloadChan := make(chan struct{}, 1)
	go l.watchFiles(ctx, reloadChan, 2*time.Second)
	go l.debouncedReload(ctx, reloadChan)

	return nil
}

// OnReloadFailure registers fn to be called when a hot reload fails, after the
// empty snapshot has been installed
func (l *Loader) OnReloadFailure(fn func(source string, err error)) {
	l.mu.Lock()
	l.onFailure = fn
	l.mu.Unlock()
}

// Subscribe returns a channel that receives a notification whenever the
// snapshot changes
func (l *Loader) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	return ch
}

// readRuleFiles reads all rule files from the rules directory, sorted by filename
func (l *Loader) readRuleFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(l.rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isRuleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (l *Loader) loadRulesFromFile(filename string) (*RuleSet, error) {
	data, err := readRuleFile(filename)
	if err != nil {
		return nil, err
	}

	set, err := ParseRuleFile(data, filename, l.logger)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Loaded rules from file", "file", filename, "count", set.Len())
	return set, nil
}

// watchFiles polls the rules directory for modified files
func (l *Loader) watchFiles(ctx context.Context, reloadChan chan<- struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastModTime := time.Now()
	lastCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		latest, count, err := l.scanModTimes()
		if err != nil {
			l.logger.Error("Error watching files", "error", err)
			continue
		}

		changed := latest.After(lastModTime) || (lastCount >= 0 && count != lastCount)
		if latest.After(lastModTime) {
			lastModTime = latest
		}
		lastCount = count

		if changed {
			l.logger.Info("Rule files changed, triggering reload")
			select {
			case reloadChan <- struct{}{}:
			default:
			}
		}
	}
}

// scanModTimes returns the newest modification time and the number of rule files
func (l *Loader) scanModTimes() (time.Time, int, error) {
	var latest time.Time
	count := 0

	err := filepath.WalkDir(l.rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isRuleFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})

	return latest, count, err
}

// debouncedReload reloads once changes have settled. A failed reload installs
// an empty snapshot so stale rules are not kept silently.
func (l *Loader) debouncedReload(ctx context.Context, reloadChan <-chan struct{}) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reloadChan:
		}

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(time.Duration(l.debounceMs)*time.Millisecond, func() {
			l.logger.Info("Debounced reload triggered")
			if _, err := l.LoadSnapshot(); err != nil {
				l.reloadFailed(err)
			}
		})
	}
}

func (l *Loader) reloadFailed(err error) {
	l.logger.Warn("Failed to reload rules, continuing with no rules", "error", err)
	l.setSnapshot(EmptyRuleSet(l.rulesDir))

	l.mu.RLock()
	fn := l.onFailure
	l.mu.RUnlock()
	if fn != nil {
		fn(l.rulesDir, err)
	}
}

func (l *Loader) setSnapshot(snapshot *RuleSet) {
	l.mu.Lock()
	l.snapshot = snapshot
	l.mu.Unlock()

	l.notifyWatchers()
}

// notifyWatchers notifies all subscribed watchers
func (l *Loader) notifyWatchers() {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
