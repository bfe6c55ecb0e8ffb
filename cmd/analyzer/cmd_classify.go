package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sgerhart/aegisflux/analyzer/internal/analyzer"
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/rules"
)

var classifyFlags struct {
	file   string
	output string
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify change records read from a JSON file",
	Long: `Reads one change record or a JSON array of change records and prints a
classification for each. Use "-f -" to read from stdin.`,
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVarP(&classifyFlags.file, "file", "f", "", "JSON change records file, or - for stdin (required)")
	f.StringVarP(&classifyFlags.output, "output", "o", "json", "Output format: json or table")

	_ = classifyCmd.MarkFlagRequired("file")
}

func runClassify(cmd *cobra.Command, _ []string) error {
	data, err := readInput(cmd, classifyFlags.file)
	if err != nil {
		return err
	}

	records, err := model.DecodeChangeRecords(data)
	if err != nil {
		return fmt.Errorf("decode change records: %w", err)
	}

	platform, err := selectedPlatform()
	if err != nil {
		return err
	}

	logger := newLogger("classify")
	engine, err := analyzer.New(platform, logger)
	if err != nil {
		return err
	}
	if err := engine.Reload(rules.NewRepository(rootFlags.rulesPath, logger)); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: no rules loaded: %v\n", err)
	}

	results := engine.ClassifyAll(records)
	out := cmd.OutOrStdout()

	switch strings.ToLower(classifyFlags.output) {
	case "table":
		fmt.Fprintln(out, classificationTable(results))
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return fmt.Errorf("unknown output format %q", classifyFlags.output)
	}
}

func classificationTable(results []model.Classification) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Identity", "Category", "Change", "Severity", "Matched Rules"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: 60},
	})

	for _, r := range results {
		names := make([]string, 0, len(r.MatchedRules))
		for _, m := range r.MatchedRules {
			names = append(names, m.Name)
		}
		w.AppendRow(table.Row{r.Identity, r.Category, r.ChangeKind, r.Severity, strings.Join(names, ", ")})
	}
	return w.Render()
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
