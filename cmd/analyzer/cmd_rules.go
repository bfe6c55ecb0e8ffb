package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule sets",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules of the selected rule set",
	RunE:  runRulesList,
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the selected rule set as YAML",
	RunE:  runRulesDump,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the selected rule set and report problems",
	Long: `Loads the rule file or directory given by --rules (or the built-in rules).
Invalid rules are reported and skipped; a document that cannot be read or that
fails schema validation makes the command fail.`,
	RunE: runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesDumpCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
}

func loadRuleSet(component string) (*rules.RuleSet, error) {
	repo := rules.NewRepository(rootFlags.rulesPath, newLogger(component))
	set, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", repo.Source(), err)
	}
	return set, nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	set, err := loadRuleSet("rules")
	if err != nil {
		return err
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Name", "Category", "Change Kinds", "Platforms", "Flag", "Clauses"})
	for _, s := range rules.Summarize(set) {
		w.AppendRow(table.Row{s.Name, s.Category, joinKinds(s.ChangeKinds), joinPlatforms(s.Platforms), s.Flag, s.Clauses})
	}
	w.AppendFooter(table.Row{"", "", "", "", "Total", set.Len()})

	fmt.Fprintln(cmd.OutOrStdout(), w.Render())
	return nil
}

func runRulesDump(cmd *cobra.Command, _ []string) error {
	set, err := loadRuleSet("rules")
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(rules.RuleFile{Rules: set.Rules})
}

func runRulesValidate(cmd *cobra.Command, _ []string) error {
	set, err := loadRuleSet("validate")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid rules\n", set.Source, set.Len())
	return nil
}

func joinKinds(kinds []model.ChangeKind) string {
	if kinds == nil {
		return "any"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func joinPlatforms(platforms []model.Platform) string {
	if platforms == nil {
		return "any"
	}
	parts := make([]string, len(platforms))
	for i, p := range platforms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
