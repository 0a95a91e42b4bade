package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snarehq/snare/internal/errx"
	"github.com/snarehq/snare/pkg/api"
	"github.com/snarehq/snare/pkg/persist"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage persisted mock and breakpoint rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := persist.OpenRuleStore(dbPath())
		if err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}
		defer store.Close()

		mocks, err := store.LoadMockRules()
		if err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}
		bps, err := store.LoadBreakpointRules()
		if err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tID\tENABLED\tPRIORITY\tMATCH\tACTION")
		for _, r := range mocks {
			fmt.Fprintf(w, "mock\t%s\t%t\t%d\t%s\t%s\n", r.ID, r.Enabled, r.Priority, describeMatch(r.Match), describeAction(r.Action))
		}
		for _, r := range bps {
			action := string(r.Direction)
			if r.AutoResume > 0 {
				action = fmt.Sprintf("%s, auto-resume %s", r.Direction, r.AutoResume)
			}
			fmt.Fprintf(w, "breakpoint\t%s\t%t\t-\t%s\t%s\n", r.ID, r.Enabled, describeMatch(r.Match), action)
		}
		return w.Flush()
	},
}

// ruleFile is the JSON shape accepted by `rules import` and produced by
// `rules export`.
type ruleFile struct {
	MockRules       []api.MockRule       `json:"mock_rules,omitempty"`
	BreakpointRules []api.BreakpointRule `json:"breakpoint_rules,omitempty"`
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import rules from a JSON file",
	Long: `Import rules from a JSON file. By default imported rules replace the
stored set; --merge keeps existing rules and overwrites by ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errx.Wrap(ErrImportRules, err)
		}
		var file ruleFile
		if err := json.Unmarshal(data, &file); err != nil {
			return errx.Wrap(ErrImportRules, err)
		}
		for _, r := range file.MockRules {
			if err := r.Validate(); err != nil {
				return errx.Wrapf(ErrImportRules, "mock rule %q: %v", r.ID, err)
			}
		}
		for _, r := range file.BreakpointRules {
			if err := r.Validate(); err != nil {
				return errx.Wrapf(ErrImportRules, "breakpoint rule %q: %v", r.ID, err)
			}
		}

		store, err := persist.OpenRuleStore(dbPath())
		if err != nil {
			return errx.Wrap(ErrImportRules, err)
		}
		defer store.Close()

		merge, _ := cmd.Flags().GetBool("merge")
		if merge {
			existing, err := store.LoadMockRules()
			if err != nil {
				return errx.Wrap(ErrImportRules, err)
			}
			file.MockRules = mergeMockRules(existing, file.MockRules)

			existingBPs, err := store.LoadBreakpointRules()
			if err != nil {
				return errx.Wrap(ErrImportRules, err)
			}
			file.BreakpointRules = mergeBreakpointRules(existingBPs, file.BreakpointRules)
		}

		if err := store.SaveMockRules(file.MockRules); err != nil {
			return errx.Wrap(ErrImportRules, err)
		}
		if err := store.SaveBreakpointRules(file.BreakpointRules); err != nil {
			return errx.Wrap(ErrImportRules, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d mock rule(s), %d breakpoint rule(s)\n", len(file.MockRules), len(file.BreakpointRules))
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export persisted rules as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := persist.OpenRuleStore(dbPath())
		if err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}
		defer store.Close()

		var file ruleFile
		if file.MockRules, err = store.LoadMockRules(); err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}
		if file.BreakpointRules, err = store.LoadBreakpointRules(); err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(file)
	},
}

var rulesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all persisted rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := persist.OpenRuleStore(dbPath())
		if err != nil {
			return errx.Wrap(ErrLoadRules, err)
		}
		defer store.Close()

		if err := store.SaveMockRules(nil); err != nil {
			return err
		}
		if err := store.SaveBreakpointRules(nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rules cleared")
		return nil
	},
}

func mergeMockRules(existing, imported []api.MockRule) []api.MockRule {
	out := make([]api.MockRule, 0, len(existing)+len(imported))
	seen := make(map[string]int)
	for _, r := range existing {
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	for _, r := range imported {
		if i, ok := seen[r.ID]; ok {
			out[i] = r
			continue
		}
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func mergeBreakpointRules(existing, imported []api.BreakpointRule) []api.BreakpointRule {
	out := make([]api.BreakpointRule, 0, len(existing)+len(imported))
	seen := make(map[string]int)
	for _, r := range existing {
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	for _, r := range imported {
		if i, ok := seen[r.ID]; ok {
			out[i] = r
			continue
		}
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func describeMatch(m api.Match) string {
	switch {
	case m.URLPattern != "" && m.Method != "":
		return fmt.Sprintf("%s %s", api.NormalizeMethod(m.Method), m.URLPattern)
	case m.URLPattern != "":
		return m.URLPattern
	case m.Host != "":
		return "host " + m.Host
	case m.Method != "":
		return api.NormalizeMethod(m.Method) + " *"
	default:
		return "*"
	}
}

func describeAction(a api.MockAction) string {
	if a.Type == api.MockError {
		return "error " + string(a.Error)
	}
	if a.Delay > 0 {
		return fmt.Sprintf("respond %d (+%s)", a.Status, a.Delay)
	}
	return fmt.Sprintf("respond %d", a.Status)
}

func init() {
	rulesImportCmd.Flags().Bool("merge", false, "Merge with existing rules instead of replacing")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesExportCmd)
	rulesCmd.AddCommand(rulesClearCmd)
	rootCmd.AddCommand(rulesCmd)
}
