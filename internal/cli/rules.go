package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lowy-zhangtian/-audit-tool/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the configured rule set",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := configuredRules()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSEVERITY\tDESCRIPTION\tCONDITION")
		for _, r := range set.Rules() {
			cond := ""
			if c := r.Condition(); c != nil {
				cond = c.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Severity, r.Description, cond)
		}
		return tw.Flush()
	},
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the rule set as a YAML rule pack",
	Long: `Dump writes the configured rules in the rule pack format accepted by
rules.packs, as a starting point for custom packs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := configuredRules()
		if err != nil {
			return err
		}
		return rules.WritePack(cmd.OutOrStdout(), set.Rules())
	},
}

func configuredRules() (*rules.RuleSet, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return rules.FromConfig(cfg.Rules)
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesDumpCmd)
}
