package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagDailyQuota    int
	flagMonthlyBudget int64
	flagWarnPct       int
	flagCriticalPct   int
	flagBlockQuota    bool
	flagBlockBudget   bool
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update resources",
}

func init() {
	setCmd.AddCommand(setBudgetCmd)

	setBudgetCmd.Flags().IntVar(&flagDailyQuota, "daily-quota", 0, "Daily call quota (0 disables the quota)")
	setBudgetCmd.Flags().Int64Var(&flagMonthlyBudget, "monthly-budget-pence", 0, "Monthly budget in pence (0 disables the budget)")
	setBudgetCmd.Flags().IntVar(&flagWarnPct, "warn-pct", 0, "Warn alert threshold percent (0 keeps the default)")
	setBudgetCmd.Flags().IntVar(&flagCriticalPct, "critical-pct", 0, "Critical alert threshold percent (0 keeps the default)")
	setBudgetCmd.Flags().BoolVar(&flagBlockQuota, "block-quota", false, "Deny calls once the daily quota is exceeded")
	setBudgetCmd.Flags().BoolVar(&flagBlockBudget, "block-budget", false, "Deny calls once the monthly budget is exceeded")
}

var setBudgetCmd = &cobra.Command{
	Use:   "budget <provider>",
	Short: "Set the budget policy for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		req := map[string]any{
			"daily_quota":              flagDailyQuota,
			"monthly_budget_pence":     flagMonthlyBudget,
			"warn_threshold_pct":       flagWarnPct,
			"critical_threshold_pct":   flagCriticalPct,
			"block_on_quota_exceeded":  flagBlockQuota,
			"block_on_budget_exceeded": flagBlockBudget,
		}

		body, err := client.Put("/api/v1/budgets/"+args[0], req)
		if err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			var v any
			if err := unmarshal(body, &v); err != nil {
				return err
			}
			printJSON(v)
		case outputYAML:
			var v any
			if err := unmarshal(body, &v); err != nil {
				return err
			}
			printYAML(v)
		default:
			fmt.Printf("budget policy for %q updated\n", args[0])
		}
		return nil
	},
}
