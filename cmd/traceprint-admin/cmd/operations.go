package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <scan-id>",
	Short: "Request cancellation of a scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Post("/api/v1/scans/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}

		var resp struct {
			Scan struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"scan"`
		}
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		fmt.Printf("scan %s: %s\n", resp.Scan.ID, resp.Scan.Status)
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage <provider>",
	Short: "Show the current usage counters for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Get("/api/v1/budgets/" + args[0] + "/usage")
		if err != nil {
			return err
		}

		var resp struct {
			Provider string `json:"provider"`
			Usage    struct {
				DailyCalls       int   `json:"daily_calls"`
				MonthlyCostPence int64 `json:"monthly_cost_pence"`
			} `json:"usage"`
		}
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
		case outputYAML:
			printYAML(resp)
		default:
			fmt.Printf("Provider:            %s\n", resp.Provider)
			fmt.Printf("Daily calls:         %d\n", resp.Usage.DailyCalls)
			fmt.Printf("Monthly cost (pence): %d\n", resp.Usage.MonthlyCostPence)
		}
		return nil
	},
}
