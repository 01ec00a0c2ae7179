package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show detailed information about a resource",
}

func init() {
	describeCmd.AddCommand(describeScanCmd)
}

type scanDetail struct {
	Scan struct {
		ID              string     `json:"id"`
		IdentifierType  string     `json:"identifier_type"`
		IdentifierValue string     `json:"identifier_value"`
		Providers       []string   `json:"requested_providers"`
		Tier            string     `json:"tier"`
		Status          string     `json:"status"`
		FindingsCount   int        `json:"findings_count"`
		Error           string     `json:"error"`
		ScheduleType    string     `json:"schedule_type"`
		NextRunAt       *time.Time `json:"next_run_at"`
		StartedAt       *time.Time `json:"started_at"`
		CompletedAt     *time.Time `json:"completed_at"`
		CreatedAt       time.Time  `json:"created_at"`
	} `json:"scan"`
	Results []struct {
		ProviderID    string `json:"provider_id"`
		Status        string `json:"status"`
		FindingsCount int    `json:"findings_count"`
		LatencyMs     int64  `json:"latency_ms"`
		Message       string `json:"message"`
	} `json:"results"`
}

var describeScanCmd = &cobra.Command{
	Use:   "scan <scan-id>",
	Short: "Show one scan with its per-provider results",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Get("/api/v1/scans/" + args[0])
		if err != nil {
			return err
		}

		var detail scanDetail
		if err := unmarshal(body, &detail); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(detail)
		case outputYAML:
			printYAML(detail)
		default:
			s := detail.Scan
			fmt.Printf("ID:          %s\n", s.ID)
			fmt.Printf("Identifier:  %s (%s)\n", s.IdentifierValue, s.IdentifierType)
			fmt.Printf("Tier:        %s\n", s.Tier)
			fmt.Printf("Status:      %s\n", s.Status)
			fmt.Printf("Findings:    %d\n", s.FindingsCount)
			if s.Error != "" {
				fmt.Printf("Error:       %s\n", s.Error)
			}
			if s.ScheduleType != "" && s.ScheduleType != "none" {
				fmt.Printf("Schedule:    %s", s.ScheduleType)
				if s.NextRunAt != nil {
					fmt.Printf(" (next run %s)", s.NextRunAt.Format(time.RFC3339))
				}
				fmt.Println()
			}
			fmt.Printf("Created:     %s\n", s.CreatedAt.Format(time.RFC3339))
			if s.CompletedAt != nil {
				fmt.Printf("Completed:   %s\n", s.CompletedAt.Format(time.RFC3339))
			}

			if len(detail.Results) > 0 {
				fmt.Println("\nResults:")
				t := newTable("PROVIDER", "STATUS", "FINDINGS", "LATENCY (MS)", "MESSAGE")
				for _, r := range detail.Results {
					t.AddRow(r.ProviderID, r.Status,
						strconv.Itoa(r.FindingsCount),
						strconv.FormatInt(r.LatencyMs, 10),
						r.Message)
				}
				t.Flush()
			}
		}
		return nil
	},
}
