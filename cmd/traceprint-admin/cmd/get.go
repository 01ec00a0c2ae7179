package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagScanStatus string
	flagPage       int
	flagPerPage    int
	flagAlertLimit int
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

func init() {
	getCmd.AddCommand(getScansCmd)
	getCmd.AddCommand(getProvidersCmd)
	getCmd.AddCommand(getBudgetsCmd)
	getCmd.AddCommand(getAlertsCmd)

	getScansCmd.Flags().StringVar(&flagScanStatus, "status", "", "Filter by scan status")
	getScansCmd.Flags().IntVar(&flagPage, "page", 1, "Page number")
	getScansCmd.Flags().IntVar(&flagPerPage, "per-page", 50, "Results per page")
	getAlertsCmd.Flags().IntVar(&flagAlertLimit, "limit", 100, "Maximum alerts to return")
}

// listEnvelope mirrors the API's list response.
type listEnvelope[T any] struct {
	Data    []T `json:"data"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type scanSummary struct {
	ID              string     `json:"id"`
	IdentifierType  string     `json:"identifier_type"`
	IdentifierValue string     `json:"identifier_value"`
	Status          string     `json:"status"`
	FindingsCount   int        `json:"findings_count"`
	ScheduleType    string     `json:"schedule_type"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

var getScansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List scans in the workspace",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("page", strconv.Itoa(flagPage))
		q.Set("per_page", strconv.Itoa(flagPerPage))
		if flagScanStatus != "" {
			q.Set("status", flagScanStatus)
		}

		body, err := client.Get("/api/v1/scans?" + q.Encode())
		if err != nil {
			return err
		}

		var resp listEnvelope[scanSummary]
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
		case outputYAML:
			printYAML(resp)
		default:
			t := newTable("ID", "IDENTIFIER", "TYPE", "STATUS", "FINDINGS", "SCHEDULE", "CREATED")
			for _, s := range resp.Data {
				t.AddRow(s.ID, s.IdentifierValue, s.IdentifierType, s.Status,
					strconv.Itoa(s.FindingsCount), s.ScheduleType,
					s.CreatedAt.Format(time.RFC3339))
			}
			t.Flush()
			fmt.Printf("\n%d of %d scans (page %d)\n", len(resp.Data), resp.Total, resp.Page)
		}
		return nil
	},
}

type providerSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RequiredTier string   `json:"required_tier"`
	CostPence    int64    `json:"cost_pence"`
	Identifiers  []string `json:"identifiers"`
}

var getProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List catalog providers",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Get("/api/v1/providers")
		if err != nil {
			return err
		}

		var resp listEnvelope[providerSummary]
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
		case outputYAML:
			printYAML(resp)
		default:
			t := newTable("ID", "NAME", "TIER", "COST (PENCE)", "IDENTIFIERS")
			for _, p := range resp.Data {
				t.AddRow(p.ID, p.Name, p.RequiredTier,
					strconv.FormatInt(p.CostPence, 10),
					fmt.Sprintf("%v", p.Identifiers))
			}
			t.Flush()
		}
		return nil
	},
}

type policySummary struct {
	ProviderID            string `json:"provider_id"`
	DailyQuota            int    `json:"daily_quota"`
	MonthlyBudgetPence    int64  `json:"monthly_budget_pence"`
	WarnThresholdPct      int    `json:"warn_threshold_pct"`
	CriticalThresholdPct  int    `json:"critical_threshold_pct"`
	BlockOnQuotaExceeded  bool   `json:"block_on_quota_exceeded"`
	BlockOnBudgetExceeded bool   `json:"block_on_budget_exceeded"`
}

var getBudgetsCmd = &cobra.Command{
	Use:   "budgets",
	Short: "List budget policies in the workspace",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Get("/api/v1/budgets")
		if err != nil {
			return err
		}

		var resp listEnvelope[policySummary]
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
		case outputYAML:
			printYAML(resp)
		default:
			t := newTable("PROVIDER", "DAILY QUOTA", "MONTHLY BUDGET (PENCE)", "WARN%", "CRIT%", "BLOCK QUOTA", "BLOCK BUDGET")
			for _, p := range resp.Data {
				t.AddRow(p.ProviderID,
					strconv.Itoa(p.DailyQuota),
					strconv.FormatInt(p.MonthlyBudgetPence, 10),
					strconv.Itoa(p.WarnThresholdPct),
					strconv.Itoa(p.CriticalThresholdPct),
					boolToStr(p.BlockOnQuotaExceeded),
					boolToStr(p.BlockOnBudgetExceeded))
			}
			t.Flush()
		}
		return nil
	},
}

type alertSummary struct {
	ProviderID   string    `json:"provider_id"`
	AlertType    string    `json:"alert_type"`
	ThresholdPct int       `json:"threshold_pct"`
	CurrentUsage int64     `json:"current_usage"`
	LimitValue   int64     `json:"limit_value"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

var getAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent budget alerts in the workspace",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}

		body, err := client.Get("/api/v1/budget-alerts?limit=" + strconv.Itoa(flagAlertLimit))
		if err != nil {
			return err
		}

		var resp listEnvelope[alertSummary]
		if err := unmarshal(body, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
		case outputYAML:
			printYAML(resp)
		default:
			t := newTable("PROVIDER", "TYPE", "THRESHOLD", "USAGE", "LIMIT", "AT")
			for _, a := range resp.Data {
				t.AddRow(a.ProviderID, a.AlertType,
					strconv.Itoa(a.ThresholdPct)+"%",
					strconv.FormatInt(a.CurrentUsage, 10),
					strconv.FormatInt(a.LimitValue, 10),
					a.CreatedAt.Format(time.RFC3339))
			}
			t.Flush()
		}
		return nil
	},
}
