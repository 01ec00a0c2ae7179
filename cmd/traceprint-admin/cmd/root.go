// Package cmd implements the traceprint-admin CLI commands.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags.
	flagAPIURL    string
	flagWorkspace string
	flagOutput    string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "traceprint-admin",
	Short: "Traceprint platform administration CLI",
	Long: `traceprint-admin is a kubectl-style CLI for operating the Traceprint API.

It provides commands to inspect scans and findings, manage per-provider
budget policies, and review budget alerts for a workspace.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API base URL (env: TRACEPRINT_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace ID (env: TRACEPRINT_WORKSPACE_ID)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(usageCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("TRACEPRINT_API_URL")
	}
	if flagAPIURL == "" {
		flagAPIURL = "http://localhost:8080"
	}
	if flagWorkspace == "" {
		flagWorkspace = os.Getenv("TRACEPRINT_WORKSPACE_ID")
	}
}

func newClientFromFlags() (*Client, error) {
	if flagWorkspace == "" {
		return nil, fmt.Errorf("workspace is required (--workspace or TRACEPRINT_WORKSPACE_ID)")
	}
	return NewClient(flagAPIURL, flagWorkspace, flagVerbose), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("traceprint-admin %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}
