package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/loadtest/internal/cli"
	"github.com/studiowebux/loadtest/internal/config"
	"github.com/studiowebux/loadtest/internal/report"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrBelowThreshold) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Rate-controlled load generator",
	Long: `loadtest drives HTTP and WebSocket scenarios at a rate shaped by a load pattern.

A plan file (YAML, JSON or JSONC) describes the target, the pattern and the
weighted scenarios. Plan names without a path are looked up in the plans
directory, and the extension is optional.

Examples:
  loadtest run checkout                    # Run plans/checkout.yaml
  loadtest run plan.yaml -f json -o r.json # Write a JSON report
  loadtest run plan.yaml --duration 30s    # Override the plan duration
  loadtest run plan.yaml --metrics-addr :9100
  loadtest runs --name checkout            # List stored runs
  loadtest show 12                         # Show a stored run
  loadtest validate plan.yaml              # Check a plan without running it`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <plan>",
	Short: "Execute a load test plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return runPlan(cmd, args[0])
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored load test runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return cli.ListRuns(cmd.OutOrStdout(), databasePath(), flagRunsName, flagRunsLimit)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id|uuid>",
	Short: "Show a stored load test run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return cli.ShowRun(cmd.OutOrStdout(), databasePath(), args[0], flagShowFormat)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored load test run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id: %s", args[0])
		}
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return cli.DeleteRun(cmd.OutOrStdout(), databasePath(), id)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <plan>",
	Short: "Validate a load test plan without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return cli.ValidatePlan(cmd.OutOrStdout(), args[0])
	},
}

// Flags for run
var (
	flagFormat         string
	flagOutput         string
	flagNoSave         bool
	flagMetricsAddr    string
	flagVerbose        bool
	flagDuration       time.Duration
	flagWarmup         time.Duration
	flagProgress       time.Duration
	flagMinSuccessRate float64
)

// Flags shared by the storage commands
var (
	flagDatabase   string
	flagRunsName   string
	flagRunsLimit  int
	flagShowFormat string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "Database path (default: <config dir>/loadtest.db)")

	runCmd.Flags().StringVarP(&flagFormat, "format", "f", string(report.FormatConsole), "Report format (console/json/prometheus)")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write the report to a file")
	runCmd.Flags().BoolVar(&flagNoSave, "no-save", false, "Do not store the run in the database")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve live Prometheus metrics on this address")
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	runCmd.Flags().DurationVar(&flagDuration, "duration", 0, "Override the plan duration")
	runCmd.Flags().DurationVar(&flagWarmup, "warmup", 0, "Override the plan warmup")
	runCmd.Flags().DurationVar(&flagProgress, "progress", 0, "Log live statistics at this interval")
	runCmd.Flags().Float64Var(&flagMinSuccessRate, "min-success-rate", 0, "Fail when the success rate (percent) is lower")

	runsCmd.Flags().StringVar(&flagRunsName, "name", "", "Only list runs with this name")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "Maximum number of runs to list")

	showCmd.Flags().StringVarP(&flagShowFormat, "format", "f", "text", "Output format (text/json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(validateCmd)
}

func databasePath() string {
	if flagDatabase != "" {
		return flagDatabase
	}
	return config.DatabasePath
}

// runPlan executes a plan file in CLI mode
func runPlan(cmd *cobra.Command, planPath string) error {
	log, err := cli.NewLogger(flagVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	opts := cli.RunOptions{
		PlanPath:       planPath,
		Format:         flagFormat,
		OutputPath:     flagOutput,
		DatabasePath:   databasePath(),
		NoSave:         flagNoSave,
		MetricsAddr:    flagMetricsAddr,
		Progress:       flagProgress,
		Duration:       flagDuration,
		Warmup:         flagWarmup,
		WarmupSet:      cmd.Flags().Changed("warmup"),
		MinSuccessRate: flagMinSuccessRate,
		Logger:         log,
		Stdout:         cmd.OutOrStdout(),
	}
	return cli.Run(context.Background(), opts)
}
