package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/studiowebux/loadtest/internal/config"
	"github.com/studiowebux/loadtest/internal/plan"
	"github.com/studiowebux/loadtest/internal/storage"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// ListRuns prints stored runs, newest first
func ListRuns(w io.Writer, dbPath, name string, limit int) error {
	mgr, err := storage.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	runs, err := mgr.ListRuns(name, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			strconv.FormatInt(r.TotalRequests, 10),
			fmt.Sprintf("%.2f%%", r.SuccessRate),
			fmt.Sprintf("%.3fs", r.P95ResponseTime),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "STARTED", "STATUS", "REQUESTS", "SUCCESS", "P95").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
	return nil
}

// ShowRun prints one stored run, looked up by numeric ID or run UUID
func ShowRun(w io.Writer, dbPath, ref, format string) error {
	mgr, err := storage.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	var run *storage.Run
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		run, err = mgr.GetRun(id)
	} else {
		run, err = mgr.GetRunByUUID(ref)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintf(w, "Run %d (%s)\n", run.ID, run.RunUUID)
	fmt.Fprintf(w, "Name: %s\n", run.Name)
	if run.PlanFile != "" {
		fmt.Fprintf(w, "Plan: %s\n", run.PlanFile)
	}
	fmt.Fprintf(w, "Pattern: %s\n", run.Pattern)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Completed: %s\n", run.CompletedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Duration: %.2fs\n", run.DurationSec)
	fmt.Fprintf(w, "Total Requests: %d\n", run.TotalRequests)
	fmt.Fprintf(w, "Successful: %d\n", run.SuccessfulRequests)
	fmt.Fprintf(w, "Failed: %d\n", run.FailedRequests)
	fmt.Fprintf(w, "Success Rate: %.2f%%\n", run.SuccessRate)
	fmt.Fprintf(w, "Throughput: %.2f req/s\n", run.Throughput)
	fmt.Fprintln(w, "Response Times:")
	fmt.Fprintf(w, "  Min: %.3fs\n", run.MinResponseTime)
	fmt.Fprintf(w, "  Max: %.3fs\n", run.MaxResponseTime)
	fmt.Fprintf(w, "  Mean: %.3fs\n", run.MeanResponseTime)
	fmt.Fprintf(w, "  P50: %.3fs\n", run.P50ResponseTime)
	fmt.Fprintf(w, "  P95: %.3fs\n", run.P95ResponseTime)
	fmt.Fprintf(w, "  P99: %.3fs\n", run.P99ResponseTime)

	if len(run.StatusCodes) > 0 {
		codes := make([]int, 0, len(run.StatusCodes))
		for code := range run.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		fmt.Fprintln(w, "Status Codes:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, run.StatusCodes[code])
		}
	}
	if len(run.Errors) > 0 {
		kinds := make([]string, 0, len(run.Errors))
		for kind := range run.Errors {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "Errors:")
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, run.Errors[kind])
		}
	}
	return nil
}

// DeleteRun removes a stored run and its samples
func DeleteRun(w io.Writer, dbPath string, id int64) error {
	mgr, err := storage.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if _, err := mgr.GetRun(id); err != nil {
		return fmt.Errorf("run %d: %w", id, err)
	}
	if err := mgr.DeleteRun(id); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted run %d\n", id)
	return nil
}

// ValidatePlan loads a plan and reports what it would run
func ValidatePlan(w io.Writer, ref string) error {
	path, err := config.ResolvePlan(ref)
	if err != nil {
		return err
	}
	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	cfg, err := p.LoadTestConfig()
	if err != nil {
		return err
	}
	pat, err := p.BuildPattern()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Plan %s is valid\n", path)
	fmt.Fprintf(w, "  Name: %s\n", cfg.Name)
	fmt.Fprintf(w, "  Duration: %s (warmup %s)\n", cfg.Duration, cfg.Warmup)
	fmt.Fprintf(w, "  Max concurrent: %d\n", cfg.MaxConcurrent)
	fmt.Fprintf(w, "  Pattern: %s\n", pat.Name())
	fmt.Fprintf(w, "  Scenarios: %d\n", len(p.Scenarios))
	return nil
}
