package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/loadtest/internal/loadtest"
)

const ruleWidth = 60

// Console renders a plain-text summary.
// With Styled set, the title and success rate are colored for terminals.
type Console struct {
	Styled bool
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Generate implements Generator
func (c Console) Generate(w io.Writer, result *loadtest.TestResult) error {
	stats := result.Statistics()
	rule := strings.Repeat("=", ruleWidth)

	title := fmt.Sprintf("Load Test Report: %s", result.Name)
	rate := fmt.Sprintf("%.2f%%", stats.SuccessRate)
	if c.Styled {
		title = titleStyle.Render(title)
		rate = rateStyle(stats.SuccessRate).Render(rate)
	}

	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, title)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Duration: %.2fs\n", stats.Duration)
	fmt.Fprintf(&b, "Total Requests: %d\n", stats.TotalRequests)
	fmt.Fprintf(&b, "Successful: %d\n", stats.SuccessfulRequests)
	fmt.Fprintf(&b, "Failed: %d\n", stats.FailedRequests)
	fmt.Fprintf(&b, "Success Rate: %s\n", rate)
	fmt.Fprintf(&b, "Throughput: %.2f req/s\n", stats.Throughput)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Response Times:")
	fmt.Fprintf(&b, "  Min: %.3fs\n", stats.MinResponseTime)
	fmt.Fprintf(&b, "  Max: %.3fs\n", stats.MaxResponseTime)
	fmt.Fprintf(&b, "  Mean: %.3fs\n", stats.MeanResponseTime)
	fmt.Fprintf(&b, "  Median: %.3fs\n", stats.MedianResponseTime)
	fmt.Fprintf(&b, "  P95: %.3fs\n", stats.P95ResponseTime)
	fmt.Fprintf(&b, "  P99: %.3fs\n", stats.P99ResponseTime)

	if len(stats.StatusCodes) > 0 {
		codes := make([]int, 0, len(stats.StatusCodes))
		for code := range stats.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Status Codes:")
		for _, code := range codes {
			fmt.Fprintf(&b, "  %d: %d\n", code, stats.StatusCodes[code])
		}
	}

	if len(stats.Errors) > 0 {
		kinds := make([]string, 0, len(stats.Errors))
		for kind := range stats.Errors {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Errors:")
		for _, kind := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", kind, stats.Errors[kind])
		}
	}

	if len(stats.CustomMetrics) > 0 {
		names := make([]string, 0, len(stats.CustomMetrics))
		for name := range stats.CustomMetrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Custom Metrics:")
		for _, name := range names {
			s := stats.CustomMetrics[name]
			fmt.Fprintf(&b, "  %s: count=%d mean=%.3f p95=%.3f max=%.3f\n", name, s.Count, s.Mean, s.P95, s.Max)
		}
	}

	fmt.Fprintln(&b, rule)
	_, err := io.WriteString(w, b.String())
	return err
}

func rateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= 99:
		return goodStyle
	case rate >= 90:
		return warnStyle
	default:
		return badStyle
	}
}
