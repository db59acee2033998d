package report

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/studiowebux/loadtest/internal/export"
	"github.com/studiowebux/loadtest/internal/loadtest"
	"github.com/studiowebux/loadtest/internal/metrics"
)

// Prometheus renders the final statistics in the Prometheus text exposition format
type Prometheus struct {
	Namespace string
}

// Generate implements Generator
func (p Prometheus) Generate(w io.Writer, result *loadtest.TestResult) error {
	collector := result.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	e := export.New(p.Namespace, func() *metrics.Collector { return collector })

	families, err := e.Registry().Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
