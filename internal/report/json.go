package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/studiowebux/loadtest/internal/loadtest"
	"github.com/studiowebux/loadtest/internal/metrics"
)

// Document is the structured form of a test result
type Document struct {
	RunID      string             `json:"run_id"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	Duration   float64            `json:"duration"`
	Config     DocumentConfig     `json:"config"`
	Statistics metrics.Statistics `json:"statistics"`
}

// DocumentConfig is the configuration section of a Document
type DocumentConfig struct {
	Duration      float64 `json:"duration"`
	Warmup        float64 `json:"warmup"`
	MaxConcurrent int     `json:"max_concurrent"`
	Pacing        string  `json:"pacing"`
}

// NewDocument builds the structured form of result
func NewDocument(result *loadtest.TestResult) Document {
	return Document{
		RunID:     result.RunID.String(),
		Name:      result.Name,
		Status:    string(result.Status),
		StartTime: result.StartTime,
		EndTime:   result.EndTime,
		Duration:  result.Duration().Seconds(),
		Config: DocumentConfig{
			Duration:      result.Config.Duration.Seconds(),
			Warmup:        result.Config.Warmup.Seconds(),
			MaxConcurrent: result.Config.MaxConcurrent,
			Pacing:        result.Config.Pacing.String(),
		},
		Statistics: result.Statistics(),
	}
}

// JSON renders a Document
type JSON struct {
	Indent bool
}

// Generate implements Generator
func (j JSON) Generate(w io.Writer, result *loadtest.TestResult) error {
	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(NewDocument(result))
}
