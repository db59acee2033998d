package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/studiowebux/loadtest/internal/loadtest"
)

// Format names a report generator
type Format string

const (
	FormatConsole    Format = "console"
	FormatJSON       Format = "json"
	FormatPrometheus Format = "prometheus"
)

// Generator renders a test result
type Generator interface {
	Generate(w io.Writer, result *loadtest.TestResult) error
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(w io.Writer, result *loadtest.TestResult) error

// Generate implements Generator
func (f GeneratorFunc) Generate(w io.Writer, result *loadtest.TestResult) error {
	return f(w, result)
}

var generators = map[Format]Generator{
	FormatConsole:    Console{},
	FormatJSON:       JSON{Indent: true},
	FormatPrometheus: Prometheus{},
}

// Register adds or replaces the generator for a format
func Register(format Format, g Generator) {
	generators[format] = g
}

// Formats returns the registered format names in sorted order
func Formats() []string {
	names := make([]string, 0, len(generators))
	for f := range generators {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Lookup returns the generator registered for format
func Lookup(format string) (Generator, error) {
	g, ok := generators[Format(strings.ToLower(format))]
	if !ok {
		return nil, fmt.Errorf("unknown report format %q (available: %s)", format, strings.Join(Formats(), ", "))
	}
	return g, nil
}

// Render writes result to w in the given format
func Render(w io.Writer, format string, result *loadtest.TestResult) error {
	if result == nil {
		return fmt.Errorf("no result to render")
	}
	g, err := Lookup(format)
	if err != nil {
		return err
	}
	return g.Generate(w, result)
}
