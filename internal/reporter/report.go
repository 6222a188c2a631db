package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"api-contract-tester/internal/types"
)

// Report wraps a run summary with its generation timestamp.
type Report struct {
	Timestamp time.Time        `json:"timestamp"`
	Summary   types.RunSummary `json:"summary"`
}

// Reporter handles the generation of test reports
type Reporter struct {
	config ReportingConfig
}

// ReportingConfig holds the configuration for reporting
type ReportingConfig struct {
	OutputDir string
	Detailed  bool
}

// NewReporter creates a new instance of Reporter
func NewReporter(config ReportingConfig) *Reporter {
	return &Reporter{
		config: config,
	}
}

// GenerateReport writes the JSON report file and prints the console
// summary. The report keeps enough step detail (method, url, status,
// error) to reconstruct every failure without re-running anything.
func (r *Reporter) GenerateReport(summary types.RunSummary) error {
	report := Report{
		Timestamp: time.Now(),
		Summary:   summary,
	}
	if !r.config.Detailed {
		report.Summary.Results = stripBodies(summary.Results)
	}

	if err := r.writeJSONReport(report); err != nil {
		return fmt.Errorf("failed to generate JSON report: %v", err)
	}

	r.printSummary(summary)
	return nil
}

// stripBodies drops captured response bodies, keeping the request
// evidence. Detailed mode keeps everything.
func stripBodies(results []types.TestResult) []types.TestResult {
	out := make([]types.TestResult, len(results))
	for i, result := range results {
		steps := make([]types.TestStep, len(result.Steps))
		for j, step := range result.Steps {
			step.Data = nil
			steps[j] = step
		}
		result.Steps = steps
		out[i] = result
	}
	return out
}

func (r *Reporter) writeJSONReport(report Report) error {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return err
	}

	reportPath := filepath.Join(r.config.OutputDir, fmt.Sprintf("report_%s.json", report.Timestamp.Format("20060102_150405")))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(reportPath, data, 0644)
}

// printSummary prints the per-endpoint outcome and the run totals.
func (r *Reporter) printSummary(summary types.RunSummary) {
	fmt.Println()
	for _, result := range summary.Results {
		mark := "PASS"
		if !result.Passed {
			mark = "FAIL"
		}
		fmt.Printf("%s  %s (%dms)\n", mark, result.Resource, result.Duration)
		if result.Passed {
			continue
		}
		for _, step := range result.Steps {
			if step.Error == "" {
				continue
			}
			if step.URL != "" {
				fmt.Printf("      %s %s %s (status %d): %s\n", step.Step, step.Method, step.URL, step.Status, step.Error)
			} else {
				fmt.Printf("      %s: %s\n", step.Step, step.Error)
			}
		}
		for _, diff := range result.Differences {
			fmt.Printf("      diff %s at %s: expected %v, actual %v\n", diff.Type, diff.Path, diff.Expected, diff.Actual)
		}
	}

	fmt.Printf("\nTotal: %d  Passed: %d  Failed: %d  Skipped: %d  Duration: %dms\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.Duration)
}
