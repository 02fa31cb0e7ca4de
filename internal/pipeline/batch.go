package pipeline

import (
	"context"

	"github.com/MeKo-Tech/pbrgen/internal/naming"
	"github.com/MeKo-Tech/pbrgen/internal/worker"
)

// Failure is a source that could not be processed.
type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Report is the single structured result of a batch run.
type Report struct {
	Generated []string      `json:"generated"`
	Failed    []Failure     `json:"failed"`
	Skipped   []naming.Skip `json:"skipped"`
}

// NewReport returns a report whose slices encode as [] rather than null.
func NewReport() Report {
	return Report{
		Generated: []string{},
		Failed:    []Failure{},
		Skipped:   []naming.Skip{},
	}
}

// HasFailures reports whether any source failed.
func (r Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Run processes every source of plan with the given number of workers.
// Generated paths follow source traversal order regardless of concurrency.
func (g *Generator) Run(ctx context.Context, plan naming.Plan, workers int, onProgress worker.ProgressFunc) Report {
	report := NewReport()
	report.Skipped = append(report.Skipped, plan.Skipped...)

	for _, s := range plan.Skipped {
		g.log().Debug("Skipping file", "path", s.Path, "reason", s.Reason)
	}

	pool := worker.New(worker.Config{
		Workers:    workers,
		Generator:  g,
		OnProgress: onProgress,
	})

	for _, res := range pool.Run(ctx, worker.TasksFor(plan.Sources)) {
		report.Generated = append(report.Generated, res.Paths...)
		if res.Err != nil {
			g.log().Error("Failed to process source", "source", res.Task.Source.Path, "error", res.Err)
			report.Failed = append(report.Failed, Failure{
				Source: res.Task.Source.Path,
				Error:  res.Err.Error(),
			})
		}
	}

	g.log().Info("Batch complete",
		"root", plan.Root,
		"mode", plan.Mode.String(),
		"sources", len(plan.Sources),
		"generated", len(report.Generated),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped))

	return report
}
