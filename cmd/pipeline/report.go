package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/metrics"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// sentryReporter sends aborted runs and runs with no successes to Sentry.
// Every run leaves a breadcrumb.
type sentryReporter struct {
	logger *slog.Logger
}

func (r sentryReporter) ReportRun(run model.RunSnapshot) {
	outcome := metrics.Outcome(run)

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "pipeline",
		Message:  fmt.Sprintf("%s run %s: %s", run.Mode, run.ID, outcome),
		Level:    sentry.LevelInfo,
		Data: map[string]interface{}{
			"succeeded": len(run.Succeeded),
			"failed":    len(run.Failed),
			"records":   run.TotalRecords,
		},
	})

	if !shouldReport(run) {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("mode", string(run.Mode))
		scope.SetTag("outcome", outcome)
		scope.SetTag("run_id", run.ID.String())
		scope.SetExtra("symbols", run.Symbols)
		scope.SetExtra("failed", run.Failed)
		scope.SetExtra("errors", run.Errors)
		scope.SetExtra("warnings", run.Warnings)
		sentry.CaptureMessage(reportMessage(run, outcome))
	})
	r.logger.Info("run reported to sentry", "run_id", run.ID, "outcome", outcome)
}

// shouldReport is true for aborted runs and runs where no symbol succeeded.
func shouldReport(run model.RunSnapshot) bool {
	return run.Aborted || (len(run.Symbols) > 0 && len(run.Succeeded) == 0)
}

func reportMessage(run model.RunSnapshot, outcome string) string {
	msg := fmt.Sprintf("%s pipeline run %s", run.Mode, outcome)
	if len(run.Errors) > 0 {
		msg += ": " + strings.Join(run.Errors[:min(3, len(run.Errors))], "; ")
	}
	return msg
}
