package health

import (
	"strings"

	"ttl-kvstore/internal/logs"
	"ttl-kvstore/internal/metrics"
)

// Analyzer converts metrics + logs into a health report.
type Analyzer struct {
	metrics *metrics.Registry
	logger  *logs.Logger
	rules   []Rule
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(
	reg *metrics.Registry,
	logger *logs.Logger,
) *Analyzer {
	return &Analyzer{
		metrics: reg,
		logger:  logger,
		rules: []Rule{
			SaveFailureRule,
			LoadFailureRule,
			OversizeRule,
		},
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}

		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)

		status = escalate(status, result.Severity)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	sweepFailures := 0
	for _, entry := range a.logger.GetLast(100) {
		if entry.Level == logs.ERROR &&
			strings.Contains(entry.Message, "ttl sweep failed") {
			sweepFailures++
		}
	}

	if sweepFailures >= 3 {
		signals = append(signals,
			"Repeated background sweep failures detected in logs",
		)
		recommendations = append(recommendations,
			"Expired keys are accumulating; check the snapshot path",
		)
		status = escalate(status, StatusDegraded)
	}

	/* ---------- SUMMARY ---------- */

	summary := "Store is healthy"
	if status != StatusOK {
		summary = "Store health issues detected"
	}

	return Report{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}

func escalate(current, severity Status) Status {
	if severity == StatusCritical {
		return StatusCritical
	}
	if severity == StatusDegraded && current == StatusOK {
		return StatusDegraded
	}
	return current
}
