package health

import "ttl-kvstore/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// ---------- RULES ----------

// Failed saves mean memory and disk have diverged.
func SaveFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.PersistSaveFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Snapshot writes have failed",
			Recommendation: "Check disk space and permissions, then call Flush to resync the file",
			Severity:       StatusCritical,
		}
	}
	return RuleResult{}
}

// A failed load means the store booted empty over an existing file.
func LoadFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.PersistLoadFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Snapshot could not be loaded at startup",
			Recommendation: "Inspect the snapshot file before the next write replaces it",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Snapshots above the advisory ceiling are still written but should not grow further.
func OversizeRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.PersistOversizeSavesTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Snapshot exceeds the configured size ceiling",
			Recommendation: "Remove unused keys or shorten TTLs",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
