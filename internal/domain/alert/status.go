package alert

// OverallStatus is the rollup of all alerts raised in one run.
type OverallStatus string

const (
	StatusGood            OverallStatus = "good"
	StatusAttentionNeeded OverallStatus = "attention_needed"
	StatusCritical        OverallStatus = "critical"
)

// Rollup computes the overall status from alert severities: critical if any
// is high or critical, attention_needed if any is medium, good otherwise.
func Rollup(severities []Severity) OverallStatus {
	status := StatusGood
	for _, s := range severities {
		switch {
		case s.AtLeast(SeverityHigh):
			return StatusCritical
		case s == SeverityMedium:
			status = StatusAttentionNeeded
		}
	}
	return status
}
