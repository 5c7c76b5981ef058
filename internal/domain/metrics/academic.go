package metrics

import (
	"slices"
	"time"
)

// RecentScoresLimit caps AcademicSnapshot.RecentScores.
const RecentScoresLimit = 10

// ScoreEntry is the serialized form of one assessment inside a snapshot.
type ScoreEntry struct {
	Subject    string  `json:"subject,omitempty"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Date       string  `json:"date"`
}

// SubjectSummary aggregates the assessments of one subject.
type SubjectSummary struct {
	Average      float64      `json:"average"`
	Count        int          `json:"count"`
	RecentScores []ScoreEntry `json:"recent_scores"`
}

// AcademicSnapshot is the aggregated academic view over the full history.
type AcademicSnapshot struct {
	TotalAssessments int                       `json:"total_assessments"`
	AverageScore     float64                   `json:"average_score"`
	Subjects         map[string]SubjectSummary `json:"subjects"`
	RecentScores     []ScoreEntry              `json:"recent_scores"`
	Trend            Trend                     `json:"trend"`
}

// EmptyAcademicSnapshot returns the zero-value snapshot.
func EmptyAcademicSnapshot() AcademicSnapshot {
	return AcademicSnapshot{
		Subjects:     map[string]SubjectSummary{},
		RecentScores: []ScoreEntry{},
		Trend:        TrendNoData,
	}
}

// SummarizeAcademic aggregates scores evaluated at now. The mean is the
// unweighted mean of per-record percentages.
func SummarizeAcademic(scores []AcademicScore, now time.Time) AcademicSnapshot {
	if len(scores) == 0 {
		return EmptyAcademicSnapshot()
	}

	ordered := slices.Clone(scores)
	slices.SortStableFunc(ordered, func(a, b AcademicScore) int {
		return b.Date.Compare(a.Date)
	})

	snap := AcademicSnapshot{
		TotalAssessments: len(ordered),
		AverageScore:     round2(meanPercentage(ordered)),
		Subjects:         make(map[string]SubjectSummary),
		RecentScores:     make([]ScoreEntry, 0, RecentScoresLimit),
	}

	sums := make(map[string]float64)
	for _, s := range ordered {
		sub := snap.Subjects[s.Subject]
		sub.Count++
		sub.RecentScores = append(sub.RecentScores, ScoreEntry{
			Type:       s.AssessmentType,
			Score:      s.Score,
			MaxScore:   s.MaxScore,
			Percentage: s.Percentage,
			Date:       s.Date.Format(time.RFC3339),
		})
		snap.Subjects[s.Subject] = sub
		sums[s.Subject] += s.Percentage
	}
	for name, sub := range snap.Subjects {
		sub.Average = sums[name] / float64(sub.Count)
		snap.Subjects[name] = sub
	}

	for _, s := range ordered[:min(RecentScoresLimit, len(ordered))] {
		snap.RecentScores = append(snap.RecentScores, ScoreEntry{
			Subject:    s.Subject,
			Type:       s.AssessmentType,
			Score:      s.Score,
			MaxScore:   s.MaxScore,
			Percentage: s.Percentage,
			Date:       s.Date.Format(time.RFC3339),
		})
	}

	snap.Trend = ClassifyTrend(ordered, now, AcademicWindow,
		func(s AcademicScore) time.Time { return s.Date },
		meanPercentage,
	)
	return snap
}

func meanPercentage(scores []AcademicScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Percentage
	}
	return sum / float64(len(scores))
}
