package formatter

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Summary holds the headline numbers of a report.
type Summary struct {
	MergeRequests   int
	Projects        int
	ProjectsWithMRs int
	Failed          int
	Drafts          int
	MedianAgeDays   float64
	MeanAgeDays     float64
	OldestAgeDays   float64
}

// Summarize computes counts and age statistics over successful entries.
func Summarize(result domain.AggregationResult, now time.Time) Summary {
	s := Summary{
		MergeRequests:   result.MergeRequestCount(),
		Projects:        len(result.Entries),
		ProjectsWithMRs: result.ProjectsWithMergeRequests(),
		Failed:          result.FailedCount(),
	}

	ages := make(stats.Float64Data, 0, s.MergeRequests)
	for _, e := range result.Entries {
		for _, mr := range e.MergeRequests {
			ages = append(ages, mr.Age(now).Hours()/24)
			if mr.IsDraft() {
				s.Drafts++
			}
		}
	}
	if len(ages) == 0 {
		return s
	}
	s.MedianAgeDays, _ = stats.Median(ages)
	s.MeanAgeDays, _ = stats.Mean(ages)
	s.OldestAgeDays, _ = stats.Max(ages)
	return s
}

// Headline is the one-line summary shared by the text formatters.
func (s Summary) Headline() string {
	line := fmt.Sprintf("There %s %d merge %s in %d %s",
		plural(s.MergeRequests, "is", "are"), s.MergeRequests, plural(s.MergeRequests, "request", "requests"),
		s.ProjectsWithMRs, plural(s.ProjectsWithMRs, "project", "projects"))
	if s.Failed > 0 {
		line += fmt.Sprintf("; %d %s could not be fetched", s.Failed, plural(s.Failed, "project", "projects"))
	}
	return line + "."
}

// AgeLine describes the age distribution, or "" when there is nothing to describe.
func (s Summary) AgeLine() string {
	if s.MergeRequests == 0 {
		return ""
	}
	return fmt.Sprintf("Median age %.1f days, mean %.1f days, oldest %.1f days.", s.MedianAgeDays, s.MeanAgeDays, s.OldestAgeDays)
}
