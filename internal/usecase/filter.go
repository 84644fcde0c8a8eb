package usecase

import (
	"strings"
	"time"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Filter is a predicate over merge requests; true keeps the merge request.
type Filter func(domain.MergeRequest) bool

// Apply keeps the merge requests that satisfy every filter. It returns a new
// result: entries are never added or removed, failed entries pass through
// untouched, and a successful entry stays successful even when nothing matches.
func Apply(filters []Filter, result domain.AggregationResult) domain.AggregationResult {
	out := domain.AggregationResult{Entries: make([]domain.ProjectResult, len(result.Entries))}
	for i, entry := range result.Entries {
		out.Entries[i] = entry
		if entry.Failed() {
			continue
		}
		kept := make([]domain.MergeRequest, 0, len(entry.MergeRequests))
		for _, mr := range entry.MergeRequests {
			if matchesAll(filters, mr) {
				kept = append(kept, mr)
			}
		}
		out.Entries[i].MergeRequests = kept
	}
	return out
}

func matchesAll(filters []Filter, mr domain.MergeRequest) bool {
	for _, f := range filters {
		if !f(mr) {
			return false
		}
	}
	return true
}

// ByState keeps merge requests in any of the given states.
func ByState(states ...domain.State) Filter {
	return func(mr domain.MergeRequest) bool {
		for _, s := range states {
			if mr.State == s {
				return true
			}
		}
		return false
	}
}

// OnlyDrafts keeps draft (WIP) merge requests.
func OnlyDrafts() Filter {
	return func(mr domain.MergeRequest) bool { return mr.IsDraft() }
}

// ExcludeDrafts drops draft (WIP) merge requests.
func ExcludeDrafts() Filter {
	return func(mr domain.MergeRequest) bool { return !mr.IsDraft() }
}

// WithAnyLabel keeps merge requests carrying at least one of the labels.
func WithAnyLabel(labels ...string) Filter {
	return func(mr domain.MergeRequest) bool {
		for _, l := range labels {
			if mr.HasLabel(l) {
				return true
			}
		}
		return false
	}
}

// WithoutLabels keeps merge requests carrying none of the labels.
func WithoutLabels(labels ...string) Filter {
	return func(mr domain.MergeRequest) bool {
		for _, l := range labels {
			if mr.HasLabel(l) {
				return false
			}
		}
		return true
	}
}

// MinimumAge keeps merge requests opened at least minAge before now.
func MinimumAge(minAge time.Duration, now time.Time) Filter {
	return func(mr domain.MergeRequest) bool {
		return mr.Age(now) >= minAge
	}
}

// ByAuthor keeps merge requests by any of the authors (case-insensitive).
func ByAuthor(authors ...string) Filter {
	return func(mr domain.MergeRequest) bool {
		for _, a := range authors {
			if strings.EqualFold(mr.Author, a) {
				return true
			}
		}
		return false
	}
}
