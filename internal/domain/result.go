package domain

// ProjectResult is the outcome of fetching one project. Exactly one of
// MergeRequests (possibly empty) or Err is meaningful: a non-nil Err means the
// fetch failed, a nil Err with no merge requests means "fetched, nothing found".
type ProjectResult struct {
	Project       Project
	MergeRequests []MergeRequest
	Err           error
}

// Failed reports whether the project could not be fetched.
func (r ProjectResult) Failed() bool {
	return r.Err != nil
}

// AggregationResult holds one entry per configured project, in configuration order.
type AggregationResult struct {
	Entries []ProjectResult
}

// MergeRequestCount counts merge requests across successful entries.
func (r AggregationResult) MergeRequestCount() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.MergeRequests)
	}
	return n
}

// ProjectsWithMergeRequests counts successful entries that hold at least one merge request.
func (r AggregationResult) ProjectsWithMergeRequests() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Failed() && len(e.MergeRequests) > 0 {
			n++
		}
	}
	return n
}

// FailedCount counts entries holding an error.
func (r AggregationResult) FailedCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Failed() {
			n++
		}
	}
	return n
}

// Clone copies the entries and merge request slices so callers can derive a
// new result without touching the original.
func (r AggregationResult) Clone() AggregationResult {
	out := AggregationResult{Entries: make([]ProjectResult, len(r.Entries))}
	for i, e := range r.Entries {
		out.Entries[i] = e
		if e.MergeRequests != nil {
			out.Entries[i].MergeRequests = make([]MergeRequest, len(e.MergeRequests))
			copy(out.Entries[i].MergeRequests, e.MergeRequests)
		}
	}
	return out
}
