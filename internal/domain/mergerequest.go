package domain

import (
	"fmt"
	"strings"
	"time"
)

// State is the canonical lifecycle state of a merge request.
type State string

const (
	StateOpen   State = "open"
	StateMerged State = "merged"
	StateClosed State = "closed"
	StateDraft  State = "draft"
)

// ParseState accepts the canonical names plus the common forge spellings.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "opened":
		return StateOpen, nil
	case "merged":
		return StateMerged, nil
	case "closed":
		return StateClosed, nil
	case "draft", "wip":
		return StateDraft, nil
	default:
		return "", fmt.Errorf("unknown merge request state %q", s)
	}
}

// Approvals counts reviewers that approved a merge request.
type Approvals struct {
	Count    int `json:"count"`
	Required int `json:"required"`
}

// MergeRequest is the forge-independent representation of a merge request
// (GitLab) or pull request (GitHub).
type MergeRequest struct {
	ID           string    `json:"id"`
	IID          int       `json:"iid"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Author       string    `json:"author"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Approvals    Approvals `json:"approvals"`
	Labels       []string  `json:"labels"`

	// Project points back at the configured project; it is never serialized.
	Project *Project `json:"-"`
}

// IsDraft reports whether the merge request is marked as a draft / WIP.
func (mr MergeRequest) IsDraft() bool {
	return mr.State == StateDraft
}

// Age is the time elapsed since the merge request was opened.
func (mr MergeRequest) Age(now time.Time) time.Duration {
	return now.Sub(mr.CreatedAt)
}

// HasLabel reports whether the merge request carries the label.
func (mr MergeRequest) HasLabel(label string) bool {
	for _, l := range mr.Labels {
		if l == label {
			return true
		}
	}
	return false
}
