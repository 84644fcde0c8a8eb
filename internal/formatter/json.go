package formatter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// JSON renders a structured document. A failed project carries an error
// object and a null merge request list; a successful one always carries a
// list, possibly empty.
type JSON struct{}

// Document is the JSON export schema.
type Document struct {
	GeneratedAt       time.Time         `json:"generated_at"`
	MergeRequestCount int               `json:"merge_request_count"`
	FailedProjects    int               `json:"failed_projects"`
	Projects          []DocumentProject `json:"projects"`
}

// DocumentProject is one aggregation entry.
type DocumentProject struct {
	Name          string                `json:"name"`
	ID            string                `json:"id"`
	Forge         string                `json:"forge"`
	WebURL        string                `json:"web_url,omitempty"`
	MergeRequests []domain.MergeRequest `json:"merge_requests"`
	Error         *DocumentError        `json:"error,omitempty"`
}

// DocumentError describes why a project could not be fetched.
type DocumentError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (JSON) ContentType() string { return "application/json" }

func (JSON) Render(result domain.AggregationResult, opts Options) ([]byte, error) {
	doc := Document{
		GeneratedAt:       opts.now().UTC(),
		MergeRequestCount: result.MergeRequestCount(),
		FailedProjects:    result.FailedCount(),
		Projects:          make([]DocumentProject, 0, len(result.Entries)),
	}
	for _, entry := range result.Entries {
		p := DocumentProject{
			Name:   entry.Project.DisplayName(),
			ID:     entry.Project.ID,
			Forge:  entry.Project.ForgeID,
			WebURL: entry.Project.WebURL,
		}
		if entry.Failed() {
			p.Error = &DocumentError{Kind: domain.KindOf(entry.Err), Message: errorMessage(entry.Err)}
		} else {
			p.MergeRequests = entry.MergeRequests
			if p.MergeRequests == nil {
				p.MergeRequests = []domain.MergeRequest{}
			}
		}
		doc.Projects = append(doc.Projects, p)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	return append(data, '\n'), nil
}
