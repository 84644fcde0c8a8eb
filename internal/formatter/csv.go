package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// CSV renders one row per merge request. A failed project becomes a single
// row with the Error column filled and the merge request columns blank.
type CSV struct{}

var csvHeader = []string{
	"Project", "Forge", "Title", "Author", "State", "Created", "Last Updated",
	"Total Approvals", "Required Approvals", "Labels", "URL", "Error",
}

func (CSV) ContentType() string { return "text/csv; charset=utf-8" }

func (CSV) Render(result domain.AggregationResult, _ Options) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{csvHeader}
	for _, entry := range result.Entries {
		name := entry.Project.DisplayName()
		if entry.Failed() {
			rows = append(rows, []string{
				name, entry.Project.ForgeID, "", "", "", "", "", "", "", "", "",
				fmt.Sprintf("%s: %s", domain.KindOf(entry.Err), errorMessage(entry.Err)),
			})
			continue
		}
		for _, mr := range entry.MergeRequests {
			rows = append(rows, []string{
				name,
				entry.Project.ForgeID,
				mr.Title,
				mr.Author,
				string(mr.State),
				mr.CreatedAt.Format(time.RFC3339),
				formatOptionalTime(mr.UpdatedAt),
				strconv.Itoa(mr.Approvals.Count),
				strconv.Itoa(mr.Approvals.Required),
				strings.Join(mr.Labels, ","),
				mr.URL,
				"",
			})
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
