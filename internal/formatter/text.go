package formatter

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Text renders a plain-text table per project.
// Failed projects get an inline ERROR line and are counted in the header.
type Text struct{}

func (Text) ContentType() string { return "text/plain; charset=utf-8" }

func (Text) Render(result domain.AggregationResult, opts Options) ([]byte, error) {
	now := opts.now()
	summary := Summarize(result, now)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Mr. Nag report %s\n%s\n", now.Format("2006-01-02"), summary.Headline())
	if line := summary.AgeLine(); line != "" {
		fmt.Fprintln(&buf, line)
	}

	for _, entry := range result.Entries {
		fmt.Fprintf(&buf, "\n%s\n", entry.Project.DisplayName())
		if entry.Failed() {
			fmt.Fprintf(&buf, "  ERROR (%s): %s\n", domain.KindOf(entry.Err), errorMessage(entry.Err))
			continue
		}
		if len(entry.MergeRequests) == 0 {
			fmt.Fprintln(&buf, "  no merge requests")
			continue
		}

		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  TITLE\tAUTHOR\tSTATE\tAGE\tAPPROVALS\tURL")
		for _, mr := range entry.MergeRequests {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%dd\t%d/%d\t%s\n",
				mr.Title, mr.Author, mr.State, int(mr.Age(now).Hours()/24),
				mr.Approvals.Count, mr.Approvals.Required, mr.URL)
		}
		if err := tw.Flush(); err != nil {
			return nil, fmt.Errorf("failed to write table: %w", err)
		}
	}
	return buf.Bytes(), nil
}
