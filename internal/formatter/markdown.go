package formatter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Markdown renders a report with one section per project.
// Failed projects get an inline warning quote under their heading.
type Markdown struct{}

func (Markdown) ContentType() string { return "text/markdown; charset=utf-8" }

func (Markdown) Render(result domain.AggregationResult, opts Options) ([]byte, error) {
	now := opts.now()
	summary := Summarize(result, now)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Mr. Nag: %s\n\n%s\n", now.Format("2006-01-02"), summary.Headline())
	if line := summary.AgeLine(); line != "" {
		fmt.Fprintf(&buf, "%s\n", line)
	}

	for _, entry := range result.Entries {
		fmt.Fprintf(&buf, "\n## %s\n\n", projectLink(entry.Project))
		if entry.Failed() {
			fmt.Fprintf(&buf, "> :warning: **Could not fetch merge requests** (%s): %s\n",
				domain.KindOf(entry.Err), errorMessage(entry.Err))
			continue
		}
		if len(entry.MergeRequests) == 0 {
			buf.WriteString("_No merge requests._\n")
			continue
		}
		for _, mr := range entry.MergeRequests {
			fmt.Fprintf(&buf, "### [%s](%s)\n\n", escapeMarkdown(mr.Title), mr.URL)
			fmt.Fprintf(&buf, "%s, opened %s", mr.Author, humanize.RelTime(mr.CreatedAt, now, "ago", "from now"))
			if mr.IsDraft() {
				buf.WriteString(" (draft)")
			}
			fmt.Fprintf(&buf, "  \n%d/%d approvals", mr.Approvals.Count, mr.Approvals.Required)
			if len(mr.Labels) > 0 {
				fmt.Fprintf(&buf, ", labels: %s", escapeMarkdown(strings.Join(mr.Labels, ", ")))
			}
			buf.WriteString("\n\n")
		}
	}
	return buf.Bytes(), nil
}

// markdownEscaper escapes the characters that would let forge text open or
// close a link.
var markdownEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func projectLink(p domain.Project) string {
	if p.WebURL == "" {
		return escapeMarkdown(p.DisplayName())
	}
	return fmt.Sprintf("[%s](%s)", escapeMarkdown(p.DisplayName()), p.WebURL)
}
