package formatter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/slack-go/slack"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// MaxSlackBlocks is the block limit Slack enforces on a single message.
const MaxSlackBlocks = 50

// Response types accepted by Slack.
const (
	ResponseEphemeral = "ephemeral"
	ResponseInChannel = "in_channel"
)

// Slack renders a Block Kit message. Each failed project gets its own
// warning section and the summary counts the failures.
type Slack struct{}

// Section builds a mrkdwn section block.
func Section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// Divider builds a divider block.
func Divider() *slack.DividerBlock {
	return slack.NewDividerBlock()
}

func (Slack) ContentType() string { return "application/json" }

func (s Slack) Render(result domain.AggregationResult, opts Options) ([]byte, error) {
	data, err := json.Marshal(s.Message(result, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Slack message: %w", err)
	}
	return data, nil
}

// Message builds the Block Kit message for result.
func (Slack) Message(result domain.AggregationResult, opts Options) slack.Msg {
	now := opts.now()
	responseType := opts.ResponseType
	if responseType == "" {
		responseType = ResponseEphemeral
	}

	summary := slackSummary(result, opts.Requestor)
	blocks := []slack.Block{Section(summary)}
	for _, entry := range result.Entries {
		if !entry.Failed() && len(entry.MergeRequests) == 0 {
			continue
		}
		blocks = append(blocks, Divider())
		blocks = append(blocks, projectBlocks(entry, now)...)
	}

	if len(blocks) > MaxSlackBlocks {
		omitted := len(blocks) - (MaxSlackBlocks - 1)
		blocks = append(blocks[:MaxSlackBlocks-1],
			Section(fmt.Sprintf("_%d more %s omitted; run the CLI for the full report._", omitted, plural(omitted, "block", "blocks"))))
	}
	return slack.Msg{ResponseType: responseType, Text: summary, Blocks: slack.Blocks{BlockSet: blocks}}
}

func slackSummary(result domain.AggregationResult, requestor string) string {
	if requestor == "" {
		requestor = "Mr. Nag"
	}
	mrs := result.MergeRequestCount()
	projects := result.ProjectsWithMergeRequests()
	summary := fmt.Sprintf("%s says there %s _%d_ open merge %s in _%d_ %s.",
		requestor, plural(mrs, "is", "are"), mrs, plural(mrs, "request", "requests"),
		projects, plural(projects, "project", "projects"))
	if failed := result.FailedCount(); failed > 0 {
		summary += fmt.Sprintf(" :warning: %d %s could not be fetched.", failed, plural(failed, "project", "projects"))
	}
	return summary
}

func projectBlocks(entry domain.ProjectResult, now time.Time) []slack.Block {
	link := "*" + entry.Project.DisplayName() + "*"
	if entry.Project.WebURL != "" {
		link = fmt.Sprintf("*<%s|%s>*", entry.Project.WebURL, entry.Project.DisplayName())
	}

	if entry.Failed() {
		return []slack.Block{Section(fmt.Sprintf("%s\n:warning: could not fetch merge requests (%s): %s",
			link, domain.KindOf(entry.Err), errorMessage(entry.Err)))}
	}

	drafts := 0
	for _, mr := range entry.MergeRequests {
		if mr.IsDraft() {
			drafts++
		}
	}
	if drafts > 0 {
		link = fmt.Sprintf("%s (%d %s)", link, drafts, plural(drafts, "draft", "drafts"))
	}

	blocks := []slack.Block{Section(link)}
	for _, mr := range entry.MergeRequests {
		var b strings.Builder
		fmt.Fprintf(&b, "*%s*\n%s %s\n", mr.Title, mr.Author, humanize.RelTime(mr.CreatedAt, now, "ago", "from now"))
		fmt.Fprintf(&b, "<%s|%d/%d approvals>", mr.URL, mr.Approvals.Count, mr.Approvals.Required)
		blocks = append(blocks, Section(b.String()))
	}
	return blocks
}
