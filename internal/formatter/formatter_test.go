package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/naka-gawa/mrnag/internal/domain"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixtureResult() domain.AggregationResult {
	foo := domain.Project{Name: "Foo", ID: "101", ForgeID: "corp", WebURL: "https://gitlab.example.com/foo"}
	bar := domain.Project{Name: "Bar", ID: "acme/bar", ForgeID: "hub"}
	empty := domain.Project{Name: "Quiet", ID: "202", ForgeID: "corp"}

	mr := func(iid int, state domain.State, age time.Duration) domain.MergeRequest {
		return domain.MergeRequest{
			ID:        fmt.Sprintf("gid-%d", iid),
			IID:       iid,
			Title:     fmt.Sprintf("Change %d", iid),
			URL:       fmt.Sprintf("https://gitlab.example.com/foo/-/merge_requests/%d", iid),
			Author:    "Jane Doe",
			State:     state,
			CreatedAt: testNow.Add(-age),
			Approvals: domain.Approvals{Count: 1, Required: 2},
			Labels:    []string{"backend"},
			Project:   &foo,
		}
	}

	return domain.AggregationResult{Entries: []domain.ProjectResult{
		{Project: foo, MergeRequests: []domain.MergeRequest{
			mr(1, domain.StateOpen, 48*time.Hour),
			mr(2, domain.StateDraft, 24*time.Hour),
			mr(3, domain.StateOpen, 96*time.Hour),
		}},
		{Project: bar, Err: domain.NewFetchError(domain.ErrAuthConfiguration, "hub", "acme/bar",
			fmt.Errorf("%w: set HUB_GITHUB_TOKEN", domain.ErrAuthConfiguration))},
		{Project: empty, MergeRequests: []domain.MergeRequest{}},
	}}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"csv", "json", "markdown", "md", "slack", "text", "xlsx"}, r.Names())

	f, err := r.Get("JSON")
	require.NoError(t, err)
	assert.IsType(t, JSON{}, f)

	_, err = r.Get("pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "pdf")
}

func TestEveryFormatterSurfacesFailures(t *testing.T) {
	result := fixtureResult()
	opts := Options{Now: testNow}

	for _, name := range []string{"text", "markdown", "json", "csv", "slack"} {
		t.Run(name, func(t *testing.T) {
			f, err := DefaultRegistry().Get(name)
			require.NoError(t, err)

			out, err := f.Render(result, opts)
			require.NoError(t, err)
			assert.Contains(t, string(out), "Bar")
			assert.Contains(t, string(out), "HUB_GITHUB_TOKEN")
			assert.Contains(t, string(out), "Change 3")
		})
	}
}

func TestRenderDoesNotMutateResult(t *testing.T) {
	result := fixtureResult()
	before := result.Clone()

	for _, name := range DefaultRegistry().Names() {
		f, err := DefaultRegistry().Get(name)
		require.NoError(t, err)
		_, err = f.Render(result, Options{Now: testNow})
		require.NoError(t, err, name)
	}
	assert.Equal(t, before, result)
}

func TestJSON(t *testing.T) {
	out, err := JSON{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, testNow, doc.GeneratedAt)
	assert.Equal(t, 3, doc.MergeRequestCount)
	assert.Equal(t, 1, doc.FailedProjects)
	require.Len(t, doc.Projects, 3)

	foo := doc.Projects[0]
	assert.Equal(t, "Foo", foo.Name)
	assert.Nil(t, foo.Error)
	require.Len(t, foo.MergeRequests, 3)
	assert.Equal(t, "gid-1", foo.MergeRequests[0].ID)
	assert.Equal(t, "Change 1", foo.MergeRequests[0].Title)
	assert.Equal(t, "https://gitlab.example.com/foo/-/merge_requests/1", foo.MergeRequests[0].URL)
	assert.Equal(t, domain.StateDraft, foo.MergeRequests[1].State)

	bar := doc.Projects[1]
	require.NotNil(t, bar.Error)
	assert.Equal(t, "auth_configuration", bar.Error.Kind)
	assert.Nil(t, bar.MergeRequests)

	// an empty success is an empty list, not null
	assert.Contains(t, string(out), `"merge_requests": []`)
	assert.Contains(t, string(out), `"merge_requests": null`)
}

func TestCSV(t *testing.T) {
	out, err := CSV{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5) // header, three merge requests, one failure

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Change 1", records[1][2])
	assert.Equal(t, "1", records[1][7])
	assert.Equal(t, "2", records[1][8])
	assert.Empty(t, records[1][11])

	failure := records[4]
	assert.Equal(t, "Bar", failure[0])
	assert.Empty(t, failure[2])
	assert.True(t, strings.HasPrefix(failure[11], "auth_configuration: "))
}

func TestText(t *testing.T) {
	out, err := Text{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "There are 3 merge requests in 1 project; 1 project could not be fetched.")
	assert.Contains(t, s, "ERROR (auth_configuration)")
	assert.Contains(t, s, "no merge requests")
	assert.Contains(t, s, "1/2")
}

func TestMarkdown(t *testing.T) {
	out, err := Markdown{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "## [Foo](https://gitlab.example.com/foo)")
	assert.Contains(t, s, "### [Change 1](https://gitlab.example.com/foo/-/merge_requests/1)")
	assert.Contains(t, s, "2 days ago")
	assert.Contains(t, s, "(draft)")
	assert.Contains(t, s, "> :warning: **Could not fetch merge requests** (auth_configuration)")
	assert.Contains(t, s, "_No merge requests._")
}

func TestMarkdownEscapesLinkText(t *testing.T) {
	result := domain.AggregationResult{Entries: []domain.ProjectResult{{
		Project: domain.Project{Name: "Docs [beta]", ID: "7", ForgeID: "corp", WebURL: "https://gitlab.example.com/docs"},
		MergeRequests: []domain.MergeRequest{{
			Title:     "Fix ](https://evil.example) link",
			URL:       "https://gitlab.example.com/docs/-/merge_requests/1",
			Labels:    []string{"needs (review)", "[x]"},
			CreatedAt: testNow,
		}},
	}}}

	out, err := Markdown{}.Render(result, Options{Now: testNow})
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `## [Docs \[beta\]](https://gitlab.example.com/docs)`)
	assert.Contains(t, s, `### [Fix \]\(https://evil.example\) link](https://gitlab.example.com/docs/-/merge_requests/1)`)
	assert.Contains(t, s, `labels: needs \(review\), \[x\]`)
	assert.NotContains(t, s, "](https://evil.example)")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "plain", escapeMarkdown("plain"))
	assert.Equal(t, `a\\b \[c\] \(d\)`, escapeMarkdown(`a\b [c] (d)`))
}

// sectionTexts returns the text of every section block in order.
func sectionTexts(blocks []slack.Block) []string {
	var texts []string
	for _, b := range blocks {
		if section, ok := b.(*slack.SectionBlock); ok && section.Text != nil {
			texts = append(texts, section.Text.Text)
		}
	}
	return texts
}

func TestSlack(t *testing.T) {
	msg := Slack{}.Message(fixtureResult(), Options{Now: testNow, Requestor: "jdoe"})

	assert.Equal(t, ResponseEphemeral, msg.ResponseType)
	texts := sectionTexts(msg.Blocks.BlockSet)
	require.NotEmpty(t, texts)
	assert.Equal(t, "jdoe says there are _3_ open merge requests in _1_ project. :warning: 1 project could not be fetched.",
		texts[0])

	all := strings.Join(texts, "\n")
	assert.Contains(t, all, "*<https://gitlab.example.com/foo|Foo>* (1 draft)")
	assert.Contains(t, all, "<https://gitlab.example.com/foo/-/merge_requests/1|1/2 approvals>")
	assert.Contains(t, all, "*Bar*\n:warning: could not fetch merge requests (auth_configuration)")
	assert.NotContains(t, all, "Quiet")
}

func TestSlackRenderIsBlockKit(t *testing.T) {
	out, err := Slack{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	var msg slack.Msg
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, ResponseEphemeral, msg.ResponseType)
	require.NotEmpty(t, msg.Blocks.BlockSet)
	assert.Equal(t, slack.MBTSection, msg.Blocks.BlockSet[0].BlockType())
	assert.Equal(t, slack.MBTDivider, msg.Blocks.BlockSet[1].BlockType())

	section, ok := msg.Blocks.BlockSet[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Equal(t, slack.MarkdownType, section.Text.Type)
}

func TestSlackDefaultsRequestorAndTruncates(t *testing.T) {
	mrs := make([]domain.MergeRequest, 80)
	for i := range mrs {
		mrs[i] = domain.MergeRequest{Title: fmt.Sprintf("MR %d", i), URL: "https://example.com", CreatedAt: testNow}
	}
	result := domain.AggregationResult{Entries: []domain.ProjectResult{
		{Project: domain.Project{ID: "1", ForgeID: "corp"}, MergeRequests: mrs},
	}}

	msg := Slack{}.Message(result, Options{Now: testNow, ResponseType: ResponseInChannel})
	assert.Equal(t, ResponseInChannel, msg.ResponseType)
	require.Len(t, msg.Blocks.BlockSet, MaxSlackBlocks)
	texts := sectionTexts(msg.Blocks.BlockSet)
	assert.True(t, strings.HasPrefix(texts[0], "Mr. Nag says"))
	assert.Contains(t, texts[len(texts)-1], "more blocks omitted")
}

func TestXLSX(t *testing.T) {
	out, err := XLSX{}.Render(fixtureResult(), Options{Now: testNow})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{mergeRequestSheet, errorSheet}, book.GetSheetList())

	rows, err := book.GetRows(mergeRequestSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Change 1", rows[1][2])
	assert.Equal(t, "2", rows[1][6])

	errRows, err := book.GetRows(errorSheet)
	require.NoError(t, err)
	require.Len(t, errRows, 2)
	assert.Equal(t, []string{"Bar", "hub", "auth_configuration"}, errRows[1][:3])
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixtureResult(), testNow)

	assert.Equal(t, 3, s.MergeRequests)
	assert.Equal(t, 3, s.Projects)
	assert.Equal(t, 1, s.ProjectsWithMRs)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Drafts)
	assert.InDelta(t, 2.0, s.MedianAgeDays, 0.001)
	assert.InDelta(t, 7.0/3, s.MeanAgeDays, 0.001)
	assert.InDelta(t, 4.0, s.OldestAgeDays, 0.001)

	assert.Empty(t, Summarize(domain.AggregationResult{}, testNow).AgeLine())
}
