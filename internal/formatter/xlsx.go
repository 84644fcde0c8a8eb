package formatter

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/naka-gawa/mrnag/internal/domain"
)

const (
	mergeRequestSheet = "Merge Requests"
	errorSheet        = "Errors"
)

// XLSX renders a workbook with a merge request sheet and an error sheet.
// The error sheet lists every failed project and is present even when empty.
type XLSX struct{}

func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSX) Render(result domain.AggregationResult, opts Options) ([]byte, error) {
	now := opts.now()
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", mergeRequestSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet %q: %w", mergeRequestSheet, err)
	}
	if _, err := book.NewSheet(errorSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet %q: %w", errorSheet, err)
	}

	rows := [][]interface{}{{
		"Project", "Forge", "Title", "Author", "State", "Created", "Age (days)",
		"Total Approvals", "Required Approvals", "Labels", "URL",
	}}
	errRows := [][]interface{}{{"Project", "Forge", "Kind", "Message"}}
	for _, entry := range result.Entries {
		if entry.Failed() {
			errRows = append(errRows, []interface{}{
				entry.Project.DisplayName(), entry.Project.ForgeID, domain.KindOf(entry.Err), errorMessage(entry.Err),
			})
			continue
		}
		for _, mr := range entry.MergeRequests {
			rows = append(rows, []interface{}{
				entry.Project.DisplayName(),
				entry.Project.ForgeID,
				mr.Title,
				mr.Author,
				string(mr.State),
				mr.CreatedAt.UTC().Format("2006-01-02 15:04"),
				int(mr.Age(now).Hours() / 24),
				mr.Approvals.Count,
				mr.Approvals.Required,
				strings.Join(mr.Labels, ", "),
				mr.URL,
			})
		}
	}

	if err := writeRows(book, mergeRequestSheet, rows); err != nil {
		return nil, err
	}
	if err := writeRows(book, errorSheet, errRows); err != nil {
		return nil, err
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(book *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write sheet %q: %w", sheet, err)
		}
	}
	return nil
}
