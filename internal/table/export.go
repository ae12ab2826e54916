package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"fwlens/internal/schema"
)

// Derived column headers, in the documented export order: they lead
// the output, followed by the original export columns.
var derivedColumns = []string{
	"Exception",
	"Expiration Status",
	"Request History",
	"Usage Status",
}

// ExportCSV writes the annotated table to a file. Projection happens
// exactly once here: derived columns first, then the original columns
// in their export order. Scratch state (normalized keys, parse
// intermediates) never had columns to begin with, so nothing needs
// dropping.
func (t *Table) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := t.WriteCSV(f); err != nil {
		return err
	}
	return f.Sync()
}

// WriteCSV writes the annotated table to a writer.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := append(append([]string{}, derivedColumns...), t.Columns...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range t.Records {
		row := make([]string, 0, len(header))
		row = append(row,
			rec.ExceptionTag,
			string(rec.Expiration),
			requestHistory(rec),
			string(rec.Usage),
		)
		for _, col := range t.Columns {
			row = append(row, exportCell(rec, col))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Leading columns of the redundancy report.
var dedupColumns = []string{"Group", "Role"}

// ExportDedupCSV writes the redundancy report to a file.
func (t *Table) ExportDedupCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := t.WriteDedupCSV(f); err != nil {
		return err
	}
	return f.Sync()
}

// WriteDedupCSV writes the redundancy report: only grouped records,
// group ascending with the primary first, group and role columns ahead
// of the original columns.
func (t *Table) WriteDedupCSV(w io.Writer) error {
	grouped := make([]*schema.PolicyRecord, 0)
	for _, rec := range t.Records {
		if rec.GroupID > 0 {
			grouped = append(grouped, rec)
		}
	}
	sort.SliceStable(grouped, func(i, j int) bool {
		a, b := grouped[i], grouped[j]
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		return a.DuplicateRole == schema.RolePrimary && b.DuplicateRole != schema.RolePrimary
	})

	writer := csv.NewWriter(w)

	header := append(append([]string{}, dedupColumns...), t.Columns...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range grouped {
		row := make([]string, 0, len(header))
		row = append(row,
			strconv.Itoa(rec.GroupID),
			string(rec.DuplicateRole),
		)
		for _, col := range t.Columns {
			row = append(row, exportCell(rec, col))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// requestHistory renders the record's request-type provenance.
func requestHistory(rec *schema.PolicyRecord) string {
	if rec.Identity == nil {
		return string(schema.RequestUnknown)
	}
	return string(rec.Identity.RequestType)
}

// exportCell maps an original export column back to the record field.
func exportCell(rec *schema.PolicyRecord, col string) string {
	switch col {
	case "Enable":
		if rec.Enabled {
			return "Y"
		}
		return "N"
	case "Action":
		if rec.RawAction != "" {
			return rec.RawAction
		}
		return string(rec.Action)
	case "Source":
		return rec.Source
	case "User":
		return rec.User
	case "Destination":
		return rec.Destination
	case "Service":
		return rec.Service
	case "Application":
		return rec.Application
	case "Category":
		return rec.Category
	case "Vsys":
		return rec.Vsys
	case "Rule Name":
		return rec.RuleName
	case "Description":
		return rec.Description
	}
	return ""
}
