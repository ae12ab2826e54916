// Package table loads and writes the tabular rule exports the engine
// works on. Collectors deliver headered CSV with a fixed column
// contract; this package maps those rows onto schema records and
// projects annotated records back out with a fixed column order.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"fwlens/internal/schema"
)

// Required policy export columns. User, Application, Category, and
// Vsys are vendor-dependent and optional.
var requiredColumns = []string{"Enable", "Action", "Source", "Destination", "Service", "Rule Name"}

// Table is the working table: the records in export order plus the
// original column header, preserved for export.
type Table struct {
	Columns []string
	Records []*schema.PolicyRecord
	Vendor  schema.Vendor
}

// LoadPolicyCSV reads a policy export. Rows that fail schema
// validation are logged and dropped; a missing required column fails
// the whole load, since no stage can run without it.
func LoadPolicyCSV(path string, vendor schema.Vendor, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy export: %w", err)
	}
	defer f.Close()

	return ReadPolicyCSV(f, vendor, logger)
}

// ReadPolicyCSV reads a policy export from a reader.
func ReadPolicyCSV(r io.Reader, vendor schema.Vendor, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("required column %q is missing", col)
		}
	}

	validator := schema.NewValidator()
	t := &Table{Columns: header, Vendor: vendor}
	line := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping malformed row", "line", line, "error", err)
			continue
		}

		cell := func(col string) string {
			if i, ok := index[col]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}

		rec := &schema.PolicyRecord{
			Enabled:     cell("Enable") == "Y",
			RawAction:   cell("Action"),
			Action:      schema.ParseAction(cell("Action")),
			Source:      cell("Source"),
			User:        cell("User"),
			Destination: cell("Destination"),
			Service:     cell("Service"),
			Application: cell("Application"),
			Category:    cell("Category"),
			Vsys:        cell("Vsys"),
			RuleName:    cell("Rule Name"),
			Description: cell("Description"),
			Vendor:      vendor,
			Usage:       schema.UsageUnknown,
		}

		if err := validator.ValidateRecord(rec); err != nil {
			logger.Warn("dropping invalid row", "line", line, "error", err)
			continue
		}
		t.Records = append(t.Records, rec)
	}

	logger.Info("policy export loaded", "records", len(t.Records), "vendor", vendor)
	return t, nil
}

// LoadUsageCSV reads a hit-count table keyed by rule name.
func LoadUsageCSV(path string, logger *slog.Logger) ([]schema.UsageStat, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	if _, ok := index["Rule Name"]; !ok {
		return nil, fmt.Errorf("required column %q is missing", "Rule Name")
	}

	var stats []schema.UsageStat
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping malformed usage row", "line", line, "error", err)
			continue
		}
		cell := func(col string) string {
			if i, ok := index[col]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}
		stat := schema.UsageStat{
			RuleName:    cell("Rule Name"),
			LastHitDate: cell("Last Hit Date"),
		}
		if raw := cell("Unused Days"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				days := n
				stat.UnusedDays = &days
			} else {
				logger.Warn("ignoring malformed unused days", "line", line, "value", raw)
			}
		}
		if stat.RuleName == "" {
			logger.Warn("skipping usage row without rule name", "line", line)
			continue
		}
		stats = append(stats, stat)
	}

	return stats, nil
}

// LoadRequestInfoCSV reads the change-request table.
func LoadRequestInfoCSV(path string, logger *slog.Logger) ([]schema.RequestInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request info table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	if _, ok := index["REQUEST_ID"]; !ok {
		return nil, fmt.Errorf("required column %q is missing", "REQUEST_ID")
	}

	var rows []schema.RequestInfo
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping malformed request info row", "line", line, "error", err)
			continue
		}
		cell := func(col string) string {
			if i, ok := index[col]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}
		info := schema.RequestInfo{
			RequestID:        cell("REQUEST_ID"),
			MISID:            cell("MIS_ID"),
			WritePersonID:    cell("WRITE_PERSON_ID"),
			RequesterID:      cell("REQUESTER_ID"),
			RequesterEmail:   cell("REQUESTER_EMAIL"),
			RequestStatus:    cell("REQUEST_STATUS"),
			RequestStartDate: cell("REQUEST_START_DATE"),
			RequestEndDate:   cell("REQUEST_END_DATE"),
		}
		if info.RequestID == "" {
			continue
		}
		rows = append(rows, info)
	}

	return rows, nil
}
