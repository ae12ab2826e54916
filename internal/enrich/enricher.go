// Package enrich joins parsed request identities against the
// change-request table, filling request status and validity windows
// onto policy records.
package enrich

import (
	"log/slog"
	"sort"
	"time"

	"fwlens/internal/schema"
)

// autoExtendStatuses are the request statuses meaning the request is
// renewed automatically and its rules must not be cleaned up.
var autoExtendStatuses = map[string]bool{"98": true, "99": true}

// AutoExtensionIDs collects the ids of auto-extended requests.
func AutoExtensionIDs(info []schema.RequestInfo) map[string]bool {
	ids := make(map[string]bool)
	for i := range info {
		if autoExtendStatuses[info[i].RequestStatus] {
			ids[info[i].RequestID] = true
		}
	}
	return ids
}

// Enricher joins request metadata into the working table.
type Enricher struct {
	logger *slog.Logger
}

// New creates an enricher.
func New(logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{logger: logger}
}

// Join matches each record's parsed identity against the
// change-request table and copies the request columns onto the record.
// GROUP-type requests are ambiguous by id alone (one id covers many
// rules), so they additionally match on MIS id, or on end date plus
// the writing or requesting person. The info table is consulted
// freshest-end-date-first so a renewed request wins over its
// predecessors. Records whose identity parsed but matched nothing are
// backfilled from the identity itself. Finally, records belonging to
// an auto-extended request get the auto-extension status stamped on.
func (e *Enricher) Join(records []*schema.PolicyRecord, info []schema.RequestInfo) int {
	sorted := make([]schema.RequestInfo, len(info))
	copy(sorted, info)
	sort.SliceStable(sorted, func(i, j int) bool {
		return normalizeDate(sorted[i].RequestEndDate) > normalizeDate(sorted[j].RequestEndDate)
	})

	autoExtended := AutoExtensionIDs(info)
	matched := 0

	for _, rec := range records {
		id := rec.Identity
		if id == nil || id.RequestID == "" {
			continue
		}

		if found := e.match(sorted, id); found != nil {
			rec.RequestStatus = found.RequestStatus
			rec.RequestStartDate = normalizeDate(found.RequestStartDate)
			rec.RequestEndDate = normalizeDate(found.RequestEndDate)
			rec.RequesterID = found.RequesterID
			rec.RequesterEmail = found.RequesterEmail
			matched++
		} else if id.RequestType != schema.RequestUnknown {
			rec.RequestStartDate = id.StartDate
			rec.RequestEndDate = id.EndDate
			rec.RequesterID = id.Requester
		}

		if autoExtended[id.RequestID] {
			rec.RequestStatus = "99"
		}
	}

	e.logger.Info("request enrichment complete",
		"records", len(records), "info_rows", len(info),
		"matched", matched, "auto_extended_ids", len(autoExtended))
	return matched
}

// match finds the first info row satisfying the identity's join
// conditions, in freshest-first order.
func (e *Enricher) match(sorted []schema.RequestInfo, id *schema.RequestIdentity) *schema.RequestInfo {
	for i := range sorted {
		row := &sorted[i]
		if row.RequestID != id.RequestID {
			continue
		}
		if id.RequestType != schema.RequestGroup {
			return row
		}
		if id.MISID != "" && row.MISID == id.MISID {
			return row
		}
		if normalizeDate(row.RequestEndDate) == normalizeDate(id.EndDate) &&
			(row.WritePersonID == id.Requester || row.RequesterID == id.Requester) {
			return row
		}
	}
	return nil
}

// normalizeDate renders a date cell as ISO when it parses, so join
// comparisons do not break on format drift between tables.
func normalizeDate(s string) string {
	for _, layout := range []string{"2006-01-02", "20060102", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
