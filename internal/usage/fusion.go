// Package usage derives per-rule usage status from hit-count
// statistics and fuses it into the working table.
package usage

import (
	"log/slog"

	"fwlens/internal/schema"
)

// Derive resolves a usage stat into a status. No recorded last hit
// means unused; a hit older than the threshold is still unused; zero
// threshold means any hit counts as used regardless of age.
func Derive(stat *schema.UsageStat, thresholdDays int) schema.UsageStatus {
	if stat.LastHitDate == "" {
		return schema.UsageUnused
	}
	if thresholdDays > 0 && stat.UnusedDays != nil && *stat.UnusedDays > thresholdDays {
		return schema.UsageUnused
	}
	return schema.UsageUsed
}

// Fuse joins usage statistics into the records by exact rule-name
// match. Fusion is additive: records with no matching stat keep their
// prior usage status.
func Fuse(records []*schema.PolicyRecord, stats []schema.UsageStat, thresholdDays int, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]schema.UsageStatus, len(stats))
	for i := range stats {
		byName[stats[i].RuleName] = Derive(&stats[i], thresholdDays)
	}

	updated := 0
	for _, rec := range records {
		if status, ok := byName[rec.RuleName]; ok {
			rec.Usage = status
			updated++
		} else if rec.Usage == "" {
			rec.Usage = schema.UsageUnknown
		}
	}

	logger.Info("usage fusion complete",
		"records", len(records), "stats", len(stats), "updated", updated)
	return updated
}
