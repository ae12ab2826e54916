package dedup

import (
	"log/slog"
	"sort"

	"fwlens/internal/schema"
)

// Entry is one row of the redundancy report.
type Entry struct {
	Record  *schema.PolicyRecord
	GroupID int
	Role    schema.DuplicateRole
}

// Report is the result of a duplicate-grouping pass. Only groups that
// contain both a primary and at least one follower survive; it is a
// redundancy report, not a whole-table annotation.
type Report struct {
	Entries []Entry
	Groups  int
	Skipped int
}

// Grouper assigns redundancy groups over an ordered record sequence.
type Grouper struct {
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewGrouper creates a grouper using the given normalizer.
func NewGrouper(n *Normalizer, logger *slog.Logger) *Grouper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grouper{normalizer: n, logger: logger}
}

// Group scans records in input order, which is assumed to reflect rule
// evaluation priority: the first record with a given key is the one
// actually enforced and becomes the group's primary; later equals are
// followers. Records that fail normalization are logged and skipped
// rather than aborting the pass. Surviving records are also annotated
// in place with their group id and role.
func (g *Grouper) Group(records []*schema.PolicyRecord) *Report {
	report := &Report{}

	type member struct {
		rec  *schema.PolicyRecord
		role schema.DuplicateRole
	}
	seen := make(map[Key]int)
	groups := make(map[int][]member)
	order := make([]int, 0)
	next := 1

	for i, rec := range records {
		if !g.normalizer.Eligible(rec) {
			continue
		}
		key, err := g.normalizer.Key(rec)
		if err != nil {
			g.logger.Warn("skipping record in duplicate pass",
				"index", i, "rule_name", rec.RuleName, "error", err)
			report.Skipped++
			continue
		}
		if id, ok := seen[key]; ok {
			groups[id] = append(groups[id], member{rec, schema.RoleFollower})
		} else {
			seen[key] = next
			groups[next] = append(groups[next], member{rec, schema.RolePrimary})
			order = append(order, next)
			next++
		}
	}

	// Keep only groups with both roles, renumbering densely in
	// first-appearance order.
	renumbered := 0
	for _, id := range order {
		members := groups[id]
		if len(members) < 2 {
			continue
		}
		renumbered++
		for _, m := range members {
			m.rec.GroupID = renumbered
			m.rec.DuplicateRole = m.role
			report.Entries = append(report.Entries, Entry{
				Record:  m.rec,
				GroupID: renumbered,
				Role:    m.role,
			})
		}
	}
	report.Groups = renumbered

	// Group ascending, primary before followers within a group. The
	// scan above already emits members in that order; the sort keeps
	// the guarantee explicit and stable.
	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		return a.Role == schema.RolePrimary && b.Role != schema.RolePrimary
	})

	g.logger.Info("duplicate grouping complete",
		"records", len(records), "groups", report.Groups,
		"entries", len(report.Entries), "skipped", report.Skipped)

	return report
}
