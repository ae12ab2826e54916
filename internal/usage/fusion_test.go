package usage

import (
	"testing"

	"fwlens/internal/schema"
)

func intPtr(n int) *int { return &n }

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		stat      schema.UsageStat
		threshold int
		want      schema.UsageStatus
	}{
		{"no last hit", schema.UsageStat{RuleName: "r"}, 0, schema.UsageUnused},
		{"hit, zero threshold", schema.UsageStat{RuleName: "r", LastHitDate: "2024-01-01"}, 0, schema.UsageUsed},
		{
			"stale hit over threshold",
			schema.UsageStat{RuleName: "r", LastHitDate: "2023-01-01", UnusedDays: intPtr(120)},
			90,
			schema.UsageUnused,
		},
		{
			"hit within threshold",
			schema.UsageStat{RuleName: "r", LastHitDate: "2024-06-01", UnusedDays: intPtr(10)},
			90,
			schema.UsageUsed,
		},
		{
			"threshold without counter",
			schema.UsageStat{RuleName: "r", LastHitDate: "2024-06-01"},
			90,
			schema.UsageUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(&tt.stat, tt.threshold); got != tt.want {
				t.Errorf("Derive() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFuse(t *testing.T) {
	records := []*schema.PolicyRecord{
		{RuleName: "hit_rule", Usage: schema.UsageUnknown},
		{RuleName: "cold_rule", Usage: schema.UsageUnknown},
		{RuleName: "unmatched_keeps_prior", Usage: schema.UsageUsed},
		{RuleName: "unmatched_blank"},
	}
	stats := []schema.UsageStat{
		{RuleName: "hit_rule", LastHitDate: "2024-06-01"},
		{RuleName: "cold_rule"},
		{RuleName: "not_in_table", LastHitDate: "2024-06-01"},
	}

	updated := Fuse(records, stats, 0, nil)

	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}

	want := []schema.UsageStatus{
		schema.UsageUsed,
		schema.UsageUnused,
		schema.UsageUsed,
		schema.UsageUnknown,
	}
	for i, rec := range records {
		if rec.Usage != want[i] {
			t.Errorf("record %d (%s): usage = %s, want %s",
				i, rec.RuleName, rec.Usage, want[i])
		}
	}
}

func TestFuseEmptyStats(t *testing.T) {
	records := []*schema.PolicyRecord{{RuleName: "r", Usage: schema.UsageUsed}}
	if updated := Fuse(records, nil, 0, nil); updated != 0 {
		t.Errorf("updated = %d, want 0", updated)
	}
	if records[0].Usage != schema.UsageUsed {
		t.Errorf("usage = %s, want prior status preserved", records[0].Usage)
	}
}
