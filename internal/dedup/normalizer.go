// Package dedup implements redundant-policy detection: order-insensitive
// normalization of a rule's comparison columns and first-seen grouping
// of equivalent rules.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// Key is the canonical, order-insensitive representation of a rule's
// comparison-relevant fields. Two records with equal keys are
// policy-equivalent.
type Key string

// Normalizer builds normalized keys for one vendor's export.
type Normalizer struct {
	profile config.VendorProfile
}

// NewNormalizer creates a normalizer for the given vendor profile.
func NewNormalizer(profile config.VendorProfile) *Normalizer {
	return &Normalizer{profile: profile}
}

// Eligible reports whether a record participates in duplicate
// detection. Disabled or denying rules cannot be redundant allows.
func (n *Normalizer) Eligible(rec *schema.PolicyRecord) bool {
	return rec.Enabled && rec.Action == schema.ActionAllow
}

// Key normalizes a record into its comparison key. Each configured
// column's value is split on commas, sorted, and rejoined, so that
// membership rather than ordering defines equivalence. Pure function of
// the record and profile.
func (n *Normalizer) Key(rec *schema.PolicyRecord) (Key, error) {
	parts := make([]string, 0, len(n.profile.CompareColumns))
	for _, col := range n.profile.CompareColumns {
		raw, err := columnValue(rec, col)
		if err != nil {
			return "", err
		}
		if col == "Service" && n.profile.ServiceUnderscoreToDash {
			raw = strings.ReplaceAll(raw, "_", "-")
		}
		parts = append(parts, normalizeCell(raw))
	}
	return Key(strings.Join(parts, "\x1f")), nil
}

// normalizeCell sorts the comma-separated members of a cell so that
// "A,B" and "B,A" compare equal.
func normalizeCell(raw string) string {
	if !strings.Contains(raw, ",") {
		return raw
	}
	members := strings.Split(raw, ",")
	sort.Strings(members)
	return strings.Join(members, ",")
}

// columnValue maps an export column name to the record field holding it.
func columnValue(rec *schema.PolicyRecord, col string) (string, error) {
	switch col {
	case "Enable":
		if rec.Enabled {
			return "Y", nil
		}
		return "N", nil
	case "Action":
		return string(rec.Action), nil
	case "Source":
		return rec.Source, nil
	case "User":
		return rec.User, nil
	case "Destination":
		return rec.Destination, nil
	case "Service":
		return rec.Service, nil
	case "Application":
		return rec.Application, nil
	case "Category":
		return rec.Category, nil
	case "Vsys":
		return rec.Vsys, nil
	case "Rule Name":
		return rec.RuleName, nil
	case "Description":
		return rec.Description, nil
	}
	return "", fmt.Errorf("unknown compare column %q", col)
}
