// Package lifecycle tags each policy record with a single exclusive
// exception category and computes its expiration status.
package lifecycle

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// dateToken finds an 8-digit date embedded in a rule name.
var dateToken = regexp.MustCompile(`\d{8}`)

// TagRule is one step of the classification cascade. Rules are
// evaluated strictly in order with unconditional overwrite: a later
// rule that matches replaces the tag from an earlier one. Reordering
// this list changes which exemption wins and is a policy change, not a
// refactor.
type TagRule struct {
	Name  string
	Tag   string
	Match func(cc *tableContext, idx int, rec *schema.PolicyRecord) bool
}

// tableContext carries table-scoped state the per-record predicates
// need, currently just the infrastructure boundary position.
type tableContext struct {
	boundaryIndex int // -1 when no boundary record exists
	reference     time.Time
}

// Classifier applies the exception-tag cascade and expiration check.
type Classifier struct {
	lifecycle config.LifecycleConfig
	recent    time.Duration
	profile   config.VendorProfile
	rules     []TagRule
	logger    *slog.Logger
}

// NewClassifier creates a classifier for one vendor profile.
func NewClassifier(lc config.LifecycleConfig, tf config.TimeframeConfig, profile config.VendorProfile, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		lifecycle: lc,
		recent:    time.Duration(tf.RecentPolicyDays) * 24 * time.Hour,
		profile:   profile,
		logger:    logger,
	}
	c.rules = c.buildRules()
	return c
}

// buildRules assembles the cascade. The order reproduces the operator
// precedence decision of which exemption wins when several apply.
func (c *Classifier) buildRules() []TagRule {
	return []TagRule{
		{
			Name: "exempt request id",
			Tag:  schema.TagExemptRequest,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				id := requestID(rec)
				if id == "" {
					return false
				}
				for _, prefix := range c.lifecycle.ExemptRequestPrefixes {
					if strings.HasPrefix(id, prefix) {
						return true
					}
				}
				return false
			},
		},
		{
			Name: "auto extended",
			Tag:  schema.TagAutoExtended,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				return rec.RequestStatus != "" && rec.RequestStatus == c.lifecycle.AutoExtendStatus
			},
		},
		{
			Name: "recent policy date",
			Tag:  schema.TagNewPolicy,
			Match: func(cc *tableContext, _ int, rec *schema.PolicyRecord) bool {
				token := dateToken.FindString(rec.RuleName)
				if token == "" {
					return false
				}
				d, err := time.Parse("20060102", token)
				if err != nil {
					return false
				}
				return !d.Before(cc.reference.Add(-c.recent)) && !d.After(cc.reference)
			},
		},
		{
			Name: "infrastructure boundary",
			Tag:  schema.TagInfrastructure,
			Match: func(cc *tableContext, idx int, _ *schema.PolicyRecord) bool {
				return cc.boundaryIndex >= 0 && idx < cc.boundaryIndex
			},
		},
		{
			Name: "test group",
			Tag:  schema.TagTestGroup,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				for _, prefix := range c.lifecycle.TestPrefixes {
					if c.matchesMarker(rec, prefix) {
						return true
					}
				}
				return false
			},
		},
		{
			Name: "disabled",
			Tag:  schema.TagDisabled,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				return !rec.Enabled
			},
		},
		{
			Name: "baseline",
			Tag:  schema.TagBaseline,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				return !rec.Enabled && strings.HasSuffix(rec.RuleName, c.lifecycle.BaselineSuffix)
			},
		},
		{
			Name: "blocking",
			Tag:  schema.TagBlocking,
			Match: func(_ *tableContext, _ int, rec *schema.PolicyRecord) bool {
				return rec.Action == schema.ActionDeny
			},
		},
	}
}

// ClassifyTable applies the cascade to every record and sets each
// record's expiration status against the reference date.
func (c *Classifier) ClassifyTable(records []*schema.PolicyRecord, reference time.Time) {
	cc := &tableContext{
		boundaryIndex: c.findBoundary(records),
		reference:     reference,
	}
	if cc.boundaryIndex < 0 {
		c.logger.Warn("infrastructure boundary record not found, skipping infrastructure tagging",
			"token", c.lifecycle.BoundaryToken)
	}

	for idx, rec := range records {
		rec.ExceptionTag = ""
		for _, rule := range c.rules {
			if rule.Match(cc, idx, rec) {
				rec.ExceptionTag = rule.Tag
			}
		}
		rec.Expiration = ExpirationStatus(rec, reference)
	}

	c.logger.Info("lifecycle classification complete",
		"records", len(records), "boundary_index", cc.boundaryIndex)
}

// findBoundary locates the first record marking the infrastructure
// boundary. PaloAlto exports name the boundary rule itself; NGF exports
// carry the token in the description.
func (c *Classifier) findBoundary(records []*schema.PolicyRecord) int {
	for i, rec := range records {
		if c.profile.MatchDescriptions {
			if strings.Contains(rec.Description, c.lifecycle.BoundaryToken) {
				return i
			}
		} else if rec.RuleName == c.lifecycle.BoundaryToken {
			return i
		}
	}
	return -1
}

// matchesMarker checks a marker prefix against the profile's match
// target: rule-name prefix normally, description containment for
// vendors that keep operator text in descriptions.
func (c *Classifier) matchesMarker(rec *schema.PolicyRecord, marker string) bool {
	if c.profile.MatchDescriptions {
		return strings.Contains(rec.Description, marker)
	}
	return strings.HasPrefix(rec.RuleName, marker)
}

// ExpirationStatus resolves a record's expiration against a reference
// date. Fail-closed: only an end date strictly after the reference
// counts as not expired; missing or unparseable dates are expired.
func ExpirationStatus(rec *schema.PolicyRecord, reference time.Time) schema.ExpirationStatus {
	raw := rec.RequestEndDate
	if raw == "" && rec.Identity != nil {
		raw = rec.Identity.EndDate
	}
	end, ok := parseDate(raw)
	if !ok {
		return schema.Expired
	}
	if end.After(reference) {
		return schema.NotExpired
	}
	return schema.Expired
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "20060102", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// requestID returns the record's effective request id: the parsed one,
// unless enrichment is yet to run and there is nothing to read.
func requestID(rec *schema.PolicyRecord) string {
	if rec.Identity == nil {
		return ""
	}
	return rec.Identity.RequestID
}
