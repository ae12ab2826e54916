// Package requestid recovers structured change-request metadata from
// rule names and free-text descriptions via a cascade of patterns
// spanning several historical naming conventions.
package requestid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// aclMarker wraps requester names in one legacy description convention
// and is stripped from the capture.
const aclMarker = "*ACL*"

// Parser extracts request identities. All patterns come from
// configuration; construction fails if any of them does not compile.
type Parser struct {
	structured        *regexp.Regexp
	legacyRuleName    *regexp.Regexp
	legacyRequester   *regexp.Regexp
	legacyDateRange   *regexp.Regexp
	legacyDescription *regexp.Regexp
}

// NewParser compiles the configured patterns into a parser.
func NewParser(cfg config.PatternConfig) (*Parser, error) {
	p := &Parser{}
	for _, c := range []struct {
		name string
		expr string
		dst  **regexp.Regexp
	}{
		{"structured", cfg.Structured, &p.structured},
		{"legacy_rule_name", cfg.LegacyRuleName, &p.legacyRuleName},
		{"legacy_requester", cfg.LegacyRequester, &p.legacyRequester},
		{"legacy_date_range", cfg.LegacyDateRange, &p.legacyDateRange},
		{"legacy_description", cfg.LegacyDescription, &p.legacyDescription},
	} {
		re, err := regexp.Compile(c.expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", c.name, err)
		}
		*c.dst = re
	}
	return p, nil
}

// Parse extracts a request identity from a rule name and description.
// The cascade is deliberate last-match-wins: each stage that matches
// overwrites what earlier stages produced, even when the earlier match
// was the more structured one. Parse is total; any per-record failure
// degrades to a partial or default identity.
func (p *Parser) Parse(ruleName, description string) schema.RequestIdentity {
	identity := schema.DefaultIdentity()

	if isNullText(description) {
		return identity
	}

	// Stage 1: structured description tag.
	if m := matchAtStart(p.structured, description); m != nil {
		identity = schema.RequestIdentity{
			RulesetID: group(m, 1),
			StartDate: ConvertDate(group(m, 2)),
			EndDate:   ConvertDate(group(m, 3)),
			Requester: group(m, 4),
			RequestID: group(m, 5),
			MISID:     group(m, 6),
		}
		identity.RequestType = schema.TypeFromRequestID(identity.RequestID)
	}

	// Stage 2: legacy rule-name convention. Requester and validity
	// window are recovered from the description independently.
	if m := matchAtStart(p.legacyRuleName, ruleName); m != nil {
		identity.RequestType = schema.RequestOld
		identity.RequestID = group(m, 1)
		if u := p.legacyRequester.FindStringSubmatch(description); u != nil {
			identity.Requester = strings.ReplaceAll(group(u, 1), aclMarker, "")
		}
		if d := p.legacyDateRange.FindString(description); d != "" {
			if start, end, ok := splitRange(d); ok {
				identity.StartDate = ConvertDate(start)
				identity.EndDate = ConvertDate(end)
			}
		}
	}

	// Stage 3: legacy description convention. A match replaces the
	// whole identity, dates coming from the bracketed range before the
	// first semicolon.
	if m := p.legacyDescription.FindStringSubmatch(description); m != nil {
		if id, ok := secondSegment(group(m, 1)); ok {
			replaced := schema.RequestIdentity{
				RequestType: schema.RequestOld,
				RequestID:   id,
				StartDate:   schema.SentinelDate,
				EndDate:     schema.SentinelDate,
			}
			if u := p.legacyRequester.FindStringSubmatch(description); u != nil {
				replaced.Requester = strings.ReplaceAll(group(u, 1), aclMarker, "")
			}
			datePart, _, _ := strings.Cut(description, ";")
			if start, end, ok := splitRange(datePart); ok {
				replaced.StartDate = ConvertDate(stripRangeDecorations(start))
				replaced.EndDate = ConvertDate(stripRangeDecorations(end))
			}
			identity = replaced
		}
	}

	return identity
}

// ConvertDate converts an 8-digit YYYYMMDD string to ISO YYYY-MM-DD.
// Anything unparseable passes through unchanged; this is best-effort
// conversion, not validation.
func ConvertDate(s string) string {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// matchAtStart matches a pattern anchored at the beginning of the
// input, regardless of whether the configured expression carries ^.
func matchAtStart(re *regexp.Regexp, s string) []string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	m := make([]string, re.NumSubexp()+1)
	for i := 0; i <= re.NumSubexp(); i++ {
		if loc[2*i] >= 0 {
			m[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

func group(m []string, i int) string {
	if i >= len(m) {
		return ""
	}
	return m[i]
}

// splitRange splits a "start~end" pair.
func splitRange(s string) (string, string, bool) {
	start, end, ok := strings.Cut(s, "~")
	if !ok {
		return "", "", false
	}
	return start, end, true
}

// stripRangeDecorations removes the brackets and dashes a legacy
// bracketed date range carries around its 8-digit dates.
func stripRangeDecorations(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "[", "")
	s = strings.ReplaceAll(s, "]", "")
	return strings.ReplaceAll(s, "-", "")
}

// secondSegment takes the second hyphen-delimited segment of a capture,
// which is where the legacy description convention keeps the request id.
func secondSegment(s string) (string, bool) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// isNullText reports whether a description cell is effectively absent.
func isNullText(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "nan", "NaN", "None", "null":
		return true
	}
	return false
}
