// Package schema defines the canonical policy record schema for fwlens.
// All loaded rule exports are normalized to this structure before any
// analysis stage runs.
package schema

// Vendor identifies the firewall platform a rule export came from.
type Vendor string

const (
	VendorPaloAlto Vendor = "paloalto"
	VendorNGF      Vendor = "ngf"
	VendorDefault  Vendor = "default"
)

// IsValid checks if the vendor is a known value.
func (v Vendor) IsValid() bool {
	switch v {
	case VendorPaloAlto, VendorNGF, VendorDefault:
		return true
	}
	return false
}

// Action represents the decision a rule enforces.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionOther Action = "other"
)

// ParseAction maps a raw export cell to a canonical action.
// Vendors disagree on casing ("Allow", "allow", "ALLOW"), so the match
// is case-insensitive; anything unrecognized maps to ActionOther.
func ParseAction(raw string) Action {
	switch lower(raw) {
	case "allow", "permit", "accept":
		return ActionAllow
	case "deny", "drop", "reject":
		return ActionDeny
	}
	return ActionOther
}

func lower(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// DuplicateRole is the role a record plays inside a redundancy group.
type DuplicateRole string

const (
	RolePrimary  DuplicateRole = "primary"
	RoleFollower DuplicateRole = "follower"
	RoleNone     DuplicateRole = "none"
)

// ExpirationStatus reports whether a rule's request window has lapsed.
type ExpirationStatus string

const (
	Expired    ExpirationStatus = "expired"
	NotExpired ExpirationStatus = "not_expired"
)

// UsageStatus reports whether a rule has seen recent traffic.
type UsageStatus string

const (
	UsageUsed    UsageStatus = "used"
	UsageUnused  UsageStatus = "unused"
	UsageUnknown UsageStatus = "unknown"
)

// Exception tags. Mutually exclusive: the classifier assigns at most
// one per record, the last matching rule in cascade order winning.
const (
	TagExemptRequest  = "exempt-request"
	TagAutoExtended   = "auto-extended"
	TagNewPolicy      = "new-policy"
	TagInfrastructure = "infrastructure"
	TagTestGroup      = "test-group"
	TagDisabled       = "disabled"
	TagBaseline       = "baseline"
	TagBlocking       = "blocking"
)

// PolicyRecord is one row of the working table. The raw fields mirror
// the export column contract; derived fields are written by the
// analysis stages and start at their zero values.
type PolicyRecord struct {
	// Raw export fields
	Enabled     bool   `json:"enabled"`
	Action      Action `json:"action"`
	RawAction   string `json:"raw_action,omitempty"`
	Source      string `json:"source" validate:"max=8192"`
	User        string `json:"user,omitempty" validate:"max=4096"`
	Destination string `json:"destination" validate:"max=8192"`
	Service     string `json:"service" validate:"max=4096"`
	Application string `json:"application,omitempty" validate:"max=4096"`
	Category    string `json:"category,omitempty" validate:"max=1024"`
	Vsys        string `json:"vsys,omitempty" validate:"max=128"`
	RuleName    string `json:"rule_name" validate:"required,max=512"`
	Description string `json:"description,omitempty" validate:"max=8192"`
	Vendor      Vendor `json:"vendor" validate:"required,oneof=paloalto ngf default"`

	// Derived: duplicate grouping
	GroupID       int           `json:"group_id,omitempty"`
	DuplicateRole DuplicateRole `json:"duplicate_role,omitempty"`

	// Derived: request identity and enrichment
	Identity         *RequestIdentity `json:"request_identity,omitempty"`
	RequestStatus    string           `json:"request_status,omitempty"`
	RequestStartDate string           `json:"request_start_date,omitempty"`
	RequestEndDate   string           `json:"request_end_date,omitempty"`
	RequesterID      string           `json:"requester_id,omitempty"`
	RequesterEmail   string           `json:"requester_email,omitempty"`

	// Derived: classification
	ExceptionTag string           `json:"exception_tag,omitempty"`
	Expiration   ExpirationStatus `json:"expiration_status,omitempty"`
	Usage        UsageStatus      `json:"usage_status,omitempty"`
}

// HasDescription reports whether the record carries usable free text.
// Exports encode empty cells inconsistently ("", "nan", "None"), all of
// which count as absent for parsing purposes.
func (r *PolicyRecord) HasDescription() bool {
	switch r.Description {
	case "", "nan", "NaN", "None", "null":
		return false
	}
	return true
}

// UsageStat is one row of the externally supplied hit-count table,
// keyed by rule name.
type UsageStat struct {
	RuleName    string `json:"rule_name" validate:"required,max=512"`
	LastHitDate string `json:"last_hit_date,omitempty"`
	UnusedDays  *int   `json:"unused_days,omitempty"`
}

// RequestInfo is one row of the change-request table used for
// enrichment, keyed by request id.
type RequestInfo struct {
	RequestID        string `json:"request_id" validate:"required,max=64"`
	MISID            string `json:"mis_id,omitempty" validate:"max=64"`
	WritePersonID    string `json:"write_person_id,omitempty" validate:"max=128"`
	RequesterID      string `json:"requester_id,omitempty" validate:"max=128"`
	RequesterEmail   string `json:"requester_email,omitempty" validate:"omitempty,email"`
	RequestStatus    string `json:"request_status,omitempty" validate:"max=16"`
	RequestStartDate string `json:"request_start_date,omitempty"`
	RequestEndDate   string `json:"request_end_date,omitempty"`
}
