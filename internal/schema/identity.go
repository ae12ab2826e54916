package schema

// RequestType classifies the change request a rule was created under,
// recovered from the rule's name or description.
type RequestType string

const (
	RequestGroup   RequestType = "GROUP"
	RequestNormal  RequestType = "NORMAL"
	RequestServer  RequestType = "SERVER"
	RequestPAM     RequestType = "PAM"
	RequestOld     RequestType = "OLD"
	RequestUnknown RequestType = "Unknown"
)

// IsValid checks if the request type is a known value.
func (t RequestType) IsValid() bool {
	switch t {
	case RequestGroup, RequestNormal, RequestServer, RequestPAM, RequestOld, RequestUnknown:
		return true
	}
	return false
}

// SentinelDate is used for start/end dates when no date could be
// recovered. Chosen far in the past so fail-closed expiry checks treat
// unparsed records as expired.
const SentinelDate = "1900-01-01"

// RequestIdentity holds change-request metadata parsed from a rule's
// name and description. Created once per record by the identity parser
// and never mutated afterward.
type RequestIdentity struct {
	RequestType RequestType `json:"request_type" validate:"required"`
	RequestID   string      `json:"request_id,omitempty" validate:"max=64"`
	RulesetID   string      `json:"ruleset_id,omitempty" validate:"max=64"`
	MISID       string      `json:"mis_id,omitempty" validate:"max=64"`
	Requester   string      `json:"requester,omitempty" validate:"max=128"`
	StartDate   string      `json:"start_date" validate:"required"`
	EndDate     string      `json:"end_date" validate:"required"`
}

// DefaultIdentity returns the all-default identity: Unknown type, no
// ids, sentinel dates. Every parse starts from this value.
func DefaultIdentity() RequestIdentity {
	return RequestIdentity{
		RequestType: RequestUnknown,
		StartDate:   SentinelDate,
		EndDate:     SentinelDate,
	}
}

// TypeFromRequestID derives the request type from the leading character
// of a structured request id.
func TypeFromRequestID(id string) RequestType {
	if id == "" {
		return RequestUnknown
	}
	switch id[0] {
	case 'P':
		return RequestGroup
	case 'F':
		return RequestNormal
	case 'S':
		return RequestServer
	case 'M':
		return RequestPAM
	}
	return RequestUnknown
}
