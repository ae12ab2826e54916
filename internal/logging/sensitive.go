package logging

import "strings"

// SensitiveFields contains field names that must be masked in logs.
// Rule exports carry requester identities and the config carries
// backend credentials; neither belongs in log output.
var SensitiveFields = map[string]bool{
	"password":        true,
	"passwd":          true,
	"secret":          true,
	"token":           true,
	"access_key":      true,
	"secret_key":      true,
	"sasl_password":   true,
	"credentials":     true,
	"authorization":   true,
	"requester_email": true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField checks if a field name is sensitive.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskSensitiveValue masks a value if the field name is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveField(fieldName) {
		return MaskedValue
	}
	return value
}

// MaskEmail partially masks an email address. Requester emails appear
// in enrichment diagnostics and only the shape is needed there.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	atIdx := strings.Index(email, "@")
	if atIdx <= 0 {
		return MaskedValue
	}

	local := email[:atIdx]
	domain := email[atIdx:]

	if len(local) <= 2 {
		return MaskedValue + domain
	}

	return local[:1] + "***" + local[len(local)-1:] + domain
}

// MaskRequesterID masks a person id, keeping the leading characters so
// operators can still correlate runs.
func MaskRequesterID(id string) string {
	if id == "" {
		return ""
	}
	if len(id) <= 3 {
		return MaskedValue
	}
	return id[:3] + "***"
}
