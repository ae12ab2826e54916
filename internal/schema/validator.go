package schema

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ruleNamePattern defines the shape of a plausible rule name. Exports
// occasionally carry control characters from broken CSV quoting; those
// rows are rejected before any stage sees them.
var ruleNamePattern = regexp.MustCompile(`^[^\x00-\x1f]+$`)

// Validator validates records against the canonical schema.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("rule_name_format", func(fl validator.FieldLevel) bool {
		return ruleNamePattern.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

// ValidateRecord validates a policy record.
func (v *Validator) ValidateRecord(rec *PolicyRecord) error {
	if err := v.validate.Struct(rec); err != nil {
		return fmt.Errorf("record validation failed: %w", err)
	}

	if !ruleNamePattern.MatchString(rec.RuleName) {
		return fmt.Errorf("rule name contains control characters: %q", rec.RuleName)
	}
	if !rec.Vendor.IsValid() {
		return fmt.Errorf("unknown vendor: %q", rec.Vendor)
	}

	return nil
}

// ValidateUsageStat validates a usage statistic row.
func (v *Validator) ValidateUsageStat(stat *UsageStat) error {
	if err := v.validate.Struct(stat); err != nil {
		return fmt.Errorf("usage stat validation failed: %w", err)
	}
	if stat.UnusedDays != nil && *stat.UnusedDays < 0 {
		return fmt.Errorf("unused days must not be negative: %d", *stat.UnusedDays)
	}
	return nil
}

// ValidateRequestInfo validates a change-request row.
func (v *Validator) ValidateRequestInfo(info *RequestInfo) error {
	if err := v.validate.Struct(info); err != nil {
		return fmt.Errorf("request info validation failed: %w", err)
	}
	return nil
}

// ValidRuleName checks if a rule name matches the required format.
func ValidRuleName(name string) bool {
	return name != "" && ruleNamePattern.MatchString(name)
}
