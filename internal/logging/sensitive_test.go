package logging

import "testing"

func TestIsSensitiveField(t *testing.T) {
	tests := []struct {
		field string
		want  bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"sasl_password", true},
		{"clickhouse_password", true},
		{"secret_key", true},
		{"authorization", true},
		{"rule_name", false},
		{"vendor", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsSensitiveField(tt.field); got != tt.want {
			t.Errorf("IsSensitiveField(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestMaskSensitiveValue(t *testing.T) {
	if got := MaskSensitiveValue("password", "hunter2"); got != MaskedValue {
		t.Errorf("MaskSensitiveValue() = %q, want %q", got, MaskedValue)
	}
	if got := MaskSensitiveValue("rule_name", "web_allow"); got != "web_allow" {
		t.Errorf("MaskSensitiveValue() = %q, want value passed through", got)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jdoe@example.com", "j***e@example.com"},
		{"ops.team@example.com", "o***m@example.com"},
		{"ab@example.com", MaskedValue + "@example.com"},
		{"not-an-email", MaskedValue},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskRequesterID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jdoe123", "jdo***"},
		{"kim", MaskedValue},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskRequesterID(tt.in); got != tt.want {
			t.Errorf("MaskRequesterID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
