package ingest

import (
	"io"
	"log/slog"
	"testing"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyRowRecord(t *testing.T) {
	row := PolicyRow{
		Enable:      "Y",
		Action:      "Allow",
		Source:      "10.0.0.1",
		Destination: "10.1.0.1",
		Service:     "tcp-443",
		Vsys:        "vsys1",
		RuleName:    "web_allow",
		Description: "RS001-20240101-20240401-jdoe-F100200",
		Vendor:      "paloalto",
	}

	rec := row.Record()

	if !rec.Enabled || rec.Action != schema.ActionAllow || rec.RawAction != "Allow" {
		t.Errorf("action mapping = enabled=%v action=%s raw=%s", rec.Enabled, rec.Action, rec.RawAction)
	}
	if rec.Vendor != schema.VendorPaloAlto {
		t.Errorf("Vendor = %s, want paloalto", rec.Vendor)
	}
	if rec.Usage != schema.UsageUnknown {
		t.Errorf("Usage = %s, want unknown before fusion", rec.Usage)
	}

	disabled := PolicyRow{Enable: "N", Action: "Deny", RuleName: "r", Vendor: "default"}.Record()
	if disabled.Enabled || disabled.Action != schema.ActionDeny {
		t.Errorf("disabled row mapped to enabled=%v action=%s", disabled.Enabled, disabled.Action)
	}
}

func TestNewKafkaSourceValidation(t *testing.T) {
	logger := testLogger()

	cfg := config.DefaultConfig().Stream
	cfg.Brokers = nil
	if _, err := NewKafkaSource(cfg, logger); err == nil {
		t.Error("expected error for missing brokers")
	}

	cfg = config.DefaultConfig().Stream
	cfg.Topic = ""
	if _, err := NewKafkaSource(cfg, logger); err == nil {
		t.Error("expected error for missing topic")
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	base := config.DefaultConfig().Stream
	base.SASLUsername = "svc-fwlens"
	base.SASLPassword = "secret"

	tests := []struct {
		name      string
		mechanism string
		wantErr   bool
	}{
		{"plain", "PLAIN", false},
		{"scram sha256", "SCRAM-SHA-256", false},
		{"scram sha512", "SCRAM-SHA-512", false},
		{"unsupported", "GSSAPI", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.SASLMechanism = tt.mechanism
			m, err := buildSASLMechanism(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSASLMechanism() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m == nil {
				t.Error("buildSASLMechanism() returned nil mechanism")
			}
		})
	}
}

func TestBuildSASLMechanismRequiresCredentials(t *testing.T) {
	cfg := config.DefaultConfig().Stream
	cfg.SASLMechanism = "PLAIN"
	if _, err := buildSASLMechanism(cfg); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestBuildDialer(t *testing.T) {
	cfg := config.DefaultConfig().Stream

	t.Run("plaintext", func(t *testing.T) {
		d, err := buildDialer(cfg)
		if err != nil {
			t.Fatalf("buildDialer() returned error: %v", err)
		}
		if d.TLS != nil || d.SASLMechanism != nil {
			t.Error("plaintext dialer must carry neither TLS nor SASL")
		}
	})

	t.Run("sasl ssl", func(t *testing.T) {
		c := cfg
		c.SecurityProtocol = "SASL_SSL"
		c.SASLMechanism = "PLAIN"
		c.SASLUsername = "svc-fwlens"
		c.SASLPassword = "secret"

		d, err := buildDialer(c)
		if err != nil {
			t.Fatalf("buildDialer() returned error: %v", err)
		}
		if d.TLS == nil || d.SASLMechanism == nil {
			t.Error("SASL_SSL dialer must carry both TLS and SASL")
		}
	})

	t.Run("sasl without credentials", func(t *testing.T) {
		c := cfg
		c.SecurityProtocol = "SASL_PLAINTEXT"
		if _, err := buildDialer(c); err == nil {
			t.Error("expected error for SASL without credentials")
		}
	})
}
