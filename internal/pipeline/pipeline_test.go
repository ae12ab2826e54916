package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fwlens/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const exportCSV = `Enable,Action,Source,Destination,Service,Rule Name,Description
Y,Allow,10.0.0.1,10.1.0.1,tcp-443,web_allow,RS001-20240101-20240401-jdoe-F100200
Y,Allow,10.0.0.1,10.1.0.1,tcp-443,web_allow_copy,RS002-20240101-20240401-jdoe-F100201
N,Deny,any,any,any,block_all,
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

func TestNewRejectsBadPatterns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Patterns.Structured = "("
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("New() must fail when a pattern does not compile")
	}
}

func TestRunAuditFileOnly(t *testing.T) {
	dir := t.TempDir()
	policyPath := writeFixture(t, dir, "export.csv", exportCSV)
	usagePath := writeFixture(t, dir, "usage.csv",
		"Rule Name,Last Hit Date,Unused Days\nweb_allow,2024-02-20,5\n")
	requestPath := writeFixture(t, dir, "requests.csv",
		"REQUEST_ID,MIS_ID,WRITE_PERSON_ID,REQUESTER_ID,REQUESTER_EMAIL,REQUEST_STATUS,REQUEST_START_DATE,REQUEST_END_DATE\n"+
			"F100200,,1001,jdoe,jdoe@example.com,40,2024-01-01,2024-04-01\n")

	pipe, err := New(config.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := pipe.RunAudit(context.Background(), AuditOptions{
		PolicyPath:      policyPath,
		Vendor:          "paloalto",
		UsagePath:       usagePath,
		RequestInfoPath: requestPath,
		Reference:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RunAudit() error: %v", err)
	}

	if result.Records != 3 {
		t.Errorf("Records = %d, want 3", result.Records)
	}
	if result.Matched != 1 {
		t.Errorf("Matched = %d, want 1", result.Matched)
	}
	if result.UsageHits != 1 {
		t.Errorf("UsageHits = %d, want 1", result.UsageHits)
	}

	wantPath := filepath.Join(dir, "export_final.csv")
	if result.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, wantPath)
	}
	out, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("annotated output not written: %v", err)
	}
	if !strings.HasPrefix(string(out), "Exception,Expiration Status,") {
		t.Errorf("output header = %q, want derived columns leading", strings.SplitN(string(out), "\n", 2)[0])
	}
}

func TestRunAuditMissingPolicyFile(t *testing.T) {
	pipe, err := New(config.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = pipe.RunAudit(context.Background(), AuditOptions{
		PolicyPath: filepath.Join(t.TempDir(), "missing.csv"),
		Vendor:     "paloalto",
	})
	if err == nil {
		t.Error("RunAudit() must fail when the policy export is missing")
	}
}

func TestRunDedup(t *testing.T) {
	dir := t.TempDir()
	policyPath := writeFixture(t, dir, "export.csv", exportCSV)

	pipe, err := New(config.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := pipe.RunDedup(context.Background(), policyPath, "paloalto")
	if err != nil {
		t.Fatalf("RunDedup() error: %v", err)
	}

	// The two enabled allow rules share every compare column; the
	// disabled deny rule is never grouped.
	if result.Records != 2 {
		t.Errorf("Records = %d, want 2 grouped rows", result.Records)
	}

	wantPath := filepath.Join(dir, "export_v1.csv")
	if result.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, wantPath)
	}
	out, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("dedup report not written: %v", err)
	}
	body := string(out)
	if !strings.Contains(body, "1,primary,") || !strings.Contains(body, "1,follower,") {
		t.Errorf("report missing group annotations:\n%s", body)
	}
}
