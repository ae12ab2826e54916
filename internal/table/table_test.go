package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fwlens/internal/schema"
)

const policyCSV = `Enable,Action,Source,User,Destination,Service,Application,Category,Vsys,Rule Name,Description
Y,Allow,10.0.0.1,any,10.1.0.1,tcp-443,web,any,vsys1,web_allow,RS001-20240101-20240401-jdoe-F100200
N,Deny,any,any,any,any,any,any,vsys1,block_all,
Y,Allow,10.0.0.2,any,10.1.0.2,tcp-22,ssh,any,vsys1,,missing rule name
`

func TestReadPolicyCSV(t *testing.T) {
	tbl, err := ReadPolicyCSV(strings.NewReader(policyCSV), schema.VendorPaloAlto, nil)
	if err != nil {
		t.Fatalf("ReadPolicyCSV() returned error: %v", err)
	}

	// The row without a rule name fails validation and is dropped.
	if len(tbl.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(tbl.Records))
	}

	first := tbl.Records[0]
	if !first.Enabled || first.Action != schema.ActionAllow {
		t.Errorf("first record: enabled=%v action=%s, want enabled allow", first.Enabled, first.Action)
	}
	if first.RawAction != "Allow" {
		t.Errorf("RawAction = %q, want original casing preserved", first.RawAction)
	}
	if first.Usage != schema.UsageUnknown {
		t.Errorf("Usage = %s, want unknown before fusion", first.Usage)
	}

	second := tbl.Records[1]
	if second.Enabled || second.Action != schema.ActionDeny {
		t.Errorf("second record: enabled=%v action=%s, want disabled deny", second.Enabled, second.Action)
	}
}

func TestReadPolicyCSVMissingRequiredColumn(t *testing.T) {
	csv := "Enable,Action,Source,Destination,Rule Name\nY,Allow,a,b,r\n"
	if _, err := ReadPolicyCSV(strings.NewReader(csv), schema.VendorDefault, nil); err == nil {
		t.Error("expected error for missing Service column")
	}
}

func TestWriteCSVColumnOrder(t *testing.T) {
	tbl, err := ReadPolicyCSV(strings.NewReader(policyCSV), schema.VendorPaloAlto, nil)
	if err != nil {
		t.Fatalf("ReadPolicyCSV() returned error: %v", err)
	}

	rec := tbl.Records[0]
	rec.ExceptionTag = schema.TagNewPolicy
	rec.Expiration = schema.NotExpired
	rec.Usage = schema.UsageUsed
	rec.Identity = &schema.RequestIdentity{RequestType: schema.RequestNormal}

	var sb strings.Builder
	if err := tbl.WriteCSV(&sb); err != nil {
		t.Fatalf("WriteCSV() returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	wantHeader := "Exception,Expiration Status,Request History,Usage Status," +
		"Enable,Action,Source,User,Destination,Service,Application,Category,Vsys,Rule Name,Description"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}

	if !strings.HasPrefix(lines[1], "new-policy,not_expired,NORMAL,used,Y,Allow,") {
		t.Errorf("first row = %q, want derived columns leading", lines[1])
	}
	if !strings.Contains(lines[2], "Unknown") {
		t.Errorf("second row = %q, want Unknown request history for unparsed record", lines[2])
	}
}

func TestWriteDedupCSV(t *testing.T) {
	tbl, err := ReadPolicyCSV(strings.NewReader(policyCSV), schema.VendorPaloAlto, nil)
	if err != nil {
		t.Fatalf("ReadPolicyCSV() returned error: %v", err)
	}

	tbl.Records[1].GroupID = 1
	tbl.Records[1].DuplicateRole = schema.RoleFollower
	tbl.Records[0].GroupID = 1
	tbl.Records[0].DuplicateRole = schema.RolePrimary

	var sb strings.Builder
	if err := tbl.WriteDedupCSV(&sb); err != nil {
		t.Fatalf("WriteDedupCSV() returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus two grouped rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Group,Role,Enable,") {
		t.Errorf("header = %q, want group and role columns leading", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,primary,") {
		t.Errorf("first row = %q, want the primary first", lines[1])
	}
	if !strings.HasPrefix(lines[2], "1,follower,") {
		t.Errorf("second row = %q, want the follower after its primary", lines[2])
	}
}

func TestLoadUsageCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.csv")
	csv := "Rule Name,Last Hit Date,Unused Days\nweb_allow,2024-06-01,10\ncold_rule,,\nbad_days,2024-01-01,many\n,2024-01-01,\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := LoadUsageCSV(path, nil)
	if err != nil {
		t.Fatalf("LoadUsageCSV() returned error: %v", err)
	}

	if len(stats) != 3 {
		t.Fatalf("len(stats) = %d, want 3: the nameless row is dropped", len(stats))
	}
	if stats[0].UnusedDays == nil || *stats[0].UnusedDays != 10 {
		t.Errorf("UnusedDays = %v, want 10", stats[0].UnusedDays)
	}
	if stats[2].UnusedDays != nil {
		t.Errorf("malformed unused days should be dropped, got %v", stats[2].UnusedDays)
	}
}

func TestLoadRequestInfoCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.csv")
	csv := "REQUEST_ID,MIS_ID,WRITE_PERSON_ID,REQUESTER_ID,REQUESTER_EMAIL,REQUEST_STATUS,REQUEST_START_DATE,REQUEST_END_DATE\n" +
		"F100200,,kim,jdoe,jdoe@example.com,40,20240101,20240401\n" +
		",,,,,,,\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := LoadRequestInfoCSV(path, nil)
	if err != nil {
		t.Fatalf("LoadRequestInfoCSV() returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1: rows without a request id are dropped", len(rows))
	}
	if rows[0].RequestID != "F100200" || rows[0].RequesterID != "jdoe" {
		t.Errorf("row = %+v, want F100200/jdoe", rows[0])
	}
}
