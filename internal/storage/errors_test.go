package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestStorageErrorMessage(t *testing.T) {
	withTable := &StorageError{Op: "Insert", Table: "audit_rows", Err: errors.New("boom")}
	if got := withTable.Error(); !strings.Contains(got, "Insert(audit_rows)") {
		t.Errorf("Error() = %q, want op and table", got)
	}

	withoutTable := &StorageError{Op: "Connect", Err: errors.New("boom")}
	if got := withoutTable.Error(); !strings.Contains(got, "storage.Connect") || strings.Contains(got, "()") {
		t.Errorf("Error() = %q, want op only", got)
	}
}

func TestErrorWrapping(t *testing.T) {
	connErr := WrapConnectionError("Connect", errors.New("refused"))
	if !IsConnectionError(connErr) {
		t.Error("wrapped connection error not detected by IsConnectionError")
	}
	if IsQueryError(connErr) {
		t.Error("connection error misclassified as query error")
	}

	queryErr := WrapQueryError("Select", "audit_rows", errors.New("syntax"))
	if !IsQueryError(queryErr) {
		t.Error("wrapped query error not detected by IsQueryError")
	}

	var se *StorageError
	if !errors.As(queryErr, &se) {
		t.Fatal("errors.As failed to recover *StorageError")
	}
	if se.Table != "audit_rows" {
		t.Errorf("Table = %q, want audit_rows", se.Table)
	}
}
