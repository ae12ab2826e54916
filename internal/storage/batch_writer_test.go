package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// Mock implementations of driver.Conn and driver.Batch so batching can
// be tested without a real ClickHouse connection.

type mockConn struct {
	prepareBatchFunc func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

func (m *mockConn) Contributors() []string                                           { return nil }
func (m *mockConn) ServerVersion() (*driver.ServerVersion, error)                    { return nil, nil }
func (m *mockConn) Select(_ context.Context, _ any, _ string, _ ...any) error        { return nil }
func (m *mockConn) Query(_ context.Context, _ string, _ ...any) (driver.Rows, error) { return nil, nil }
func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) driver.Row        { return nil }
func (m *mockConn) Exec(_ context.Context, _ string, _ ...any) error                 { return nil }
func (m *mockConn) AsyncInsert(_ context.Context, _ string, _ bool, _ ...any) error  { return nil }
func (m *mockConn) Ping(_ context.Context) error                                     { return nil }
func (m *mockConn) Stats() driver.Stats                                              { return driver.Stats{} }
func (m *mockConn) Close() error                                                     { return nil }

func (m *mockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.prepareBatchFunc != nil {
		return m.prepareBatchFunc(ctx, query, opts...)
	}
	return &mockBatch{}, nil
}

type mockBatch struct {
	mu          sync.Mutex
	appendCount int
	sendFunc    func() error
}

func (m *mockBatch) Abort() error { return nil }
func (m *mockBatch) Append(_ ...any) error {
	m.mu.Lock()
	m.appendCount++
	m.mu.Unlock()
	return nil
}
func (m *mockBatch) AppendStruct(_ any) error        { return nil }
func (m *mockBatch) Column(_ int) driver.BatchColumn { return nil }
func (m *mockBatch) Flush() error                    { return nil }
func (m *mockBatch) Send() error {
	if m.sendFunc != nil {
		return m.sendFunc()
	}
	return nil
}
func (m *mockBatch) IsSent() bool                { return false }
func (m *mockBatch) Rows() int                   { return m.appendCount }
func (m *mockBatch) Columns() []column.Interface { return nil }
func (m *mockBatch) Close() error                { return nil }

func newMockClient(conn driver.Conn) *ClickHouseClient {
	return &ClickHouseClient{
		conn:   conn,
		config: config.DefaultConfig().Storage.ClickHouse,
	}
}

func testRow() *AuditRow {
	return NewAuditRow("run-1", time.Now(), &schema.PolicyRecord{
		Enabled:     true,
		Action:      schema.ActionAllow,
		Source:      "10.0.0.1",
		Destination: "10.1.0.1",
		Service:     "tcp-443",
		RuleName:    "web_allow",
		Vendor:      schema.VendorPaloAlto,
		Usage:       schema.UsageUsed,
	})
}

func TestNewAuditRow(t *testing.T) {
	runTime := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	rec := &schema.PolicyRecord{
		Enabled:       true,
		Action:        schema.ActionAllow,
		RuleName:      "web_allow",
		Vendor:        schema.VendorPaloAlto,
		GroupID:       3,
		DuplicateRole: schema.RoleFollower,
		ExceptionTag:  schema.TagNewPolicy,
		Expiration:    schema.NotExpired,
		Usage:         schema.UsageUsed,
		RequestStatus: "40",
		Identity: &schema.RequestIdentity{
			RequestType: schema.RequestNormal,
			RequestID:   "F100200",
		},
	}

	row := NewAuditRow("run-7", runTime, rec)

	if row.RunID != "run-7" || !row.RunTime.Equal(runTime) {
		t.Errorf("run fields = %s/%v", row.RunID, row.RunTime)
	}
	if row.GroupID != 3 || row.DuplicateRole != "follower" {
		t.Errorf("group fields = %d/%s", row.GroupID, row.DuplicateRole)
	}
	if row.RequestID != "F100200" || row.RequestType != "NORMAL" {
		t.Errorf("identity fields = %s/%s", row.RequestID, row.RequestType)
	}

	// Without a parsed identity the request fields stay empty.
	rec.Identity = nil
	row = NewAuditRow("run-7", runTime, rec)
	if row.RequestID != "" || row.RequestType != "" {
		t.Errorf("identity fields = %s/%s, want empty", row.RequestID, row.RequestType)
	}
}

func TestBatchWriterBuffersRows(t *testing.T) {
	cfg := config.BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(&mockConn{}), cfg)
	defer bw.Close()

	for i := 0; i < 5; i++ {
		if err := bw.Write(testRow()); err != nil {
			t.Fatalf("Write() error on row %d: %v", i, err)
		}
	}

	m := bw.Metrics()
	if m.Pending != 5 {
		t.Errorf("Pending = %d, want 5", m.Pending)
	}
	if m.Written != 0 || m.Batches != 0 {
		t.Errorf("metrics = %+v, want no flush yet", m)
	}
}

func TestBatchWriterFlushOnBatchSize(t *testing.T) {
	batchSize := 4
	cfg := config.BatchWriterConfig{
		BatchSize:     batchSize,
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}

	batch := &mockBatch{}
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return batch, nil
		},
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)
	defer bw.Close()

	for i := 0; i < batchSize; i++ {
		if err := bw.Write(testRow()); err != nil {
			t.Fatalf("Write() error on row %d: %v", i, err)
		}
	}

	m := bw.Metrics()
	if m.Pending != 0 {
		t.Errorf("Pending = %d, want 0 after flush", m.Pending)
	}
	if m.Written != uint64(batchSize) || m.Batches != 1 {
		t.Errorf("metrics = %+v, want %d written in one batch", m, batchSize)
	}
	if batch.appendCount != batchSize {
		t.Errorf("appendCount = %d, want %d", batch.appendCount, batchSize)
	}
}

func TestBatchWriterWriteRecords(t *testing.T) {
	cfg := config.BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}
	bw := NewBatchWriter(newMockClient(&mockConn{}), cfg)
	defer bw.Close()

	records := []*schema.PolicyRecord{
		{RuleName: "a", Vendor: schema.VendorDefault},
		{RuleName: "b", Vendor: schema.VendorDefault},
	}
	if err := bw.WriteRecords("run-1", time.Now(), records); err != nil {
		t.Fatalf("WriteRecords() error: %v", err)
	}
	if m := bw.Metrics(); m.Pending != 2 {
		t.Errorf("Pending = %d, want 2", m.Pending)
	}
}

func TestBatchWriterWriteAfterClose(t *testing.T) {
	bw := NewBatchWriter(newMockClient(&mockConn{}), config.DefaultConfig().Storage.BatchWriter)

	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := bw.Write(testRow()); err == nil {
		t.Error("Write() after Close() must return an error")
	}
}

func TestBatchWriterCloseFlushesBuffer(t *testing.T) {
	cfg := config.BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}

	var sendCalled atomic.Bool
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{sendFunc: func() error {
				sendCalled.Store(true)
				return nil
			}}, nil
		},
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)

	for i := 0; i < 3; i++ {
		if err := bw.Write(testRow()); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !sendCalled.Load() {
		t.Error("Close() must flush buffered rows")
	}
	if m := bw.Metrics(); m.Written != 3 || m.Pending != 0 {
		t.Errorf("metrics = %+v, want 3 written and none pending", m)
	}
}

func TestBatchWriterInsertFailureUpdatesMetrics(t *testing.T) {
	batchSize := 3
	cfg := config.BatchWriterConfig{
		BatchSize:     batchSize,
		FlushInterval: time.Hour,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
	}

	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)
	defer bw.Close()

	var flushErr error
	for i := 0; i < batchSize; i++ {
		flushErr = bw.Write(testRow())
	}

	if flushErr == nil {
		t.Error("expected the flushing write to return an error")
	}
	m := bw.Metrics()
	if m.Failed != uint64(batchSize) {
		t.Errorf("Failed = %d, want %d", m.Failed, batchSize)
	}
	if m.Written != 0 || m.Batches != 0 {
		t.Errorf("metrics = %+v, want no successful batch", m)
	}
}

func TestBatchWriterConcurrentWrites(t *testing.T) {
	cfg := config.BatchWriterConfig{
		BatchSize:     10,
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{}, nil
		},
	}
	bw := NewBatchWriter(newMockClient(conn), cfg)
	defer bw.Close()

	goroutines := 8
	perGoroutine := 25
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				bw.Write(testRow())
			}
		}()
	}
	wg.Wait()

	m := bw.Metrics()
	total := goroutines * perGoroutine
	accounted := int(m.Written) + m.Pending + int(m.Failed)
	if accounted != total {
		t.Errorf("Written(%d) + Pending(%d) + Failed(%d) = %d, want %d",
			m.Written, m.Pending, m.Failed, accounted, total)
	}
}
