package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// AuditRow is one annotated rule as persisted per run. The run id ties
// all rows of a batch run together so runs can be diffed.
type AuditRow struct {
	RunID       string
	RunTime     time.Time
	Vendor      string
	RuleName    string
	Enabled     bool
	Action      string
	Source      string
	Destination string
	Service     string

	GroupID       int32
	DuplicateRole string
	ExceptionTag  string
	Expiration    string
	Usage         string

	RequestID        string
	RequestType      string
	RequestStatus    string
	RequestStartDate string
	RequestEndDate   string
	RequesterID      string
}

// NewAuditRow maps an annotated record onto a storage row.
func NewAuditRow(runID string, runTime time.Time, rec *schema.PolicyRecord) *AuditRow {
	row := &AuditRow{
		RunID:            runID,
		RunTime:          runTime,
		Vendor:           string(rec.Vendor),
		RuleName:         rec.RuleName,
		Enabled:          rec.Enabled,
		Action:           string(rec.Action),
		Source:           rec.Source,
		Destination:      rec.Destination,
		Service:          rec.Service,
		GroupID:          int32(rec.GroupID),
		DuplicateRole:    string(rec.DuplicateRole),
		ExceptionTag:     rec.ExceptionTag,
		Expiration:       string(rec.Expiration),
		Usage:            string(rec.Usage),
		RequestStatus:    rec.RequestStatus,
		RequestStartDate: rec.RequestStartDate,
		RequestEndDate:   rec.RequestEndDate,
		RequesterID:      rec.RequesterID,
	}
	if rec.Identity != nil {
		row.RequestID = rec.Identity.RequestID
		row.RequestType = string(rec.Identity.RequestType)
	}
	return row
}

// BatchWriter handles batched inserts to ClickHouse.
type BatchWriter struct {
	client *ClickHouseClient
	config config.BatchWriterConfig

	buffer []*AuditRow
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewBatchWriter creates a new BatchWriter.
func NewBatchWriter(client *ClickHouseClient, cfg config.BatchWriterConfig) *BatchWriter {
	bw := &BatchWriter{
		client: client,
		config: cfg,
		buffer: make([]*AuditRow, 0, cfg.BatchSize),
	}

	bw.flushTimer = time.AfterFunc(cfg.FlushInterval, bw.timerFlush)

	return bw
}

// Write adds a row to the batch.
func (bw *BatchWriter) Write(row *AuditRow) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return ErrDatabaseClosed
	}

	bw.buffer = append(bw.buffer, row)

	if len(bw.buffer) >= bw.config.BatchSize {
		return bw.flushLocked()
	}

	return nil
}

// WriteRecords maps and buffers a whole annotated table under one run.
func (bw *BatchWriter) WriteRecords(runID string, runTime time.Time, records []*schema.PolicyRecord) error {
	for _, rec := range records {
		if err := bw.Write(NewAuditRow(runID, runTime, rec)); err != nil {
			return err
		}
	}
	return nil
}

// timerFlush is called by the flush timer.
func (bw *BatchWriter) timerFlush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return
	}

	if len(bw.buffer) > 0 {
		if err := bw.flushLocked(); err != nil {
			slog.Error("timer flush failed", "error", err)
		}
	}

	bw.flushTimer.Reset(bw.config.FlushInterval)
}

// flushLocked flushes the buffer. Caller must hold the lock.
func (bw *BatchWriter) flushLocked() error {
	if len(bw.buffer) == 0 {
		return nil
	}

	rows := bw.buffer
	bw.buffer = make([]*AuditRow, 0, bw.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay * time.Duration(attempt))
		}

		if err := bw.insertBatch(rows); err != nil {
			lastErr = err
			slog.Warn("batch insert failed, retrying",
				"attempt", attempt+1,
				"max_retries", bw.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&bw.totalWritten, uint64(len(rows)))
		atomic.AddUint64(&bw.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&bw.totalFailed, uint64(len(rows)))
	return fmt.Errorf("%w after %d retries: %v", ErrBatchInsertFailed, bw.config.MaxRetries, lastErr)
}

// insertBatch inserts a batch of audit rows into ClickHouse.
func (bw *BatchWriter) insertBatch(rows []*AuditRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := bw.client.PrepareBatch(ctx, `
		INSERT INTO audit_rows (
			run_id, run_time, vendor, rule_name,
			enabled, action, source, destination, service,
			group_id, duplicate_role, exception_tag, expiration_status, usage_status,
			request_id, request_type, request_status,
			request_start_date, request_end_date, requester_id
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		err := batch.Append(
			row.RunID,
			row.RunTime,
			row.Vendor,
			row.RuleName,
			row.Enabled,
			row.Action,
			row.Source,
			row.Destination,
			row.Service,
			row.GroupID,
			row.DuplicateRole,
			row.ExceptionTag,
			row.Expiration,
			row.Usage,
			row.RequestID,
			row.RequestType,
			row.RequestStatus,
			row.RequestStartDate,
			row.RequestEndDate,
			row.RequesterID,
		)
		if err != nil {
			return fmt.Errorf("failed to append audit row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	slog.Debug("batch inserted", "count", len(rows))
	return nil
}

// Flush forces a flush of the current buffer.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked()
}

// Close stops the flush timer and flushes what remains.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	bw.closed = true
	rows := bw.buffer
	bw.buffer = nil
	bw.mu.Unlock()

	bw.flushTimer.Stop()

	if len(rows) == 0 {
		return nil
	}
	if err := bw.insertBatch(rows); err != nil {
		atomic.AddUint64(&bw.totalFailed, uint64(len(rows)))
		return err
	}
	atomic.AddUint64(&bw.totalWritten, uint64(len(rows)))
	atomic.AddUint64(&bw.batchCount, 1)
	return nil
}

// Metrics returns batch writer statistics.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	return BatchWriterMetrics{
		Written: atomic.LoadUint64(&bw.totalWritten),
		Failed:  atomic.LoadUint64(&bw.totalFailed),
		Batches: atomic.LoadUint64(&bw.batchCount),
		Pending: bw.pendingCount(),
	}
}

func (bw *BatchWriter) pendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterMetrics holds batch writer statistics.
type BatchWriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}
