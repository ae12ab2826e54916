// Package pipeline orchestrates the processing stages over a policy
// export: identity parsing, request enrichment, lifecycle
// classification, usage fusion, and the annotated export. Duplicate
// grouping runs as its own operation since its report stands alone.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fwlens/internal/config"
	"fwlens/internal/dedup"
	"fwlens/internal/enrich"
	"fwlens/internal/ingest"
	"fwlens/internal/lifecycle"
	"fwlens/internal/requestid"
	"fwlens/internal/schema"
	"fwlens/internal/storage"
	s3archive "fwlens/internal/storage/s3"
	"fwlens/internal/table"
	"fwlens/internal/usage"
)

// AuditOptions name the inputs of one audit run. Usage and request
// info tables are optional; stages missing their input are skipped.
type AuditOptions struct {
	PolicyPath      string
	Vendor          string
	UsagePath       string
	RequestInfoPath string
	// Reference is the point in time expiry is judged against. Zero
	// means now.
	Reference time.Time
}

// Result summarizes one audit run.
type Result struct {
	RunID      uuid.UUID
	OutputPath string
	Records    int
	Matched    int
	UsageHits  int
	ArchiveKey string
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	parser    *requestid.Parser
	versioner *table.Versioner

	writer    *storage.BatchWriter
	archiver  *s3archive.Archiver
	usageSrc  *usage.RedisSource
	rowSource *ingest.KafkaSource
}

// New creates a pipeline from configuration. Optional backends are
// attached separately so file-only runs need no connectivity.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parser, err := requestid.NewParser(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity parser: %w", err)
	}

	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		parser:    parser,
		versioner: table.NewVersioner(cfg.FileNaming),
	}, nil
}

// AttachWriter attaches a result store for annotated rows.
func (p *Pipeline) AttachWriter(w *storage.BatchWriter) { p.writer = w }

// AttachArchiver attaches a report archiver.
func (p *Pipeline) AttachArchiver(a *s3archive.Archiver) { p.archiver = a }

// AttachUsageSource attaches a live usage-stat source consulted in
// addition to any usage file.
func (p *Pipeline) AttachUsageSource(s *usage.RedisSource) { p.usageSrc = s }

// AttachRowSource attaches a streamed policy-row source drained into
// the working table alongside the export file.
func (p *Pipeline) AttachRowSource(s *ingest.KafkaSource) { p.rowSource = s }

// RunAudit runs the full annotation pass over one policy export and
// writes the versioned, annotated output file.
func (p *Pipeline) RunAudit(ctx context.Context, opts AuditOptions) (*Result, error) {
	runID := uuid.New()
	reference := opts.Reference
	if reference.IsZero() {
		reference = time.Now()
	}

	logger := p.logger.With("run_id", runID.String())
	logger.Info("audit run starting",
		"policy", opts.PolicyPath, "vendor", opts.Vendor)

	t, err := table.LoadPolicyCSV(opts.PolicyPath, schema.Vendor(opts.Vendor), logger)
	if err != nil {
		return nil, fmt.Errorf("audit run failed: %w", err)
	}

	profile, known := p.cfg.VendorProfileFor(opts.Vendor)
	if !known {
		logger.Warn("unknown vendor, using default profile", "vendor", opts.Vendor)
	}

	if p.rowSource != nil {
		streamCtx, cancel := context.WithTimeout(ctx, p.cfg.Stream.FetchTimeout)
		streamed, err := p.rowSource.Fetch(streamCtx, p.cfg.Stream.FetchLimit)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("audit run failed: %w", err)
		}
		t.Records = append(t.Records, streamed...)
	}

	for _, rec := range t.Records {
		id := p.parser.Parse(rec.RuleName, rec.Description)
		rec.Identity = &id
	}

	matched := 0
	if opts.RequestInfoPath != "" {
		info, err := table.LoadRequestInfoCSV(opts.RequestInfoPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit run failed: %w", err)
		}
		matched = enrich.New(logger).Join(t.Records, info)
	}

	classifier := lifecycle.NewClassifier(p.cfg.Lifecycle, p.cfg.Timeframes, profile, logger)
	classifier.ClassifyTable(t.Records, reference)

	usageHits, err := p.fuseUsage(ctx, t.Records, opts.UsagePath, logger)
	if err != nil {
		return nil, fmt.Errorf("audit run failed: %w", err)
	}

	outputPath := p.versioner.Next(opts.PolicyPath, true)
	if err := t.ExportCSV(outputPath); err != nil {
		return nil, fmt.Errorf("audit run failed: %w", err)
	}

	result := &Result{
		RunID:      runID,
		OutputPath: outputPath,
		Records:    len(t.Records),
		Matched:    matched,
		UsageHits:  usageHits,
	}

	if p.writer != nil {
		if err := p.writer.WriteRecords(runID.String(), reference, t.Records); err != nil {
			return nil, fmt.Errorf("failed to persist annotated rows: %w", err)
		}
		if err := p.writer.Flush(); err != nil {
			return nil, fmt.Errorf("failed to persist annotated rows: %w", err)
		}
	}

	if p.archiver != nil {
		key, err := p.archiver.ArchiveReport(ctx, runID, outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to archive report: %w", err)
		}
		result.ArchiveKey = key
	}

	logger.Info("audit run complete",
		"output", outputPath,
		"records", result.Records,
		"matched", matched,
		"usage_hits", usageHits,
	)
	return result, nil
}

// RunDedup runs duplicate grouping over one policy export and writes
// the annotated report next to the input.
func (p *Pipeline) RunDedup(ctx context.Context, policyPath, vendor string) (*Result, error) {
	runID := uuid.New()
	logger := p.logger.With("run_id", runID.String())
	logger.Info("dedup run starting", "policy", policyPath, "vendor", vendor)

	t, err := table.LoadPolicyCSV(policyPath, schema.Vendor(vendor), logger)
	if err != nil {
		return nil, fmt.Errorf("dedup run failed: %w", err)
	}

	profile, known := p.cfg.VendorProfileFor(vendor)
	if !known {
		logger.Warn("unknown vendor, using default profile", "vendor", vendor)
	}

	grouper := dedup.NewGrouper(dedup.NewNormalizer(profile), logger)
	report := grouper.Group(t.Records)

	outputPath := p.versioner.Next(policyPath, false)
	if err := t.ExportDedupCSV(outputPath); err != nil {
		return nil, fmt.Errorf("dedup run failed: %w", err)
	}

	result := &Result{
		RunID:      runID,
		OutputPath: outputPath,
		Records:    len(report.Entries),
	}

	logger.Info("dedup run complete",
		"output", outputPath,
		"groups", report.Groups,
		"skipped", report.Skipped,
	)
	return result, nil
}

// fuseUsage merges usage stats from the file table and the live
// source, then folds them into the records.
func (p *Pipeline) fuseUsage(ctx context.Context, records []*schema.PolicyRecord, usagePath string, logger *slog.Logger) (int, error) {
	var stats []schema.UsageStat

	if usagePath != "" {
		fileStats, err := table.LoadUsageCSV(usagePath, logger)
		if err != nil {
			return 0, err
		}
		stats = append(stats, fileStats...)
	}

	if p.usageSrc != nil {
		liveStats, err := p.usageSrc.Stats(ctx)
		if err != nil {
			return 0, err
		}
		stats = append(stats, liveStats...)
	}

	if len(stats) == 0 {
		return 0, nil
	}
	return usage.Fuse(records, stats, p.cfg.Usage.ThresholdDays, logger), nil
}
