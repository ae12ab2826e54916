// Package main is the entry point for batch audit runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fwlens/internal/config"
	"fwlens/internal/ingest"
	"fwlens/internal/logging"
	"fwlens/internal/pipeline"
	"fwlens/internal/startup"
	"fwlens/internal/storage"
	s3archive "fwlens/internal/storage/s3"
	"fwlens/internal/usage"
)

var version = "dev"

func main() {
	var (
		showVersion bool
		policyPath  string
		vendor      string
		usagePath   string
		requestPath string
		dedupOnly   bool
		diagnose    bool
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.StringVar(&policyPath, "policy", "", "Policy export CSV (required)")
	flag.StringVar(&vendor, "vendor", "paloalto", "Export vendor profile")
	flag.StringVar(&usagePath, "usage", "", "Usage table CSV (optional)")
	flag.StringVar(&requestPath, "requests", "", "Change-request table CSV (optional)")
	flag.BoolVar(&dedupOnly, "dedup", false, "Run duplicate grouping only")
	flag.BoolVar(&diagnose, "diagnostics", false, "Run startup diagnostics before processing")
	flag.Parse()

	if showVersion {
		fmt.Printf("fwlens-audit %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if policyPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: fwlens-audit -policy <export.csv> [flags]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if diagnose {
		diag := startup.NewDiagnostics(cfg, logger)
		diag.RunAll(ctx)
		if diag.HasErrors() {
			logger.Error("startup diagnostics failed")
			os.Exit(1)
		}
	}

	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	var chClient *storage.ClickHouseClient
	var batchWriter *storage.BatchWriter

	if cfg.Storage.Enabled {
		logger.Info("initializing ClickHouse storage",
			"hosts", cfg.Storage.ClickHouse.Hosts,
			"database", cfg.Storage.ClickHouse.Database,
		)

		chClient, err = storage.NewClickHouseClient(cfg.Storage.ClickHouse)
		if err != nil {
			logger.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer chClient.Close()

		migrator := storage.NewMigrator(chClient)
		if err := migrator.Run(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		batchWriter = storage.NewBatchWriter(chClient, cfg.Storage.BatchWriter)
		defer func() {
			if err := batchWriter.Close(); err != nil {
				logger.Error("batch writer close error", "error", err)
			}
		}()
		pipe.AttachWriter(batchWriter)
	}

	if cfg.Archive.Enabled {
		archiver, err := s3archive.NewArchiver(ctx, cfg.Archive, logger)
		if err != nil {
			logger.Error("failed to initialize report archiver", "error", err)
			os.Exit(1)
		}
		pipe.AttachArchiver(archiver)
	}

	if cfg.Stream.Enabled {
		rowSource, err := ingest.NewKafkaSource(cfg.Stream, logger)
		if err != nil {
			logger.Error("failed to connect to policy stream", "error", err)
			os.Exit(1)
		}
		defer rowSource.Close()
		pipe.AttachRowSource(rowSource)
	}

	if cfg.UsageSource.Enabled {
		usageSrc, err := usage.NewRedisSource(ctx, cfg.UsageSource)
		if err != nil {
			logger.Error("failed to connect to usage source", "error", err)
			os.Exit(1)
		}
		defer usageSrc.Close()
		pipe.AttachUsageSource(usageSrc)
	}

	var result *pipeline.Result
	if dedupOnly {
		result, err = pipe.RunDedup(ctx, policyPath, vendor)
	} else {
		result, err = pipe.RunAudit(ctx, pipeline.AuditOptions{
			PolicyPath:      policyPath,
			Vendor:          vendor,
			UsagePath:       usagePath,
			RequestInfoPath: requestPath,
		})
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("run %s complete: %d records -> %s\n",
		result.RunID, result.Records, result.OutputPath)
	if result.ArchiveKey != "" {
		fmt.Printf("archived as %s\n", result.ArchiveKey)
	}
}
