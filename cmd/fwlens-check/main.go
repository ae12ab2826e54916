// Package main provides a CLI tool for validating policy exports and
// inspecting the effective configuration.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"fwlens/internal/config"
	"fwlens/internal/requestid"
	"fwlens/internal/schema"
	"fwlens/internal/table"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidateCmd(os.Args[2:])
	case "show":
		runShowCmd(os.Args[2:])
	case "parse":
		runParseCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("fwlens-check %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: fwlens-check <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  validate  Validate policy export CSV files\n")
	fmt.Fprintf(os.Stderr, "  show      Show the effective configuration\n")
	fmt.Fprintf(os.Stderr, "  parse     Parse a rule name and description into an identity\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version  Show version and exit\n")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runValidateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	vendor := fs.String("vendor", "paloalto", "Export vendor profile")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one path is required\n")
		fmt.Fprintf(os.Stderr, "Usage: fwlens-check validate [--vendor <name>] <path> [<path>...]\n")
		os.Exit(1)
	}

	loadConfig()
	os.Exit(runValidate(paths, *vendor))
}

func runValidate(paths []string, vendor string) int {
	// Row drops are already reported by the loader; keep the CLI
	// output to per-file verdicts.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	var totalFiles, validFiles, invalidFiles int
	for _, path := range paths {
		totalFiles++
		t, err := table.LoadPolicyCSV(path, schema.Vendor(vendor), logger)
		if err != nil {
			fmt.Printf("  FAIL  %s: %v\n", path, err)
			invalidFiles++
			continue
		}
		fmt.Printf("  OK    %s (%d record(s))\n", path, len(t.Records))
		validFiles++
	}

	fmt.Printf("\nResults: %d files checked, %d valid, %d invalid\n",
		totalFiles, validFiles, invalidFiles)

	if invalidFiles > 0 {
		return 1
	}
	return 0
}

func runShowCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.Parse(args)

	cfg := loadConfig()

	fmt.Println("Vendor profiles:")
	names := make([]string, 0, len(cfg.Vendors))
	for name := range cfg.Vendors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.Vendors[name]
		fmt.Printf("  %-10s columns=[%s]", name, strings.Join(p.CompareColumns, ", "))
		if p.ServiceUnderscoreToDash {
			fmt.Printf(" service_underscore_to_dash")
		}
		if p.MatchDescriptions {
			fmt.Printf(" match_descriptions")
		}
		fmt.Println()
	}

	fmt.Println("\nIdentity patterns:")
	fmt.Printf("  structured:         %s\n", cfg.Patterns.Structured)
	fmt.Printf("  legacy_rule_name:   %s\n", cfg.Patterns.LegacyRuleName)
	fmt.Printf("  legacy_requester:   %s\n", cfg.Patterns.LegacyRequester)
	fmt.Printf("  legacy_date_range:  %s\n", cfg.Patterns.LegacyDateRange)
	fmt.Printf("  legacy_description: %s\n", cfg.Patterns.LegacyDescription)

	fmt.Println("\nLifecycle:")
	fmt.Printf("  boundary_token:     %s\n", cfg.Lifecycle.BoundaryToken)
	fmt.Printf("  test_prefixes:      %s\n", strings.Join(cfg.Lifecycle.TestPrefixes, ", "))
	fmt.Printf("  baseline_suffix:    %s\n", cfg.Lifecycle.BaselineSuffix)
	fmt.Printf("  auto_extend_status: %s\n", cfg.Lifecycle.AutoExtendStatus)
	fmt.Printf("  recent_policy_days: %d\n", cfg.Timeframes.RecentPolicyDays)

	fmt.Println("\nBackends:")
	fmt.Printf("  storage:      enabled=%v\n", cfg.Storage.Enabled)
	fmt.Printf("  archive:      enabled=%v\n", cfg.Archive.Enabled)
	fmt.Printf("  stream:       enabled=%v\n", cfg.Stream.Enabled)
	fmt.Printf("  usage_source: enabled=%v\n", cfg.UsageSource.Enabled)
}

func runParseCmd(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	ruleName := fs.String("rule", "", "Rule name")
	description := fs.String("description", "", "Rule description")
	fs.Parse(args)

	if *ruleName == "" && *description == "" {
		fmt.Fprintf(os.Stderr, "Error: -rule or -description is required\n")
		os.Exit(1)
	}

	cfg := loadConfig()
	parser, err := requestid.NewParser(cfg.Patterns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	id := parser.Parse(*ruleName, *description)
	fmt.Printf("request_id:   %s\n", id.RequestID)
	fmt.Printf("request_type: %s\n", id.RequestType)
	fmt.Printf("start_date:   %s\n", id.StartDate)
	fmt.Printf("end_date:     %s\n", id.EndDate)
	fmt.Printf("requester:    %s\n", id.Requester)
	if id.MISID != "" {
		fmt.Printf("mis_id:       %s\n", id.MISID)
	}
}
