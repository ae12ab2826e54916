// Package startup provides verbose startup diagnostics and initialization
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"time"

	"fwlens/internal/config"
	"fwlens/internal/requestid"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name    string
	Status  Status
	Message string
	Details map[string]string
}

// Status represents the status of a diagnostic check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// Diagnostics runs all startup diagnostics
type Diagnostics struct {
	cfg     *config.Config
	results []DiagnosticResult
	logger  *slog.Logger
}

// NewDiagnostics creates a new diagnostics runner
func NewDiagnostics(cfg *config.Config, logger *slog.Logger) *Diagnostics {
	return &Diagnostics{
		cfg:    cfg,
		logger: logger,
	}
}

// RunAll runs all diagnostic checks
func (d *Diagnostics) RunAll(ctx context.Context) []DiagnosticResult {
	d.logger.Info("running startup diagnostics")

	d.checkSystem()
	d.checkDirectories()
	d.checkConfiguration()
	d.checkPatterns()
	d.checkVendorProfiles()
	d.checkBackends(ctx)

	d.printSummary()

	return d.results
}

func (d *Diagnostics) addResult(result DiagnosticResult) {
	d.results = append(d.results, result)

	attrs := []any{
		"check", result.Name,
		"status", result.Status.String(),
	}
	if result.Message != "" {
		attrs = append(attrs, "message", result.Message)
	}
	for k, v := range result.Details {
		attrs = append(attrs, k, v)
	}

	switch result.Status {
	case StatusOK:
		d.logger.Info("diagnostic check passed", attrs...)
	case StatusWarning:
		d.logger.Warn("diagnostic check warning", attrs...)
	case StatusError:
		d.logger.Error("diagnostic check failed", attrs...)
	case StatusSkipped:
		d.logger.Debug("diagnostic check skipped", attrs...)
	}
}

func (d *Diagnostics) checkSystem() {
	d.addResult(DiagnosticResult{
		Name:    "runtime",
		Status:  StatusOK,
		Message: "Go runtime detected",
		Details: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       fmt.Sprintf("%d", runtime.NumCPU()),
		},
	})
}

func (d *Diagnostics) checkDirectories() {
	dirs := []struct {
		path     string
		required bool
		create   bool
	}{
		{"data", false, true},
		{"data/reports", false, true},
		{"configs", false, false},
	}

	for _, dir := range dirs {
		info, err := os.Stat(dir.path)
		if os.IsNotExist(err) {
			if dir.create {
				if err := os.MkdirAll(dir.path, 0750); err != nil {
					d.addResult(DiagnosticResult{
						Name:    fmt.Sprintf("directory_%s", dir.path),
						Status:  StatusError,
						Message: fmt.Sprintf("Failed to create directory: %s", err),
					})
				} else {
					d.addResult(DiagnosticResult{
						Name:    fmt.Sprintf("directory_%s", dir.path),
						Status:  StatusOK,
						Message: "Directory created",
						Details: map[string]string{"path": dir.path},
					})
				}
			} else if dir.required {
				d.addResult(DiagnosticResult{
					Name:    fmt.Sprintf("directory_%s", dir.path),
					Status:  StatusError,
					Message: "Required directory missing",
					Details: map[string]string{"path": dir.path},
				})
			} else {
				d.addResult(DiagnosticResult{
					Name:    fmt.Sprintf("directory_%s", dir.path),
					Status:  StatusWarning,
					Message: "Optional directory missing",
					Details: map[string]string{"path": dir.path},
				})
			}
		} else if err != nil {
			d.addResult(DiagnosticResult{
				Name:    fmt.Sprintf("directory_%s", dir.path),
				Status:  StatusError,
				Message: fmt.Sprintf("Error checking directory: %s", err),
			})
		} else if !info.IsDir() {
			d.addResult(DiagnosticResult{
				Name:    fmt.Sprintf("directory_%s", dir.path),
				Status:  StatusError,
				Message: "Path exists but is not a directory",
				Details: map[string]string{"path": dir.path},
			})
		} else {
			d.addResult(DiagnosticResult{
				Name:    fmt.Sprintf("directory_%s", dir.path),
				Status:  StatusOK,
				Message: "Directory exists",
				Details: map[string]string{"path": dir.path},
			})
		}
	}
}

func (d *Diagnostics) checkConfiguration() {
	configPath := os.Getenv("FWLENS_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusWarning,
			Message: "Config file not found, using defaults",
			Details: map[string]string{"path": configPath},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusOK,
			Message: "Config file found",
			Details: map[string]string{"path": configPath},
		})
	}

	if err := d.cfg.Validate(); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusError,
			Message: fmt.Sprintf("Configuration validation failed: %s", err),
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusOK,
			Message: "Configuration is valid",
		})
	}
}

func (d *Diagnostics) checkPatterns() {
	if _, err := requestid.NewParser(d.cfg.Patterns); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "identity_patterns",
			Status:  StatusError,
			Message: fmt.Sprintf("Identity patterns failed to compile: %s", err),
		})
		return
	}

	d.addResult(DiagnosticResult{
		Name:    "identity_patterns",
		Status:  StatusOK,
		Message: "Identity patterns compiled",
	})
}

func (d *Diagnostics) checkVendorProfiles() {
	for name, profile := range d.cfg.Vendors {
		if len(profile.CompareColumns) == 0 {
			d.addResult(DiagnosticResult{
				Name:    fmt.Sprintf("vendor_%s", name),
				Status:  StatusError,
				Message: "Vendor profile has no compare columns",
			})
			continue
		}
		d.addResult(DiagnosticResult{
			Name:    fmt.Sprintf("vendor_%s", name),
			Status:  StatusOK,
			Message: "Vendor profile loaded",
			Details: map[string]string{
				"compare_columns": fmt.Sprintf("%d", len(profile.CompareColumns)),
			},
		})
	}
}

func (d *Diagnostics) checkBackends(ctx context.Context) {
	if d.cfg.Storage.Enabled {
		d.checkEndpoint("clickhouse", d.cfg.Storage.ClickHouse.Hosts[0])
	} else {
		d.addResult(DiagnosticResult{
			Name:    "clickhouse",
			Status:  StatusSkipped,
			Message: "Result storage disabled",
		})
	}

	if d.cfg.UsageSource.Enabled {
		d.checkEndpoint("redis", d.cfg.UsageSource.Address)
	} else {
		d.addResult(DiagnosticResult{
			Name:    "redis",
			Status:  StatusSkipped,
			Message: "Redis usage source disabled",
		})
	}

	if d.cfg.Stream.Enabled {
		d.checkEndpoint("kafka", d.cfg.Stream.Brokers[0])
	} else {
		d.addResult(DiagnosticResult{
			Name:    "kafka",
			Status:  StatusSkipped,
			Message: "Policy stream disabled",
		})
	}
}

// checkEndpoint probes one backend address with a short TCP dial.
func (d *Diagnostics) checkEndpoint(name, addr string) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    name,
			Status:  StatusWarning,
			Message: fmt.Sprintf("Backend not reachable: %s", err),
			Details: map[string]string{"address": addr},
		})
		return
	}
	conn.Close()

	d.addResult(DiagnosticResult{
		Name:    name,
		Status:  StatusOK,
		Message: "Backend reachable",
		Details: map[string]string{"address": addr},
	})
}

func (d *Diagnostics) printSummary() {
	var ok, warnings, errors, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errors++
		case StatusSkipped:
			skipped++
		}
	}

	d.logger.Info("=== Diagnostics Summary ===",
		"passed", ok,
		"warnings", warnings,
		"errors", errors,
		"skipped", skipped,
	)

	if errors > 0 {
		d.logger.Error("startup diagnostics found critical errors - runs may not function correctly")
	} else if warnings > 0 {
		d.logger.Warn("startup diagnostics found warnings - review for production readiness")
	} else {
		d.logger.Info("all startup diagnostics passed")
	}
}

// HasErrors returns true if any diagnostic check failed
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any diagnostic check has warnings
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}

// EnsureDirectories creates all required directories
func EnsureDirectories() error {
	dirs := []string{
		"data",
		"data/reports",
		"configs",
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
