// Package config handles configuration loading for fwlens.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Vendors     map[string]VendorProfile `yaml:"vendors"`
	Patterns    PatternConfig            `yaml:"patterns"`
	Timeframes  TimeframeConfig          `yaml:"timeframes"`
	Lifecycle   LifecycleConfig          `yaml:"lifecycle"`
	Usage       UsageConfig              `yaml:"usage"`
	FileNaming  FileNamingConfig         `yaml:"file_naming"`
	Storage     StorageConfig            `yaml:"storage"`
	Archive     ArchiveConfig            `yaml:"archive"`
	Stream      StreamConfig             `yaml:"stream"`
	UsageSource UsageSourceConfig        `yaml:"usage_source"`
	Logging     LoggingConfig            `yaml:"logging"`
}

// VendorProfile describes how one firewall platform's exports are
// compared and matched.
type VendorProfile struct {
	// CompareColumns is the ordered list of columns that define policy
	// equivalence for duplicate detection.
	CompareColumns []string `yaml:"compare_columns"`
	// ServiceUnderscoreToDash rewrites `_` to `-` in the Service column
	// before normalization, papering over naming drift between exports.
	ServiceUnderscoreToDash bool `yaml:"service_underscore_to_dash"`
	// MatchDescriptions switches the boundary/test/baseline lifecycle
	// checks from rule names to descriptions (NGF exports keep the
	// operator-facing text in Description).
	MatchDescriptions bool `yaml:"match_descriptions"`
}

// PatternConfig holds the request-identity extraction patterns. Every
// pattern is a Go regular expression; sites override these to match
// their historical naming conventions.
type PatternConfig struct {
	// Structured captures, from a description in one shot: ruleset id,
	// start date, end date, requester, request id, optional MIS id.
	Structured string `yaml:"structured"`
	// LegacyRuleName matches legacy rule names; capture 1 is the
	// request id.
	LegacyRuleName string `yaml:"legacy_rule_name"`
	// LegacyRequester is searched in descriptions; capture 1 is the
	// requester, possibly wrapped in a *ACL* marker.
	LegacyRequester string `yaml:"legacy_requester"`
	// LegacyDateRange is searched in descriptions; the match is a
	// `start~end` pair of 8-digit dates.
	LegacyDateRange string `yaml:"legacy_date_range"`
	// LegacyDescription matches legacy descriptions; capture 1 is a
	// hyphen-delimited token whose second segment is the request id.
	LegacyDescription string `yaml:"legacy_description"`
}

// TimeframeConfig holds time windows used by classification.
type TimeframeConfig struct {
	// RecentPolicyDays is the window within which a dated rule name
	// counts as a new policy.
	RecentPolicyDays int `yaml:"recent_policy_days"`
}

// LifecycleConfig holds the classifier's marker strings.
type LifecycleConfig struct {
	// ExemptRequestPrefixes lists request-id prefixes excluded from
	// cleanup by operator decision.
	ExemptRequestPrefixes []string `yaml:"exempt_request_prefixes"`
	// AutoExtendStatus is the request status meaning "auto-extended".
	AutoExtendStatus string `yaml:"auto_extend_status"`
	// BoundaryToken marks the infrastructure boundary rule.
	BoundaryToken string `yaml:"boundary_token"`
	// TestPrefixes mark test-group rules.
	TestPrefixes []string `yaml:"test_prefixes"`
	// BaselineSuffix marks baseline rules (combined with disabled).
	BaselineSuffix string `yaml:"baseline_suffix"`
}

// UsageConfig holds usage-status derivation settings.
type UsageConfig struct {
	// ThresholdDays above which a last-hit rule still counts as unused.
	// Zero means any recorded hit counts as used regardless of age.
	ThresholdDays int `yaml:"threshold_days"`
}

// FileNamingConfig controls versioned output file naming.
type FileNamingConfig struct {
	VersionSuffix string `yaml:"version_suffix"`
	FinalSuffix   string `yaml:"final_suffix"`
}

// StorageConfig holds result persistence settings.
type StorageConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	BatchWriter BatchWriterConfig `yaml:"batch_writer"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// BatchWriterConfig holds batch writer settings.
type BatchWriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// ArchiveConfig holds S3 report archival settings.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// StreamConfig holds Kafka policy-row streaming settings.
type StreamConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Brokers          []string      `yaml:"brokers"`
	Topic            string        `yaml:"topic"`
	ConsumerGroup    string        `yaml:"consumer_group"`
	SecurityProtocol string        `yaml:"security_protocol"`
	SASLMechanism    string        `yaml:"sasl_mechanism,omitempty"`
	SASLUsername     string        `yaml:"sasl_username,omitempty"`
	SASLPassword     string        `yaml:"sasl_password,omitempty"`
	TLSEnabled       bool          `yaml:"tls_enabled"`
	TLSSkipVerify    bool          `yaml:"tls_skip_verify,omitempty"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	MaxWait          time.Duration `yaml:"max_wait"`
	MinBytes         int           `yaml:"min_bytes"`
	MaxBytes         int           `yaml:"max_bytes"`
	// FetchLimit caps how many streamed rows one audit run drains.
	FetchLimit int `yaml:"fetch_limit"`
	// FetchTimeout bounds the drain when fewer rows are available.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// UsageSourceConfig holds Redis usage-stat source settings.
type UsageSourceConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration. Pattern defaults
// encode the naming conventions the parser was written against; sites
// with different conventions override them in the config file.
func DefaultConfig() *Config {
	return &Config{
		Vendors: map[string]VendorProfile{
			"paloalto": {
				CompareColumns: []string{
					"Enable", "Action", "Source", "User", "Destination",
					"Service", "Application", "Category", "Vsys",
				},
				ServiceUnderscoreToDash: true,
			},
			"ngf": {
				CompareColumns: []string{
					"Enable", "Action", "Source", "User", "Destination",
					"Service", "Application",
				},
				MatchDescriptions: true,
			},
			"default": {
				CompareColumns: []string{
					"Enable", "Action", "Source", "User", "Destination",
					"Service", "Application",
				},
			},
		},
		Patterns: PatternConfig{
			Structured:        `^([A-Z]{2}\d+)-(\d{8})-(\d{8})-([A-Za-z0-9_.]+)-([A-Z]\d+)(?:-(MIS\d+))?`,
			LegacyRuleName:    `^ACL[_-](\d+)`,
			LegacyRequester:   `requester[:=]\s*(\S+)`,
			LegacyDateRange:   `\d{8}~\d{8}`,
			LegacyDescription: `\b(OLD-[A-Z]?\d+)\b`,
		},
		Timeframes: TimeframeConfig{
			RecentPolicyDays: 90,
		},
		Lifecycle: LifecycleConfig{
			ExemptRequestPrefixes: []string{},
			AutoExtendStatus:      "99",
			BoundaryToken:         "deny_rule",
			TestPrefixes:          []string{"sample_", "test_"},
			BaselineSuffix:        "_Rule",
		},
		Usage: UsageConfig{
			ThresholdDays: 0,
		},
		FileNaming: FileNamingConfig{
			VersionSuffix: "_v",
			FinalSuffix:   "_final",
		},
		Storage: StorageConfig{
			Enabled: false,
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "fwlens",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				TLSEnabled:      false,
				DialTimeout:     10 * time.Second,
			},
			BatchWriter: BatchWriterConfig{
				BatchSize:     1000,
				FlushInterval: 5 * time.Second,
				MaxRetries:    3,
				RetryDelay:    time.Second,
			},
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "fwlens-reports",
			Region:  "us-east-1",
		},
		Stream: StreamConfig{
			Enabled:          false,
			Brokers:          []string{"localhost:9092"},
			Topic:            "policy-exports",
			ConsumerGroup:    "fwlens",
			SecurityProtocol: "PLAINTEXT",
			DialTimeout:      10 * time.Second,
			MaxWait:          500 * time.Millisecond,
			MinBytes:         1,
			MaxBytes:         10 * 1024 * 1024,
			FetchLimit:       10000,
			FetchTimeout:     30 * time.Second,
		},
		UsageSource: UsageSourceConfig{
			Enabled:     false,
			Address:     "localhost:6379",
			KeyPrefix:   "fwlens:usage:",
			DialTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults. A missing
// file falls back to defaults; an unreadable or malformed file is an
// error, since no stage can run on guessed configuration.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("FWLENS_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("FWLENS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if days := os.Getenv("FWLENS_RECENT_POLICY_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			c.Timeframes.RecentPolicyDays = n
		}
	}

	if days := os.Getenv("FWLENS_USAGE_THRESHOLD_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			c.Usage.ThresholdDays = n
		}
	}

	if enabled := os.Getenv("FWLENS_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" && c.Archive.AccessKey == "" {
		c.Archive.AccessKey = key
	}

	if key := os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && c.Archive.SecretKey == "" {
		c.Archive.SecretKey = key
	}

	if pass := os.Getenv("FWLENS_REDIS_PASSWORD"); pass != "" {
		c.UsageSource.Password = pass
	}

	if pass := os.Getenv("FWLENS_KAFKA_SASL_PASSWORD"); pass != "" {
		c.Stream.SASLPassword = pass
	}
}

// VendorProfileFor returns the profile for a vendor tag, falling back
// to the default profile with a caller-side warning expected.
func (c *Config) VendorProfileFor(vendor string) (VendorProfile, bool) {
	if p, ok := c.Vendors[vendor]; ok {
		return p, true
	}
	return c.Vendors["default"], false
}

// Validate validates the configuration. Pattern compilation happens
// here so a malformed site override fails at startup, not mid-batch.
func (c *Config) Validate() error {
	if len(c.Vendors) == 0 {
		return fmt.Errorf("at least one vendor profile is required")
	}
	if _, ok := c.Vendors["default"]; !ok {
		return fmt.Errorf("the default vendor profile is required")
	}
	for name, p := range c.Vendors {
		if len(p.CompareColumns) == 0 {
			return fmt.Errorf("vendor %q: compare_columns must not be empty", name)
		}
	}

	patterns := map[string]string{
		"patterns.structured":         c.Patterns.Structured,
		"patterns.legacy_rule_name":   c.Patterns.LegacyRuleName,
		"patterns.legacy_requester":   c.Patterns.LegacyRequester,
		"patterns.legacy_date_range":  c.Patterns.LegacyDateRange,
		"patterns.legacy_description": c.Patterns.LegacyDescription,
	}
	for key, expr := range patterns {
		if expr == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%s does not compile: %w", key, err)
		}
	}

	if c.Timeframes.RecentPolicyDays <= 0 {
		return fmt.Errorf("timeframes.recent_policy_days must be positive")
	}
	if c.Usage.ThresholdDays < 0 {
		return fmt.Errorf("usage.threshold_days must not be negative")
	}
	if c.Lifecycle.BoundaryToken == "" {
		return fmt.Errorf("lifecycle.boundary_token must not be empty")
	}

	if c.Storage.Enabled {
		if len(c.Storage.ClickHouse.Hosts) == 0 {
			return fmt.Errorf("storage.clickhouse.hosts must not be empty")
		}
		if c.Storage.BatchWriter.BatchSize <= 0 {
			return fmt.Errorf("storage.batch_writer.batch_size must be positive")
		}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archival is enabled")
	}

	if c.Stream.Enabled {
		if len(c.Stream.Brokers) == 0 {
			return fmt.Errorf("stream.brokers must not be empty")
		}
		if c.Stream.Topic == "" {
			return fmt.Errorf("stream.topic is required when streaming is enabled")
		}
	}

	return nil
}
